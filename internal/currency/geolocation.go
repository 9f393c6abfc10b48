package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/utafrali/storefront/pkg/httpclient"
)

// Geolocator maps a client IP address to an ISO 3166-1 alpha-2 country code.
type Geolocator interface {
	Locate(ctx context.Context, ip string) (string, error)
}

// HTTPGeolocator queries an ipapi-compatible endpoint:
// GET {base}/{ip}/json/ returning {"country_code": "CM"}.
type HTTPGeolocator struct {
	client  httpclient.Doer
	baseURL string
	timeout time.Duration
}

// NewHTTPGeolocator creates a geolocator. The client should not retry; the
// lookup is a one-shot best effort bounded by timeout.
func NewHTTPGeolocator(client httpclient.Doer, baseURL string, timeout time.Duration) *HTTPGeolocator {
	return &HTTPGeolocator{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

type geoResponse struct {
	CountryCode string `json:"country_code"`
	// ip-api.com style
	CountryCodeAlt string `json:"countryCode"`
	Error          bool   `json:"error"`
	Reason         string `json:"reason"`
}

// Locate returns the upper-cased country code for ip. An empty ip asks the
// service to locate the caller.
func (g *HTTPGeolocator) Locate(ctx context.Context, ip string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	endpoint := g.baseURL + "/json/"
	if ip != "" {
		endpoint = g.baseURL + "/" + url.PathEscape(ip) + "/json/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create geolocation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("geolocation request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geolocation returned status %d", resp.StatusCode)
	}

	var body geoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode geolocation response: %w", err)
	}
	if body.Error {
		return "", fmt.Errorf("geolocation error: %s", body.Reason)
	}

	code := body.CountryCode
	if code == "" {
		code = body.CountryCodeAlt
	}
	if code == "" {
		return "", fmt.Errorf("geolocation response has no country code")
	}
	return strings.ToUpper(code), nil
}
