// Package backend is the single typed client for the storefront REST API.
// Authenticated calls carry "Authorization: Bearer <token>" and every 401 they
// receive is funnelled into the session's HandleUnauthorized.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

const serviceName = "backend"

// Authorizer supplies the session token and receives 401 notifications.
type Authorizer interface {
	Token() string
	HandleUnauthorized(ctx context.Context)
}

type authMode int

const (
	// anonymous calls never send a token.
	anonymous authMode = iota
	// optional calls send the token when the session has one.
	optional
	// required calls fail with UNAUTHORIZED before dispatch when there is no token.
	required
)

// Client calls the REST backend. The zero Authorizer makes an anonymous client;
// use ForSession to bind one to a session.
type Client struct {
	http    httpclient.Doer
	baseURL string
	logger  *slog.Logger
	auth    Authorizer
}

// New creates an anonymous backend client.
func New(doer httpclient.Doer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// ForSession returns a copy of the client bound to a session.
func (c *Client) ForSession(a Authorizer) *Client {
	cpy := *c
	cpy.auth = a
	return &cpy
}

// CircuitOpenFallback turns an open breaker into SERVICE_UNAVAILABLE.
func CircuitOpenFallback(_ context.Context, err error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("the storefront backend is temporarily unavailable, please retry shortly", err)
}

type call struct {
	method string
	path   string
	query  url.Values
	body   io.Reader
	ctype  string
	auth   authMode
	out    any
}

func (c *Client) jsonCall(method, path string, auth authMode, in, out any) (call, error) {
	cl := call{method: method, path: path, auth: auth, out: out}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return call{}, fmt.Errorf("marshal %s %s request: %w", method, path, err)
		}
		cl.body = bytes.NewReader(data)
		cl.ctype = "application/json"
	}
	return cl, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, auth authMode, in, out any) error {
	cl, err := c.jsonCall(method, path, auth, in, out)
	if err != nil {
		return err
	}
	return c.do(ctx, cl)
}

func (c *Client) do(ctx context.Context, cl call) error {
	var token string
	if cl.auth != anonymous && c.auth != nil {
		token = c.auth.Token()
	}
	if cl.auth == required && token == "" {
		if c.auth != nil {
			c.auth.HandleUnauthorized(ctx)
		}
		return apperrors.Unauthorized("login required")
	}

	endpoint := c.baseURL + cl.path
	if len(cl.query) > 0 {
		endpoint += "?" + cl.query.Encode()
	}

	body := cl.body
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s %s request: %w", cl.method, cl.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.ctype != "" {
		req.Header.Set("Content-Type", cl.ctype)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return c.transportError(ctx, cl, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		c.logger.InfoContext(ctx, "backend rejected session token",
			slog.String("method", cl.method),
			slog.String("path", cl.path),
		)
		c.auth.HandleUnauthorized(ctx)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	if cl.out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil
	}
	return decodeBody(resp.Body, cl.out)
}

func (c *Client) transportError(ctx context.Context, cl call, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	c.logger.WarnContext(ctx, "backend request failed",
		slog.String("method", cl.method),
		slog.String("path", cl.path),
		slog.String("error", err.Error()),
	)
	return apperrors.ServiceUnavailable("network error, please check your connection and try again", err)
}

// decodeBody accepts both a bare payload and one wrapped as {"data": ...}.
// A *json.RawMessage destination receives the body untouched.
func decodeBody(r io.Reader, out any) error {
	raw, err := io.ReadAll(io.LimitReader(r, 16<<20))
	if err != nil {
		return fmt.Errorf("read backend response: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	if dst, ok := out.(*json.RawMessage); ok {
		*dst = append((*dst)[:0], raw...)
		return nil
	}

	if raw[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err == nil {
			_, hasID := envelope["id"]
			if data, ok := envelope["data"]; ok && !hasID {
				raw = data
			}
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Internal(fmt.Errorf("decode backend response: %w", err))
	}
	return nil
}
