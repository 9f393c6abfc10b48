package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/i18n"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/internal/storefront"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/pagination"
)

// --- Test Helpers ---

type fakeBackend struct {
	revoked  atomic.Bool
	uploads  atomic.Int32
	deletes  atomic.Int32
	lastAuth atomic.Value
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	b.lastAuth.Store(r.Header.Get("Authorization"))

	writeJSON := func(status int, v any) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	p1 := domain.Product{ID: "p1", Name: "Ndole", Price: decimal.NewFromInt(1500), Stock: 3, ShopID: "shop1"}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		var in struct{ Email string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		switch in.Email {
		case "admin@example.com":
			writeJSON(http.StatusOK, domain.Identity{Token: "tok-admin", User: &domain.User{
				ID: "a1", Email: in.Email, Roles: []domain.Role{{Name: domain.RoleAdmin}},
			}})
		case "owner@example.com":
			writeJSON(http.StatusOK, domain.Identity{Token: "tok-owner", User: &domain.User{
				ID: "u1", Email: in.Email, Roles: []domain.Role{{Name: domain.RoleShopOwner}},
			}})
		default:
			writeJSON(http.StatusUnauthorized, map[string]string{"error": "bad credentials"})
		}
	case r.URL.Path == "/products/p1":
		writeJSON(http.StatusOK, p1)
	case r.URL.Path == "/products":
		writeJSON(http.StatusOK, map[string]any{"data": []domain.Product{p1}, "total": 1})
	case r.URL.Path == "/shops/shop1" && r.Method == http.MethodGet:
		writeJSON(http.StatusOK, domain.Shop{ID: "shop1", Name: "Chez Ada", OwnerID: "u1"})
	case r.URL.Path == "/shops/shop1" && r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/users":
		if b.revoked.Load() {
			writeJSON(http.StatusUnauthorized, map[string]string{"error": "token expired"})
			return
		}
		writeJSON(http.StatusOK, []domain.User{{ID: "u1"}})
	case r.URL.Path == "/register":
		writeJSON(http.StatusOK, backend.Message{Message: "check your inbox"})
	case r.URL.Path == "/images/product/p1/batch":
		b.uploads.Add(1)
		writeJSON(http.StatusOK, []domain.Image{{ID: "img1", URL: "/img1.jpg"}})
	case r.URL.Path == "/products/images/delete/batch":
		b.deletes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

type testAPI struct {
	srv     *httptest.Server
	client  *http.Client
	backend *fakeBackend
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	fb := &fakeBackend{}
	upstream := httptest.NewServer(fb)
	t.Cleanup(upstream.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	client := backend.New(httpclient.NewWithHTTPClient(upstream.Client(), cfg), upstream.URL, logger.Discard())

	catalog, err := i18n.Load()
	require.NoError(t, err)

	registry := storefront.NewRegistry(storefront.Deps{
		Bridge:      storage.NewBridge(memory.New(), logger.Discard()),
		Backend:     client,
		Catalog:     catalog,
		Logger:      logger.Discard(),
		RecentLimit: 5,
	}, time.Hour)

	router := NewRouter(RouterConfig{
		Handler: NewHandler(registry, catalog, logger.Discard()),
		Health:  health.NewHandler(),
		Logger:  logger.Discard(),
		CORS:    middleware.DefaultCORSConfig(),
		Session: middleware.SessionConfig{MaxAge: time.Hour},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testAPI{srv: srv, client: &http.Client{Jar: jar}, backend: fb}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(t, req)
}

func (a *testAPI) send(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&env)
	}
	return resp, env
}

func (a *testAPI) login(t *testing.T, email string) {
	t.Helper()
	resp, env := a.do(t, http.MethodPost, "/api/session/login", map[string]string{"email": email, "password": "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login failed: %+v", env.Error)
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// --- Tests ---

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/metrics", nil)
	require.NoError(t, err)
	mresp, err := api.client.Do(req)
	require.NoError(t, err)
	defer mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestSession_CookieIssuedAndReused(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	view := decodeData[SessionView](t, env)
	assert.False(t, view.Authenticated)

	var first string
	for _, c := range resp.Cookies() {
		if c.Name == middleware.DefaultSessionCookie {
			first = c.Value
		}
	}
	require.NotEmpty(t, first)

	resp, _ = api.do(t, http.MethodGet, "/api/session", nil)
	for _, c := range resp.Cookies() {
		if c.Name == middleware.DefaultSessionCookie {
			assert.Equal(t, first, c.Value)
		}
	}
}

func TestCart_AddUsesBackendPrice(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": "p1", "price": "1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cart := decodeData[CartView](t, env)
	require.Len(t, cart.Items, 1)
	assert.True(t, decimal.NewFromInt(1500).Equal(cart.Subtotal))
	assert.Equal(t, "XAF", cart.Currency)
	assert.Contains(t, cart.FormattedSubtotal, "FCFA")

	resp, env = api.do(t, http.MethodPatch, "/api/cart/items/p1", map[string]int{"quantity": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, decodeData[CartView](t, env).ItemCount)

	resp, env = api.do(t, http.MethodPatch, "/api/cart/items/p1", map[string]int{"quantity": 4})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "OUT_OF_STOCK", env.Error.Code)

	resp, env = api.do(t, http.MethodDelete, "/api/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, decodeData[CartView](t, env).ItemCount)
}

func TestCart_AddUnknownProduct(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodPost, "/api/cart/items", map[string]string{"product_id": "nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCart_ValidationError(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodPost, "/api/cart/items", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "product_id")
}

func TestCurrency_SetCountryAndFormat(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodPut, "/api/currency/country", CodeRequest{Code: "FR"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pref := decodeData[domain.CurrencyPreference](t, env)
	assert.Equal(t, "EUR", pref.CurrencyCode)

	resp, env = api.do(t, http.MethodPut, "/api/currency/currency", CodeRequest{Code: "ZZZ"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)

	resp, env = api.do(t, http.MethodGet, "/api/currency", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "EUR", decodeData[domain.CurrencyPreference](t, env).CurrencyCode)
}

func TestCurrencyOptions_Cacheable(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodGet, "/api/currency/options", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "max-age=300")
	assert.Empty(t, resp.Cookies())

	opts := decodeData[CurrencyOptions](t, env)
	assert.Equal(t, "XAF", opts.BaseCurrency)
	assert.NotEmpty(t, opts.Countries)
}

func TestLocale_SwitchKeepsCart(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: "p1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := api.do(t, http.MethodPut, "/api/locale", LocaleRequest{Locale: "en"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "en", decodeData[LocaleView](t, env).Locale)

	resp, env = api.do(t, http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decodeData[CartView](t, env).ItemCount)

	resp, _ = api.do(t, http.MethodPut, "/api/locale", LocaleRequest{Locale: "de"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLocale_SuggestsFromAcceptLanguage(t *testing.T) {
	api := newTestAPI(t)

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/locale", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Language", "en-GB,en;q=0.8")
	resp, env := api.send(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decodeData[LocaleView](t, env)
	assert.Equal(t, i18n.DefaultLocale, view.Locale)
	assert.Equal(t, "en", view.Suggested)
	assert.ElementsMatch(t, []string{"fr", "en"}, view.Supported)
}

func TestBundle_UnknownLocale(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodGet, "/api/i18n/fr", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/api/i18n/xx", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConsent_RoundTrip(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodPut, "/api/consent", map[string]bool{"accepted": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeData[map[string]any](t, env)["accepted"].(bool))

	resp, _ = api.do(t, http.MethodPut, "/api/consent", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProductDetail_RecordsView(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodGet, "/api/products/p1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decodeData[ProductView](t, env).FormattedPrice, "FCFA")

	resp, env = api.do(t, http.MethodGet, "/api/recently-viewed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recent := decodeData[[]map[string]any](t, env)
	require.Len(t, recent, 1)
	assert.Equal(t, "p1", recent[0]["id"])

	resp, _ = api.do(t, http.MethodDelete, "/api/recently-viewed", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestListProducts(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodGet, "/api/products?page=1&limit=500", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeData[ProductPageView](t, env)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, pagination.MaxLimit, page.Limit)
	assert.False(t, page.HasNext)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "ndole-p1", page.Products[0].Slug)
}

func TestProductFilter_Defaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/products?page=-1&limit=abc&search=ndole", nil)
	f := productFilter(r)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, pagination.DefaultLimit, f.PageSize)
	assert.Equal(t, "ndole", f.Search)

	r = httptest.NewRequest(http.MethodGet, "/api/products?limit=1000&shop_id=shop1", nil)
	f = productFilter(r)
	assert.Equal(t, pagination.MaxLimit, f.PageSize)
	assert.Equal(t, "shop1", f.ShopID)
}

func TestCheckout_RequiresLogin(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodGet, "/api/checkout", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(HeaderLoginRequired))
	require.NotNil(t, env.Error)
}

func TestCheckout_Summary(t *testing.T) {
	api := newTestAPI(t)
	api.login(t, "owner@example.com")

	resp, _ := api.do(t, http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: "p1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := api.do(t, http.MethodGet, "/api/checkout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeData[storefront.CheckoutSummary](t, env)
	assert.Equal(t, 1, summary.ItemCount)
	assert.Equal(t, "u1", summary.Customer.ID)
}

func sessionCookieValue(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.DefaultSessionCookie {
			return c.Value
		}
	}
	return ""
}

func TestLogin_RotatesSessionID(t *testing.T) {
	api := newTestAPI(t)
	const planted = "11111111-2222-4333-8444-555555555555"

	u, err := url.Parse(api.srv.URL)
	require.NoError(t, err)
	api.client.Jar.SetCookies(u, []*http.Cookie{{Name: middleware.DefaultSessionCookie, Value: planted}})

	resp, _ := api.do(t, http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: "p1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := api.do(t, http.MethodPost, "/api/session/login", map[string]string{"email": "admin@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login failed: %+v", env.Error)
	rotated := sessionCookieValue(resp)
	require.NotEmpty(t, rotated)
	assert.NotEqual(t, planted, rotated)
	assert.Len(t, resp.Header.Values("Set-Cookie"), 1)

	// the cart followed the new ID
	_, env = api.do(t, http.MethodGet, "/api/cart", nil)
	assert.Equal(t, 1, decodeData[CartView](t, env).ItemCount)

	// a client still holding the planted ID is anonymous
	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/admin/users", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: middleware.DefaultSessionCookie, Value: planted})
	other, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer other.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, other.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodPost, "/api/session/login", map[string]string{"email": "who@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
	assert.Empty(t, resp.Header.Get(HeaderLoginRequired))
}

func TestLogin_MalformedBody(t *testing.T) {
	api := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/api/session/login", strings.NewReader("{"))
	require.NoError(t, err)
	resp, env := api.send(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)
}

func TestLogoutThenMe(t *testing.T) {
	api := newTestAPI(t)
	api.login(t, "owner@example.com")

	resp, env := api.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeData[SessionView](t, env).Authenticated)

	resp, _ = api.do(t, http.MethodPost, "/api/session/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, env = api.do(t, http.MethodGet, "/api/session", nil)
	assert.False(t, decodeData[SessionView](t, env).Authenticated)
}

func TestRegister_RelaysBackendMessage(t *testing.T) {
	api := newTestAPI(t)

	resp, env := api.do(t, http.MethodPost, "/api/auth/register", backend.RegisterInput{
		FirstName: "Ada", LastName: "Eze", Email: "ada@example.com",
		Password: "secret123", ConfirmPassword: "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "check your inbox", decodeData[backend.Message](t, env).Message)

	resp, env = api.do(t, http.MethodPost, "/api/auth/register", backend.RegisterInput{
		FirstName: "Ada", LastName: "Eze", Email: "ada@example.com",
		Password: "secret123", ConfirmPassword: "different",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Fields, "confirm_password")
}

func TestAdmin_Gating(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	api.login(t, "owner@example.com")
	resp, _ = api.do(t, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := newTestAPI(t)
	admin.login(t, "admin@example.com")
	resp, _ = admin.do(t, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer tok-admin", admin.backend.lastAuth.Load())
}

func TestAdmin_RevokedTokenFlagsLogin(t *testing.T) {
	api := newTestAPI(t)
	api.login(t, "admin@example.com")
	api.backend.revoked.Store(true)

	resp, _ := api.do(t, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(HeaderLoginRequired))

	_, env := api.do(t, http.MethodGet, "/api/session", nil)
	assert.False(t, decodeData[SessionView](t, env).Authenticated)
}

func TestAdmin_DeleteShopNeedsConfirmation(t *testing.T) {
	api := newTestAPI(t)
	api.login(t, "owner@example.com")

	resp, env := api.do(t, http.MethodDelete, "/api/admin/shops/shop1", nil)
	assert.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFIRMATION_REQUIRED", env.Error.Code)

	resp, _ = api.do(t, http.MethodDelete, "/api/admin/shops/shop1?confirm=true", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAdmin_DeleteImagesNeedsConfirmation(t *testing.T) {
	api := newTestAPI(t)
	api.login(t, "admin@example.com")

	body := DeleteImagesRequest{ImageIDs: []string{"img1"}}
	resp, _ := api.do(t, http.MethodDelete, "/api/admin/images", body)
	assert.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
	assert.Zero(t, api.backend.deletes.Load())

	resp, _ = api.do(t, http.MethodDelete, "/api/admin/images?confirm=true", body)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.EqualValues(t, 1, api.backend.deletes.Load())
}

func TestAdmin_UploadImagesAsShopOwner(t *testing.T) {
	api := newTestAPI(t)
	api.login(t, "owner@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(imagesField, "ndole.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/api/admin/products/p1/images", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, env := api.send(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	images := decodeData[[]domain.Image](t, env)
	require.Len(t, images, 1)
	assert.EqualValues(t, 1, api.backend.uploads.Load())
}

func TestAdmin_ShopOwnerCannotDeleteImages(t *testing.T) {
	api := newTestAPI(t)
	api.login(t, "owner@example.com")

	body := DeleteImagesRequest{ImageIDs: []string{"img1"}}
	resp, env := api.do(t, http.MethodDelete, "/api/admin/images?confirm=true", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Zero(t, api.backend.deletes.Load())

	resp, _ = api.do(t, http.MethodPut, "/api/admin/images/img1/primary", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateShop_WithoutUser(t *testing.T) {
	upstream := httptest.NewServer(&fakeBackend{})
	t.Cleanup(upstream.Close)
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	client := backend.New(httpclient.NewWithHTTPClient(upstream.Client(), cfg), upstream.URL, logger.Discard())

	sf := storefront.New("anon", storefront.Deps{
		Bridge:  storage.NewBridge(memory.New(), logger.Discard()),
		Backend: client,
		Logger:  logger.Discard(),
	})
	h := NewHandler(nil, nil, logger.Discard())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/shops", strings.NewReader(`{"name":"Chez Ada"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, sf))
	rr := httptest.NewRecorder()

	h.CreateShop(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdmin_UploadRejectsAnonymous(t *testing.T) {
	api := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/api/admin/products/p1/images", strings.NewReader(""))
	require.NoError(t, err)
	resp, _ := api.send(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, api.backend.uploads.Load())
}
