package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

func TestRecovery_WritesEnvelope(t *testing.T) {
	var buf bytes.Buffer
	h := Recovery(logger.NewWithWriter("storefront", "info", &buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil cart")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "nil cart")
}

func TestRecovery_RepanicsOnAbort(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
