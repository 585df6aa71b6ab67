package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/platform/middleware"
	"github.com/stretchr/testify/assert"
)

func corsHandler(nextCalled *bool) http.Handler {
	return middleware.CORS([]string{"http://localhost:3000"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*nextCalled = true
			w.WriteHeader(http.StatusOK)
		}),
	)
}

func TestCORS_AllowedOrigin(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodGet, "/tenants", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()

	corsHandler(&called).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodGet, "/tenants", nil)
	req.Header.Set("Origin", "http://evil.com")
	rec := httptest.NewRecorder()

	corsHandler(&called).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_DisallowedOriginOptionsReachesNext(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodOptions, "/tenants", nil)
	req.Header.Set("Origin", "http://evil.com")
	rec := httptest.NewRecorder()

	corsHandler(&called).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_NoOriginHeader(t *testing.T) {
	var called bool
	rec := httptest.NewRecorder()

	corsHandler(&called).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants", nil))

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_PreflightReturns204(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodOptions, "/tenants", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()

	corsHandler(&called).ServeHTTP(rec, req)

	assert.False(t, called, "preflight must not reach the handler")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}
