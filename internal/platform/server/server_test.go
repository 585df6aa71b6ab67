package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/server"
	"github.com/gatehouse-io/gatehouse/internal/ratelimit"
	"github.com/gatehouse-io/gatehouse/internal/subscription"
	"github.com/gatehouse-io/gatehouse/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key-must-be-32-chars!!"

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type gateTenants struct{ t *tenant.Tenant }

func (g gateTenants) CallerTenant(context.Context, *auth.Identity) (*tenant.Tenant, error) {
	return g.t, nil
}

func (g gateTenants) DeactivateExpired(context.Context, *auth.Identity, *tenant.Tenant, string) (bool, error) {
	return true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTokens() *auth.TokenService {
	return auth.NewTokenService(auth.TokenConfig{
		SigningKey: testSigningKey,
		Issuer:     "gatehouse",
		Audience:   "gatehouse-api",
		Expiry:     time.Hour,
	})
}

func TestServer_HealthCheck(t *testing.T) {
	srv := server.New(":0", server.Dependencies{Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name string
		db   server.Pinger
		want int
	}{
		{"no database", nil, http.StatusServiceUnavailable},
		{"ping fails", pinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{"ready", pinger{}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := server.New(":0", server.Dependencies{DB: tt.db, Logger: discardLogger()})
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestServer_NotFound(t *testing.T) {
	srv := server.New(":0", server.Dependencies{Logger: discardLogger()})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	srv := server.New(":0", server.Dependencies{ServeMetrics: true, Logger: discardLogger()})
	h := srv.Handler()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gatehouse_http_requests_total")

	srv = server.New(":0", server.Dependencies{Logger: discardLogger()})
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	srv := server.New("127.0.0.1:0", server.Dependencies{Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	cancel()
	assert.NoError(t, <-errCh)
}

func protectedServer(t *testing.T, billing *tenant.Tenant) (*server.Server, *auth.TokenService) {
	t.Helper()
	tokens := newTokens()
	gate := subscription.NewGate(gateTenants{t: billing}, discardLogger())
	srv := server.New(":0", server.Dependencies{
		Tokens: tokens,
		Gate:   gate,
		Logger: discardLogger(),
	})
	srv.ProtectedMux().HandleFunc("GET /probe", func(w http.ResponseWriter, r *http.Request) {
		id := auth.GetIdentity(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]int64{"tenantId": id.TenantID})
	})
	return srv, tokens
}

func bearer(t *testing.T, tokens *auth.TokenService, identity *auth.Identity) string {
	t.Helper()
	token, _, err := tokens.Issue(identity)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestServer_ProtectedRequiresToken(t *testing.T) {
	srv, _ := protectedServer(t, &tenant.Tenant{ID: 1, IsActive: true})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Not authorized. you must sign in")
}

func TestServer_ProtectedWithToken(t *testing.T) {
	srv, tokens := protectedServer(t, &tenant.Tenant{ID: 4, IsActive: true})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", bearer(t, tokens, &auth.Identity{UserID: 9, TenantID: 4, Roles: []string{auth.RoleOwner}}))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tenantId":4}`, w.Body.String())
}

func TestServer_GateRunsAfterAuth(t *testing.T) {
	ends := time.Now().Add(-time.Hour)
	srv, tokens := protectedServer(t, &tenant.Tenant{ID: 4, Name: "Acme", IsActive: true, SubscriptionEndsAt: &ends})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", bearer(t, tokens, &auth.Identity{UserID: 9, TenantID: 4, Roles: []string{auth.RoleOwner}}))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestServer_LoginRateLimited(t *testing.T) {
	authSvc := auth.NewService(auth.ServiceConfig{Logger: discardLogger()})
	srv := server.New(":0", server.Dependencies{
		AuthHandler: auth.NewHandler(authSvc, discardLogger()),
		Limiter:     ratelimit.NewMemoryLimiter(),
		Policies: ratelimit.Policies{
			Auth:     ratelimit.Policy{Name: "auth", Limit: 2, Window: time.Minute},
			Register: ratelimit.Policy{Name: "register", Limit: 1, Window: time.Minute},
		},
		Logger: discardLogger(),
	})

	// Invalid payloads fail validation before any storage access.
	login := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"nope","password":""}`))
		req.RemoteAddr = "192.0.2.10:40000"
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, login().Code)
	assert.Equal(t, http.StatusBadRequest, login().Code)
	w := login()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Policies are counted separately.
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(`{}`))
	req.RemoteAddr = "192.0.2.10:40000"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	srv := server.New(":0", server.Dependencies{
		CORSAllowedOrigins: []string{"https://app.example.com"},
		Logger:             discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
