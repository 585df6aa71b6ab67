package auth_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tokenSvc := newTestTokenService()
	token, _, err := tokenSvc.Issue(&auth.Identity{
		UserID:   123,
		TenantID: 456,
		Username: "jdoe",
		Roles:    []string{auth.RoleOwner},
	})
	require.NoError(t, err)

	var gotIdentity *auth.Identity
	handler := auth.Middleware(tokenSvc, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = auth.GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotIdentity)
	assert.Equal(t, int64(123), gotIdentity.UserID)
	assert.Equal(t, int64(456), gotIdentity.TenantID)
	assert.True(t, gotIdentity.HasRole(auth.RoleOwner))
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer invalid-token"},
	}

	tokenSvc := newTestTokenService()
	handler := auth.Middleware(tokenSvc, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "Not authorized. you must sign in", body["message"])
		})
	}
}

func TestGetIdentity_Absent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, auth.GetIdentity(req.Context()))
}

func TestIdentity_Scope(t *testing.T) {
	owner := &auth.Identity{UserID: 1, TenantID: 9, Roles: []string{auth.RoleOwner}}
	scope, err := owner.Scope()
	require.NoError(t, err)
	tenantID, ok := scope.TenantID()
	assert.True(t, ok)
	assert.Equal(t, int64(9), tenantID)
	assert.False(t, scope.IsCrossTenant())

	admin := &auth.Identity{UserID: 2, TenantID: 1, Roles: []string{auth.RoleSuperAdmin}}
	scope, err = admin.Scope()
	require.NoError(t, err)
	assert.True(t, scope.IsCrossTenant())

	// Writes that create tenant-owned rows stay in the admin's own tenant.
	scope, err = admin.TenantScope()
	require.NoError(t, err)
	tenantID, ok = scope.TenantID()
	assert.True(t, ok)
	assert.Equal(t, int64(1), tenantID)
}

func TestIdentity_NilSafe(t *testing.T) {
	var identity *auth.Identity
	assert.False(t, identity.HasRole(auth.RoleOwner))
	assert.False(t, identity.IsSuperAdmin())
	_, err := identity.RequireUserID()
	assert.ErrorIs(t, err, auth.ErrMissingClaim)
	_, err = identity.RequireUsername()
	assert.ErrorIs(t, err, auth.ErrMissingClaim)
}
