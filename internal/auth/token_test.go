package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key-must-be-32-chars!!"

func newTestTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenConfig{
		SigningKey: testSigningKey,
		Issuer:     "gatehouse",
		Audience:   "gatehouse-api",
		Expiry:     24 * time.Hour,
	})
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := newTestTokenService()

	identity := &auth.Identity{
		UserID:      42,
		TenantID:    7,
		Username:    "jdoe",
		Email:       "jdoe@acme.io",
		FullName:    "Jane Doe",
		TenantName:  "Acme",
		Roles:       []string{auth.RoleOwner},
		Permissions: []string{},
	}

	token, expiresAt, err := svc.Issue(identity)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, 5*time.Second)

	got, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, int64(7), got.TenantID)
	assert.Equal(t, "jdoe", got.Username)
	assert.Equal(t, "jdoe@acme.io", got.Email)
	assert.Equal(t, "Jane Doe", got.FullName)
	assert.Equal(t, "Acme", got.TenantName)
	assert.Equal(t, []string{auth.RoleOwner}, got.Roles)
	assert.NotEmpty(t, got.TokenID)
}

func TestTokenService_UniqueTokenIDs(t *testing.T) {
	svc := newTestTokenService()
	identity := &auth.Identity{UserID: 1, TenantID: 1}

	a, _, err := svc.Issue(identity)
	require.NoError(t, err)
	b, _, err := svc.Issue(identity)
	require.NoError(t, err)

	ga, err := svc.Validate(a)
	require.NoError(t, err)
	gb, err := svc.Validate(b)
	require.NoError(t, err)
	assert.NotEqual(t, ga.TokenID, gb.TokenID)
}

func TestTokenService_ExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := auth.NewTokenService(auth.TokenConfig{
		SigningKey: testSigningKey,
		Issuer:     "gatehouse",
		Audience:   "gatehouse-api",
		Expiry:     time.Hour,
		Now:        fixedClock(issuedAt),
	})
	token, _, err := issuer.Issue(&auth.Identity{UserID: 1, TenantID: 2})
	require.NoError(t, err)

	// One second past expiry with no leeway.
	validator := auth.NewTokenService(auth.TokenConfig{
		SigningKey: testSigningKey,
		Issuer:     "gatehouse",
		Audience:   "gatehouse-api",
		Expiry:     time.Hour,
		Now:        fixedClock(issuedAt.Add(time.Hour + time.Second)),
	})
	_, err = validator.Validate(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

func TestTokenService_Rejections(t *testing.T) {
	identity := &auth.Identity{UserID: 1, TenantID: 2}

	tests := []struct {
		name   string
		issuer auth.TokenConfig
	}{
		{
			name:   "wrong signing key",
			issuer: auth.TokenConfig{SigningKey: "signing-key-two-must-be-32-chars!!", Issuer: "gatehouse", Audience: "gatehouse-api", Expiry: time.Hour},
		},
		{
			name:   "wrong issuer",
			issuer: auth.TokenConfig{SigningKey: testSigningKey, Issuer: "other-service", Audience: "gatehouse-api", Expiry: time.Hour},
		},
		{
			name:   "wrong audience",
			issuer: auth.TokenConfig{SigningKey: testSigningKey, Issuer: "gatehouse", Audience: "someone-else", Expiry: time.Hour},
		},
	}

	validator := newTestTokenService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := auth.NewTokenService(tt.issuer).Issue(identity)
			require.NoError(t, err)

			_, err = validator.Validate(token)
			assert.ErrorIs(t, err, auth.ErrTokenInvalid)
		})
	}
}

func TestTokenService_MalformedToken(t *testing.T) {
	svc := newTestTokenService()

	_, err := svc.Validate("not.a.jwt")
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.MapClaims{
		"iss":      "gatehouse",
		"aud":      "gatehouse-api",
		"exp":      time.Now().Add(time.Hour).Unix(),
		"iat":      time.Now().Unix(),
		"userId":   1,
		"tenantId": 2,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	_, err = newTestTokenService().Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newTestTokenService().Validate(unsigned)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_TamperedPayload(t *testing.T) {
	svc := newTestTokenService()
	token, _, err := svc.Issue(&auth.Identity{UserID: 1, TenantID: 2})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	parts[1] = parts[1][:len(parts[1])-2] + "xx"

	_, err = svc.Validate(strings.Join(parts, "."))
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenService_MissingTenantClaimFailsScope(t *testing.T) {
	svc := newTestTokenService()
	token, _, err := svc.Issue(&auth.Identity{UserID: 1})
	require.NoError(t, err)

	got, err := svc.Validate(token)
	require.NoError(t, err)

	_, err = got.RequireTenantID()
	assert.ErrorIs(t, err, auth.ErrMissingClaim)
	_, err = got.Scope()
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}
