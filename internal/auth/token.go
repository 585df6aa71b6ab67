package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type sessionClaims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email,omitempty"`
	UserID      int64    `json:"userId"`
	TenantID    int64    `json:"tenantId"`
	Username    string   `json:"username"`
	FullName    string   `json:"fullName,omitempty"`
	TenantName  string   `json:"tenantName,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// TokenConfig configures signing and validation. Now defaults to time.Now.
type TokenConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	Expiry     time.Duration
	Now        func() time.Time
}

// TokenService issues and validates HS256 session tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

func NewTokenService(cfg TokenConfig) *TokenService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     cfg.Expiry,
		now:        now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(0),
			jwt.WithTimeFunc(now),
		),
	}
}

// Issue signs a token for identity and returns it with its expiry. A fresh
// token id is assigned on every call.
func (s *TokenService) Issue(identity *Identity) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(identity.UserID, 10),
			Audience:  jwt.ClaimStrings{s.audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:       identity.Email,
		UserID:      identity.UserID,
		TenantID:    identity.TenantID,
		Username:    identity.Username,
		FullName:    identity.FullName,
		TenantName:  identity.TenantName,
		Roles:       nonNil(identity.Roles),
		Permissions: nonNil(identity.Permissions),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt.Truncate(time.Second), nil
}

// Validate checks signature, issuer, audience and expiry with no clock skew.
// Failures are Unauthorized errors wrapping ErrTokenExpired or
// ErrTokenInvalid.
func (s *TokenService) Validate(tokenString string) (*Identity, error) {
	var claims sessionClaims
	token, err := s.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.Wrap(apperror.Unauthorized("token expired"), fmt.Errorf("%w: %v", ErrTokenExpired, err))
		}
		return nil, apperror.Wrap(apperror.Unauthorized("invalid token"), fmt.Errorf("%w: %v", ErrTokenInvalid, err))
	}
	if !token.Valid {
		return nil, apperror.Wrap(apperror.Unauthorized("invalid token"), ErrTokenInvalid)
	}

	identity := &Identity{
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		Username:    claims.Username,
		Email:       claims.Email,
		FullName:    claims.FullName,
		TenantName:  claims.TenantName,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		TokenID:     claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
