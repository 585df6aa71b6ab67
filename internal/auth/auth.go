package auth

import (
	"errors"
	"slices"
	"time"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrMissingClaim = errors.New("claim missing")
)

const (
	// RoleSuperAdmin marks a cross-tenant identity that bypasses tenant
	// scoping and subscription gating.
	RoleSuperAdmin = "SuperAdmin"
	// RoleOwner is granted to the user created alongside a tenant.
	RoleOwner = "Owner"
)

// Identity is the caller resolved from a validated bearer token. Zero ids
// mean the claim was absent.
type Identity struct {
	UserID      int64     `json:"userId"`
	TenantID    int64     `json:"tenantId"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FullName    string    `json:"fullName"`
	TenantName  string    `json:"tenantName"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	TokenID     string    `json:"-"`
	ExpiresAt   time.Time `json:"-"`
}

// HasRole reports whether the identity carries role. Nil-safe.
func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}
