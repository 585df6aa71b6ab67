package auth

import (
	"context"
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/platform/database"
)

func missingClaim(name string) error {
	return apperror.Wrap(apperror.Unauthorized("authentication required"), fmt.Errorf("%w: %s", ErrMissingClaim, name))
}

// RequireTenantID returns the caller's tenant or an Unauthorized error when
// the claim is absent.
func (i *Identity) RequireTenantID() (int64, error) {
	if i == nil || i.TenantID <= 0 {
		return 0, missingClaim("tenantId")
	}
	return i.TenantID, nil
}

func (i *Identity) RequireUserID() (int64, error) {
	if i == nil || i.UserID <= 0 {
		return 0, missingClaim("userId")
	}
	return i.UserID, nil
}

func (i *Identity) RequireUsername() (string, error) {
	if i == nil || i.Username == "" {
		return "", missingClaim("username")
	}
	return i.Username, nil
}

// IsSuperAdmin is true iff the roles contain RoleSuperAdmin.
func (i *Identity) IsSuperAdmin() bool {
	return i.HasRole(RoleSuperAdmin)
}

// Scope is the data scope for the caller's reads: cross-tenant for
// superadmins, otherwise the caller's own tenant.
func (i *Identity) Scope() (database.Scope, error) {
	userID, err := i.RequireUserID()
	if err != nil {
		return database.Scope{}, err
	}
	if i.IsSuperAdmin() {
		return database.CrossTenant(userID), nil
	}
	return i.TenantScope()
}

// TenantScope is always the caller's own tenant, superadmin or not. Writes
// that create tenant-owned rows use it.
func (i *Identity) TenantScope() (database.Scope, error) {
	userID, err := i.RequireUserID()
	if err != nil {
		return database.Scope{}, err
	}
	tenantID, err := i.RequireTenantID()
	if err != nil {
		return database.Scope{}, err
	}
	return database.ForTenant(tenantID, userID)
}

// RequestScope is Scope for the identity stored on ctx.
func RequestScope(ctx context.Context) (database.Scope, error) {
	return GetIdentity(ctx).Scope()
}
