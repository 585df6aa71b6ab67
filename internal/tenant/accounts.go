package tenant

import (
	"context"

	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/database"
)

// AccountStore exposes the tenant and user stores to the authentication
// service.
type AccountStore struct {
	tenants *Store
	users   *UserStore
}

var _ auth.Accounts = (*AccountStore)(nil)

func NewAccountStore(tenants *Store, users *UserStore) *AccountStore {
	return &AccountStore{tenants: tenants, users: users}
}

func (a *AccountStore) SubdomainExists(ctx context.Context, q database.Querier, scope database.Scope, subdomain string) (bool, error) {
	return a.tenants.SubdomainExists(ctx, q, scope, subdomain)
}

func (a *AccountStore) EmailExists(ctx context.Context, q database.Querier, scope database.Scope, email string) (bool, error) {
	return a.users.EmailExists(ctx, q, scope, email, 0)
}

func (a *AccountStore) CreateTenant(ctx context.Context, q database.Querier, scope database.Scope, t auth.NewTenant) (int64, error) {
	return a.tenants.Create(ctx, q, scope, t)
}

func (a *AccountStore) CreateAccount(ctx context.Context, q database.Querier, scope database.Scope, na auth.NewAccount) (int64, error) {
	u := &User{
		Username:     na.Username,
		Email:        na.Email,
		PasswordHash: na.PasswordHash,
		FirstName:    na.FirstName,
		LastName:     na.LastName,
		PhoneNumber:  na.PhoneNumber,
	}
	if err := a.users.Create(ctx, q, scope, na.TenantID, u); err != nil {
		return 0, err
	}
	return u.ID, nil
}

func (a *AccountStore) FindActiveByEmailForLogin(ctx context.Context, q database.Querier, email string) (*auth.LoginAccount, error) {
	return a.users.FindActiveByEmailForLogin(ctx, q, email)
}

func (a *AccountStore) DeactivateTenant(ctx context.Context, q database.Querier, scope database.Scope, tenantID int64) (bool, error) {
	return a.tenants.Deactivate(ctx, q, scope, tenantID)
}
