package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/audit"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/database"
	"github.com/gatehouse-io/gatehouse/internal/platform/validate"
)

// Tenants is the tenant storage used by Service. *Store implements it.
type Tenants interface {
	List(ctx context.Context, q database.Querier, scope database.Scope) ([]Tenant, error)
	GetByID(ctx context.Context, q database.Querier, scope database.Scope, id int64) (*Tenant, error)
	GetByIDForUpdate(ctx context.Context, q database.Querier, scope database.Scope, id int64) (*Tenant, error)
	Update(ctx context.Context, q database.Querier, scope database.Scope, t *Tenant) error
	SoftDelete(ctx context.Context, q database.Querier, scope database.Scope, id int64) error
	Deactivate(ctx context.Context, q database.Querier, scope database.Scope, id int64) (bool, error)
}

// UpdateTenantInput is a partial update; nil fields are left unchanged.
// IsActive and SubscriptionEndsAt are reserved for superadmins.
type UpdateTenantInput struct {
	Name               *string    `json:"name" validate:"omitempty,min=3,max=255"`
	Subdomain          *string    `json:"subdomain" validate:"omitempty,min=3,max=100,subdomain"`
	CompanyIdentifier  *string    `json:"companyIdentifier" validate:"omitempty,max=50"`
	IsActive           *bool      `json:"isActive"`
	SubscriptionEndsAt *time.Time `json:"subscriptionEndsAt"`
}

type RenewInput struct {
	Months int `json:"months" validate:"gte=1,lte=36"`
}

// Service manages tenants on behalf of an authenticated caller.
type Service struct {
	tx     database.Transactor
	store  Tenants
	audit  audit.Logger
	logger *slog.Logger
	now    func() time.Time
}

func NewService(tx database.Transactor, store Tenants, auditLog audit.Logger, logger *slog.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tx: tx, store: store, audit: auditLog, logger: logger, now: time.Now}
}

// WithClock replaces the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func requireSuperAdmin(identity *auth.Identity) (database.Scope, error) {
	userID, err := identity.RequireUserID()
	if err != nil {
		return database.Scope{}, err
	}
	if !identity.IsSuperAdmin() {
		return database.Scope{}, apperror.Forbidden("")
	}
	return database.CrossTenant(userID), nil
}

// ownOrSuperAdmin allows the caller's own tenant, or any tenant for
// superadmins.
func ownOrSuperAdmin(identity *auth.Identity, tenantID int64) (database.Scope, error) {
	scope, err := identity.Scope()
	if err != nil {
		return database.Scope{}, err
	}
	if own, ok := scope.TenantID(); ok && own != tenantID {
		return database.Scope{}, apperror.Forbidden("")
	}
	return scope, nil
}

// List returns every tenant, inactive ones included. Superadmin only.
func (s *Service) List(ctx context.Context, identity *auth.Identity) ([]Tenant, error) {
	scope, err := requireSuperAdmin(identity)
	if err != nil {
		return nil, err
	}

	var tenants []Tenant
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		tenants, err = s.store.List(ctx, q, scope)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *Service) Get(ctx context.Context, identity *auth.Identity, tenantID int64) (*Tenant, error) {
	scope, err := ownOrSuperAdmin(identity, tenantID)
	if err != nil {
		return nil, err
	}

	var t *Tenant
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		t, err = s.store.GetByID(ctx, q, scope, tenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Update applies in to the tenant. Members may rename their own tenant but
// never touch its billing fields.
func (s *Service) Update(ctx context.Context, identity *auth.Identity, tenantID int64, in UpdateTenantInput) (*Tenant, error) {
	scope, err := ownOrSuperAdmin(identity, tenantID)
	if err != nil {
		return nil, err
	}
	if (in.IsActive != nil || in.SubscriptionEndsAt != nil) && !identity.IsSuperAdmin() {
		return nil, apperror.Forbidden("Only superadmins can change subscription or activation status")
	}
	if in.Subdomain != nil {
		trimmed := strings.TrimSpace(*in.Subdomain)
		in.Subdomain = &trimmed
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	var t *Tenant
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		t, err = s.store.GetByIDForUpdate(ctx, q, scope, tenantID)
		if err != nil {
			return err
		}
		if in.Name != nil {
			t.Name = *in.Name
		}
		if in.Subdomain != nil {
			t.Subdomain = *in.Subdomain
		}
		if in.CompanyIdentifier != nil {
			t.CompanyIdentifier = in.CompanyIdentifier
		}
		if in.IsActive != nil {
			t.IsActive = *in.IsActive
		}
		if in.SubscriptionEndsAt != nil {
			ends := in.SubscriptionEndsAt.UTC()
			t.SubscriptionEndsAt = &ends
		}
		return s.store.Update(ctx, q, scope, t)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID:     audit.ID(t.ID),
		UserID:       audit.ID(scope.ActorID()),
		Action:       audit.ActionTenantUpdated,
		ResourceType: audit.ResourceTenant,
		ResourceID:   audit.ID(t.ID),
		Source:       audit.SourceAPI,
	})
	s.logger.Info("tenant updated", "tenant_id", t.ID, "user_id", scope.ActorID())
	return t, nil
}

// Delete soft-deletes the tenant. Superadmin only.
func (s *Service) Delete(ctx context.Context, identity *auth.Identity, tenantID int64) error {
	scope, err := requireSuperAdmin(identity)
	if err != nil {
		return err
	}

	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		return s.store.SoftDelete(ctx, q, scope, tenantID)
	})
	if err != nil {
		return err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID:     audit.ID(tenantID),
		UserID:       audit.ID(scope.ActorID()),
		Action:       audit.ActionTenantDeleted,
		ResourceType: audit.ResourceTenant,
		ResourceID:   audit.ID(tenantID),
		Source:       audit.SourceAPI,
	})
	s.logger.Info("tenant deleted", "tenant_id", tenantID, "user_id", scope.ActorID())
	return nil
}

// Renew extends the subscription by months from the later of now and the
// current end, and reactivates the tenant. Superadmin only.
func (s *Service) Renew(ctx context.Context, identity *auth.Identity, tenantID int64, in RenewInput) (*Tenant, error) {
	scope, err := requireSuperAdmin(identity)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	var t *Tenant
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		t, err = s.store.GetByIDForUpdate(ctx, q, scope, tenantID)
		if err != nil {
			return err
		}

		base := s.now().UTC()
		if t.SubscriptionEndsAt != nil && t.SubscriptionEndsAt.After(base) {
			base = t.SubscriptionEndsAt.UTC()
		}
		ends := addMonths(base, in.Months)
		t.SubscriptionEndsAt = &ends
		t.IsActive = true
		return s.store.Update(ctx, q, scope, t)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID:     audit.ID(tenantID),
		UserID:       audit.ID(scope.ActorID()),
		Action:       audit.ActionTenantRenewed,
		ResourceType: audit.ResourceTenant,
		ResourceID:   audit.ID(tenantID),
		Metadata:     map[string]any{audit.MetadataMonths: in.Months},
		Source:       audit.SourceAPI,
	})
	s.logger.Info("tenant renewed", "tenant_id", tenantID, "months", in.Months, "ends_at", t.SubscriptionEndsAt)
	return t, nil
}

// CallerTenant loads the caller's own tenant. It returns nil, nil when the
// tenant is missing or deleted.
func (s *Service) CallerTenant(ctx context.Context, identity *auth.Identity) (*Tenant, error) {
	scope, err := identity.TenantScope()
	if err != nil {
		return nil, err
	}

	var t *Tenant
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		tenantID, _ := scope.TenantID()
		var err error
		t, err = s.store.GetByID(ctx, q, scope, tenantID)
		return err
	})
	if apperror.KindOf(err) == apperror.KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeactivateExpired persists the expired-to-inactive transition for the
// caller's tenant. changed is false when another request got there first.
func (s *Service) DeactivateExpired(ctx context.Context, identity *auth.Identity, t *Tenant, source string) (changed bool, err error) {
	scope, err := identity.TenantScope()
	if err != nil {
		return false, err
	}

	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		changed, err = s.store.Deactivate(ctx, q, scope, t.ID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("deactivating tenant %d: %w", t.ID, err)
	}

	if changed {
		t.IsActive = false
		s.audit.Log(ctx, audit.Event{
			TenantID:     audit.ID(t.ID),
			UserID:       audit.ID(scope.ActorID()),
			Action:       audit.ActionTenantDeactivated,
			ResourceType: audit.ResourceTenant,
			ResourceID:   audit.ID(t.ID),
			Metadata: map[string]any{
				audit.MetadataReason:    "subscription_expired",
				audit.MetadataExpiredAt: t.SubscriptionEndsAt,
			},
			Source: source,
		})
		s.logger.Info("tenant deactivated", "tenant_id", t.ID, "source", source)
	}
	return changed, nil
}
