package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/database"
	"github.com/jackc/pgx/v5"
)

const tenantColumns = `t.id, t.name, t.subdomain, t.company_identifier, t.is_active,
	t.subscription_ends_at, t.created_at, t.created_by, t.updated_at, t.updated_by`

// Store handles tenant database operations. Tenants are owned by their own
// id: a tenant scope sees exactly one row.
type Store struct{}

// NewStore creates a new tenant store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) filter(scope database.Scope) (*database.Filter, error) {
	f, err := scope.Unowned("t")
	if err != nil {
		return nil, err
	}
	if tenantID, ok := scope.TenantID(); ok {
		f.Eq("id", tenantID)
	}
	return f, nil
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.CompanyIdentifier, &t.IsActive,
		&t.SubscriptionEndsAt, &t.CreatedAt, &t.CreatedBy, &t.UpdatedAt, &t.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns every tenant visible in scope, inactive ones included, ordered
// by name.
func (s *Store) List(ctx context.Context, q database.Querier, scope database.Scope) ([]Tenant, error) {
	f, err := s.filter(scope)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants t WHERE `+f.SQL()+` ORDER BY t.name, t.id`,
		f.Args()...)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	tenants := []Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// GetByID returns the tenant or a NotFound error.
func (s *Store) GetByID(ctx context.Context, q database.Querier, scope database.Scope, id int64) (*Tenant, error) {
	return s.get(ctx, q, scope, id, "")
}

// GetByIDForUpdate is GetByID with a row lock held until the transaction ends.
func (s *Store) GetByIDForUpdate(ctx context.Context, q database.Querier, scope database.Scope, id int64) (*Tenant, error) {
	return s.get(ctx, q, scope, id, " FOR UPDATE")
}

func (s *Store) get(ctx context.Context, q database.Querier, scope database.Scope, id int64, lock string) (*Tenant, error) {
	f, err := s.filter(scope)
	if err != nil {
		return nil, err
	}
	f.Eq("id", id)

	t, err := scanTenant(q.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants t WHERE `+f.SQL()+lock,
		f.Args()...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("Tenant", id)
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return t, nil
}

// SubdomainExists reports whether a live tenant in scope already uses
// subdomain.
func (s *Store) SubdomainExists(ctx context.Context, q database.Querier, scope database.Scope, subdomain string) (bool, error) {
	f, err := s.filter(scope)
	if err != nil {
		return false, err
	}
	f.Eq("subdomain", subdomain)

	var exists bool
	if err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants t WHERE `+f.SQL()+`)`,
		f.Args()...).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking subdomain: %w", err)
	}
	return exists, nil
}

// Create inserts an active tenant and returns its id.
func (s *Store) Create(ctx context.Context, q database.Querier, scope database.Scope, nt auth.NewTenant) (int64, error) {
	if !scope.Valid() {
		return 0, database.ErrNoScope
	}

	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO tenants (name, subdomain, company_identifier, is_active, subscription_ends_at, created_by)
		 VALUES ($1, $2, $3, TRUE, $4, $5)
		 RETURNING id`,
		nt.Name, nt.Subdomain, nt.CompanyIdentifier, nt.SubscriptionEndsAt, scope.Actor(),
	).Scan(&id)
	if err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return 0, apperror.Duplicate("Tenant", "Subdomain", nt.Subdomain)
		}
		return 0, fmt.Errorf("creating tenant: %w", err)
	}
	return id, nil
}

// Update writes every mutable column of t and stamps updated_at/updated_by.
func (s *Store) Update(ctx context.Context, q database.Querier, scope database.Scope, t *Tenant) error {
	f, err := s.filter(scope)
	if err != nil {
		return err
	}
	f.Eq("id", t.ID)

	sql := `UPDATE tenants t SET
		name = ` + f.Arg(t.Name) + `,
		subdomain = ` + f.Arg(t.Subdomain) + `,
		company_identifier = ` + f.Arg(t.CompanyIdentifier) + `,
		is_active = ` + f.Arg(t.IsActive) + `,
		subscription_ends_at = ` + f.Arg(t.SubscriptionEndsAt) + `,
		updated_at = now(),
		updated_by = ` + f.Arg(scope.Actor()) + `
		WHERE ` + f.SQL() + `
		RETURNING t.updated_at, t.updated_by`

	err = q.QueryRow(ctx, sql, f.Args()...).Scan(&t.UpdatedAt, &t.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("Tenant", t.ID)
		}
		if _, ok := database.UniqueViolation(err); ok {
			return apperror.Duplicate("Tenant", "Subdomain", t.Subdomain)
		}
		return fmt.Errorf("updating tenant: %w", err)
	}
	return nil
}

// SoftDelete marks the tenant deleted and inactive.
func (s *Store) SoftDelete(ctx context.Context, q database.Querier, scope database.Scope, id int64) error {
	f, err := s.filter(scope)
	if err != nil {
		return err
	}
	f.Eq("id", id)

	tag, err := q.Exec(ctx,
		`UPDATE tenants t SET deleted_at = now(), deleted_by = `+f.Arg(scope.Actor())+`, is_active = FALSE
		 WHERE `+f.SQL(),
		f.Args()...)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("Tenant", id)
	}
	return nil
}

// Deactivate flips is_active off. changed is false when the tenant was
// already inactive or is not visible in scope.
func (s *Store) Deactivate(ctx context.Context, q database.Querier, scope database.Scope, id int64) (changed bool, err error) {
	f, err := s.filter(scope)
	if err != nil {
		return false, err
	}
	f.Eq("id", id)
	f.Where(f.Col("is_active"))

	tag, err := q.Exec(ctx,
		`UPDATE tenants t SET is_active = FALSE, updated_at = now(), updated_by = `+f.Arg(scope.Actor())+`
		 WHERE `+f.SQL(),
		f.Args()...)
	if err != nil {
		return false, fmt.Errorf("deactivating tenant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
