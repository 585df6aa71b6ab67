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

const userColumns = `u.id, u.tenant_id, u.username, u.email, u.first_name, u.last_name,
	u.phone_number, u.password_hash, u.is_active, u.created_at, u.created_by,
	u.updated_at, u.updated_by`

const (
	constraintUserEmail    = "users_email_key"
	constraintUserUsername = "users_tenant_username_key"
)

// UserStore handles user database operations. Every method except
// FindActiveByEmailForLogin applies the scope's tenant and soft-delete
// predicates.
type UserStore struct{}

// NewUserStore creates a new user store.
func NewUserStore() *UserStore {
	return &UserStore{}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.PhoneNumber, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.CreatedBy,
		&u.UpdatedAt, &u.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// duplicateUser maps a unique violation on users to a Duplicate error.
func duplicateUser(err error, email, username string) error {
	constraint, ok := database.UniqueViolation(err)
	if !ok {
		return nil
	}
	if constraint == constraintUserUsername {
		return apperror.Duplicate("User", "Username", username)
	}
	return apperror.Duplicate("User", "Email", email)
}

// List returns the users visible in scope ordered by id.
func (s *UserStore) List(ctx context.Context, q database.Querier, scope database.Scope) ([]User, error) {
	f, err := scope.Owned("u")
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT `+userColumns+` FROM users u WHERE `+f.SQL()+` ORDER BY u.id`,
		f.Args()...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// GetByID returns the user or NotFound. A user owned by another tenant is
// indistinguishable from a missing one.
func (s *UserStore) GetByID(ctx context.Context, q database.Querier, scope database.Scope, id int64) (*User, error) {
	f, err := scope.Owned("u")
	if err != nil {
		return nil, err
	}
	f.Eq("id", id)

	u, err := scanUser(q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE `+f.SQL(),
		f.Args()...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("User", id)
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

func (s *UserStore) Exists(ctx context.Context, q database.Querier, scope database.Scope, id int64) (bool, error) {
	return s.exists(ctx, q, scope, "id", id, 0)
}

// EmailExists reports whether a live user in scope other than excludeID uses
// email. Pass 0 to exclude nobody.
func (s *UserStore) EmailExists(ctx context.Context, q database.Querier, scope database.Scope, email string, excludeID int64) (bool, error) {
	return s.exists(ctx, q, scope, "email", email, excludeID)
}

func (s *UserStore) UsernameExists(ctx context.Context, q database.Querier, scope database.Scope, username string, excludeID int64) (bool, error) {
	return s.exists(ctx, q, scope, "username", username, excludeID)
}

func (s *UserStore) exists(ctx context.Context, q database.Querier, scope database.Scope, column string, v any, excludeID int64) (bool, error) {
	f, err := scope.Owned("u")
	if err != nil {
		return false, err
	}
	f.Eq(column, v)
	if excludeID != 0 {
		f.Where(f.Col("id") + " <> " + f.Arg(excludeID))
	}

	var exists bool
	if err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users u WHERE `+f.SQL()+`)`,
		f.Args()...).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking user %s: %w", column, err)
	}
	return exists, nil
}

// Create inserts an active user in tenantID, which must be visible in scope.
func (s *UserStore) Create(ctx context.Context, q database.Querier, scope database.Scope, tenantID int64, u *User) error {
	if !scope.Valid() {
		return database.ErrNoScope
	}
	if scoped, ok := scope.TenantID(); ok && scoped != tenantID {
		return fmt.Errorf("%w: tenant %d outside %s", database.ErrNoScope, tenantID, scope)
	}

	err := q.QueryRow(ctx,
		`INSERT INTO users (tenant_id, username, email, password_hash, first_name, last_name, phone_number, is_active, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
		 RETURNING id, is_active, created_at, created_by`,
		tenantID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.PhoneNumber, scope.Actor(),
	).Scan(&u.ID, &u.IsActive, &u.CreatedAt, &u.CreatedBy)
	if err != nil {
		if dup := duplicateUser(err, u.Email, u.Username); dup != nil {
			return dup
		}
		return fmt.Errorf("creating user: %w", err)
	}
	u.TenantID = tenantID
	return nil
}

// Update writes the mutable columns of u and stamps updated_at/updated_by.
func (s *UserStore) Update(ctx context.Context, q database.Querier, scope database.Scope, u *User) error {
	f, err := scope.Owned("u")
	if err != nil {
		return err
	}
	f.Eq("id", u.ID)

	sql := `UPDATE users u SET
		username = ` + f.Arg(u.Username) + `,
		email = ` + f.Arg(u.Email) + `,
		password_hash = ` + f.Arg(u.PasswordHash) + `,
		first_name = ` + f.Arg(u.FirstName) + `,
		last_name = ` + f.Arg(u.LastName) + `,
		phone_number = ` + f.Arg(u.PhoneNumber) + `,
		is_active = ` + f.Arg(u.IsActive) + `,
		updated_at = now(),
		updated_by = ` + f.Arg(scope.Actor()) + `
		WHERE ` + f.SQL() + `
		RETURNING u.updated_at, u.updated_by`

	err = q.QueryRow(ctx, sql, f.Args()...).Scan(&u.UpdatedAt, &u.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("User", u.ID)
		}
		if dup := duplicateUser(err, u.Email, u.Username); dup != nil {
			return dup
		}
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// SoftDelete marks the user deleted and inactive.
func (s *UserStore) SoftDelete(ctx context.Context, q database.Querier, scope database.Scope, id int64) error {
	f, err := scope.Owned("u")
	if err != nil {
		return err
	}
	f.Eq("id", id)

	tag, err := q.Exec(ctx,
		`UPDATE users u SET deleted_at = now(), deleted_by = `+f.Arg(scope.Actor())+`, is_active = FALSE
		 WHERE `+f.SQL(),
		f.Args()...)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("User", id)
	}
	return nil
}

// FindActiveByEmailForLogin is the one lookup without a tenant predicate. It
// must run in a cross-tenant transaction so row-level security lets it
// through. Deleted and inactive users are excluded; the tenant comes back
// nil when it is missing or deleted. Returns nil, nil when nothing matches.
func (s *UserStore) FindActiveByEmailForLogin(ctx context.Context, q database.Querier, email string) (*auth.LoginAccount, error) {
	var (
		a            auth.LoginAccount
		t            auth.LoginTenant
		tenantID     *int64
		tenantName   *string
		tenantActive *bool
	)
	err := q.QueryRow(ctx,
		`SELECT u.id, u.tenant_id, u.username, u.email, u.first_name, u.last_name,
		        u.password_hash, u.is_active,
		        t.id, t.name, t.is_active, t.subscription_ends_at
		 FROM users u
		 LEFT JOIN tenants t ON t.id = u.tenant_id AND t.deleted_at IS NULL
		 WHERE u.email = $1 AND u.deleted_at IS NULL AND u.is_active`,
		email,
	).Scan(&a.UserID, &a.TenantID, &a.Username, &a.Email, &a.FirstName, &a.LastName,
		&a.PasswordHash, &a.IsActive,
		&tenantID, &tenantName, &tenantActive, &t.SubscriptionEndsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding user by email: %w", err)
	}

	if tenantID != nil {
		t.ID = *tenantID
		t.Name = *tenantName
		t.IsActive = *tenantActive
		a.Tenant = &t
	}
	return &a, nil
}
