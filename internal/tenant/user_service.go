package tenant

import (
	"context"
	"log/slog"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/audit"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/database"
	"github.com/gatehouse-io/gatehouse/internal/platform/validate"
)

// Users is the user storage used by UserService. *UserStore implements it.
type Users interface {
	List(ctx context.Context, q database.Querier, scope database.Scope) ([]User, error)
	GetByID(ctx context.Context, q database.Querier, scope database.Scope, id int64) (*User, error)
	Exists(ctx context.Context, q database.Querier, scope database.Scope, id int64) (bool, error)
	EmailExists(ctx context.Context, q database.Querier, scope database.Scope, email string, excludeID int64) (bool, error)
	UsernameExists(ctx context.Context, q database.Querier, scope database.Scope, username string, excludeID int64) (bool, error)
	Create(ctx context.Context, q database.Querier, scope database.Scope, tenantID int64, u *User) error
	Update(ctx context.Context, q database.Querier, scope database.Scope, u *User) error
	SoftDelete(ctx context.Context, q database.Querier, scope database.Scope, id int64) error
}

type CreateUserInput struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	Email       string `json:"email" validate:"required,email,max=320"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	FirstName   string `json:"firstName" validate:"required,min=3,max=50"`
	LastName    string `json:"lastName" validate:"required,min=3,max=50"`
	PhoneNumber string `json:"phoneNumber" validate:"required,min=10,max=25"`
}

// UpdateUserInput is a partial update; nil fields are left unchanged.
type UpdateUserInput struct {
	Username    *string `json:"username" validate:"omitempty,min=3,max=50"`
	Email       *string `json:"email" validate:"omitempty,email,max=320"`
	Password    *string `json:"password" validate:"omitempty,min=8,max=72"`
	FirstName   *string `json:"firstName" validate:"omitempty,min=3,max=50"`
	LastName    *string `json:"lastName" validate:"omitempty,min=3,max=50"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,min=10,max=25"`
	IsActive    *bool   `json:"isActive"`
}

// UserService manages the users of the caller's tenant. Superadmins read and
// modify users across tenants but create them only in their own.
type UserService struct {
	tx     database.Transactor
	store  Users
	hasher auth.PasswordHasher
	audit  audit.Logger
	logger *slog.Logger
}

func NewUserService(tx database.Transactor, store Users, hasher auth.PasswordHasher, auditLog audit.Logger, logger *slog.Logger) *UserService {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{tx: tx, store: store, hasher: hasher, audit: auditLog, logger: logger}
}

func (s *UserService) List(ctx context.Context, identity *auth.Identity) ([]User, error) {
	scope, err := identity.Scope()
	if err != nil {
		return nil, err
	}

	var users []User
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		users, err = s.store.List(ctx, q, scope)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("listed users", "count", len(users), "scope", scope.String())
	return users, nil
}

func (s *UserService) Get(ctx context.Context, identity *auth.Identity, id int64) (*User, error) {
	scope, err := identity.Scope()
	if err != nil {
		return nil, err
	}

	var u *User
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		u, err = s.store.GetByID(ctx, q, scope, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Exists reports whether id names a live user visible to the caller.
func (s *UserService) Exists(ctx context.Context, identity *auth.Identity, id int64) (bool, error) {
	scope, err := identity.Scope()
	if err != nil {
		return false, err
	}

	var exists bool
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		exists, err = s.store.Exists(ctx, q, scope, id)
		return err
	})
	return exists, err
}

// Create adds a user to the caller's own tenant.
func (s *UserService) Create(ctx context.Context, identity *auth.Identity, in CreateUserInput) (*User, error) {
	scope, err := identity.TenantScope()
	if err != nil {
		return nil, err
	}
	in.Email = auth.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	tenantID, _ := scope.TenantID()
	u := &User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: digest,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PhoneNumber:  in.PhoneNumber,
	}
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		taken, err := s.store.EmailExists(ctx, q, scope, u.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Duplicate("User", "Email", u.Email)
		}
		taken, err = s.store.UsernameExists(ctx, q, scope, u.Username, 0)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Duplicate("User", "Username", u.Username)
		}
		return s.store.Create(ctx, q, scope, tenantID, u)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID:     audit.ID(tenantID),
		UserID:       audit.ID(scope.ActorID()),
		Action:       audit.ActionUserCreated,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ID(u.ID),
		Metadata:     map[string]any{audit.MetadataEmail: u.Email},
		Source:       audit.SourceAPI,
	})
	s.logger.Info("user created", "tenant_id", tenantID, "user_id", u.ID, "actor_id", scope.ActorID())
	return u, nil
}

// Update applies in to a user visible to the caller. Uniqueness of a new
// username is checked within the user's own tenant.
func (s *UserService) Update(ctx context.Context, identity *auth.Identity, id int64, in UpdateUserInput) (*User, error) {
	scope, err := identity.Scope()
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		normalized := auth.NormalizeEmail(*in.Email)
		in.Email = &normalized
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	var digest string
	if in.Password != nil {
		if digest, err = s.hasher.Hash(*in.Password); err != nil {
			return nil, err
		}
	}

	var u *User
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		u, err = s.store.GetByID(ctx, q, scope, id)
		if err != nil {
			return err
		}

		if in.Email != nil && *in.Email != u.Email {
			taken, err := s.store.EmailExists(ctx, q, scope, *in.Email, u.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperror.Duplicate("User", "Email", *in.Email)
			}
			u.Email = *in.Email
		}
		if in.Username != nil && *in.Username != u.Username {
			owner, err := database.ForTenant(u.TenantID, scope.ActorID())
			if err != nil {
				return err
			}
			taken, err := s.store.UsernameExists(ctx, q, owner, *in.Username, u.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperror.Duplicate("User", "Username", *in.Username)
			}
			u.Username = *in.Username
		}
		if in.FirstName != nil {
			u.FirstName = *in.FirstName
		}
		if in.LastName != nil {
			u.LastName = *in.LastName
		}
		if in.PhoneNumber != nil {
			u.PhoneNumber = *in.PhoneNumber
		}
		if in.IsActive != nil {
			u.IsActive = *in.IsActive
		}
		if digest != "" {
			u.PasswordHash = digest
		}
		return s.store.Update(ctx, q, scope, u)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID:     audit.ID(u.TenantID),
		UserID:       audit.ID(scope.ActorID()),
		Action:       audit.ActionUserUpdated,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ID(u.ID),
		Source:       audit.SourceAPI,
	})
	s.logger.Info("user updated", "tenant_id", u.TenantID, "user_id", u.ID, "actor_id", scope.ActorID())
	return u, nil
}

// Delete soft-deletes a user visible to the caller. Callers cannot delete
// themselves.
func (s *UserService) Delete(ctx context.Context, identity *auth.Identity, id int64) error {
	scope, err := identity.Scope()
	if err != nil {
		return err
	}
	if id == scope.ActorID() {
		return apperror.BusinessRule("self_delete", "You cannot delete your own account")
	}

	var tenantID int64
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		u, err := s.store.GetByID(ctx, q, scope, id)
		if err != nil {
			return err
		}
		tenantID = u.TenantID
		return s.store.SoftDelete(ctx, q, scope, id)
	})
	if err != nil {
		return err
	}

	s.audit.Log(ctx, audit.Event{
		TenantID:     audit.ID(tenantID),
		UserID:       audit.ID(scope.ActorID()),
		Action:       audit.ActionUserDeleted,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ID(id),
		Source:       audit.SourceAPI,
	})
	s.logger.Info("user deleted", "tenant_id", tenantID, "user_id", id, "actor_id", scope.ActorID())
	return nil
}
