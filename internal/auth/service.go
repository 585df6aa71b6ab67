package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/audit"
	"github.com/gatehouse-io/gatehouse/internal/platform/database"
	"github.com/gatehouse-io/gatehouse/internal/platform/telemetry"
	"github.com/gatehouse-io/gatehouse/internal/platform/validate"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgUserInactive       = "User account is inactive"
	msgTenantInactive     = "Organization is inactive"
)

// NewTenant is the tenant row created by registration.
type NewTenant struct {
	Name               string
	Subdomain          string
	CompanyIdentifier  *string
	SubscriptionEndsAt time.Time
}

// NewAccount is the owner row created by registration.
type NewAccount struct {
	TenantID     int64
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	PhoneNumber  string
}

// LoginAccount is an active user found by the login lookup, with its tenant.
// Tenant is nil when the tenant row is missing or soft-deleted.
type LoginAccount struct {
	UserID       int64
	TenantID     int64
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsActive     bool
	Tenant       *LoginTenant
}

type LoginTenant struct {
	ID                 int64
	Name               string
	IsActive           bool
	SubscriptionEndsAt *time.Time
}

// Accounts is the storage used by registration and login. Every method
// except FindActiveByEmailForLogin is bound to a data scope.
type Accounts interface {
	SubdomainExists(ctx context.Context, q database.Querier, scope database.Scope, subdomain string) (bool, error)
	EmailExists(ctx context.Context, q database.Querier, scope database.Scope, email string) (bool, error)
	CreateTenant(ctx context.Context, q database.Querier, scope database.Scope, t NewTenant) (int64, error)
	CreateAccount(ctx context.Context, q database.Querier, scope database.Scope, a NewAccount) (int64, error)
	// FindActiveByEmailForLogin ignores tenant scoping, excludes deleted and
	// inactive users, and returns nil when nothing matches.
	FindActiveByEmailForLogin(ctx context.Context, q database.Querier, email string) (*LoginAccount, error)
	DeactivateTenant(ctx context.Context, q database.Querier, scope database.Scope, tenantID int64) (bool, error)
}

// PasswordHasher is satisfied by *Hasher.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
	DummyHash() string
}

// RoleProvider supplies the roles and permissions embedded in a session. It
// is keyed by user id; callers control their own email.
type RoleProvider interface {
	RolesFor(ctx context.Context, userID, tenantID int64) (roles, permissions []string, err error)
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	TenantName        string  `json:"tenantName" validate:"required,min=3,max=255"`
	Subdomain         string  `json:"subdomain" validate:"required,min=3,max=100,subdomain"`
	CompanyIdentifier *string `json:"companyIdentifier" validate:"omitempty,max=50"`
	Username          string  `json:"username" validate:"required,min=3,max=50"`
	FirstName         string  `json:"firstName" validate:"required,min=2,max=50"`
	LastName          string  `json:"lastName" validate:"required,min=2,max=50"`
	PhoneNumber       string  `json:"phoneNumber" validate:"required,min=10,max=25"`
	Email             string  `json:"email" validate:"required,email,max=320"`
	Password          string  `json:"password" validate:"required,min=8,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,max=72"`
}

// UserInfo summarises the signed-in identity.
type UserInfo struct {
	ID         int64    `json:"id"`
	TenantID   int64    `json:"tenantId"`
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	FullName   string   `json:"fullName"`
	TenantName string   `json:"tenantName"`
	Roles      []string `json:"roles"`
}

type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserInfo  `json:"user"`
}

// ServiceConfig wires the authentication service. Now defaults to time.Now.
type ServiceConfig struct {
	Tx          database.Transactor
	Accounts    Accounts
	Hasher      PasswordHasher
	Tokens      *TokenService
	Roles       RoleProvider
	Audit       audit.Logger
	Logger      *slog.Logger
	TrialPeriod time.Duration
	Now         func() time.Time
}

// Service implements registration and login.
type Service struct {
	tx       database.Transactor
	accounts Accounts
	hasher   PasswordHasher
	tokens   *TokenService
	roles    RoleProvider
	audit    audit.Logger
	logger   *slog.Logger
	trial    time.Duration
	now      func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		tx:       cfg.Tx,
		accounts: cfg.Accounts,
		hasher:   cfg.Hasher,
		tokens:   cfg.Tokens,
		roles:    cfg.Roles,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
		trial:    cfg.TrialPeriod,
		now:      cfg.Now,
	}
	if s.audit == nil {
		s.audit = audit.NopLogger{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.trial <= 0 {
		s.trial = 7 * 24 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NormalizeEmail is applied to every email before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a tenant and its owner in one transaction and signs the
// owner in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Subdomain = strings.TrimSpace(in.Subdomain)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	endsAt := s.now().UTC().Add(s.trial)
	scope := database.CrossTenant(0)

	var tenantID, userID int64
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		taken, err := s.accounts.SubdomainExists(ctx, q, scope, in.Subdomain)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Duplicate("Tenant", "Subdomain", in.Subdomain)
		}

		tenantID, err = s.accounts.CreateTenant(ctx, q, scope, NewTenant{
			Name:               in.TenantName,
			Subdomain:          in.Subdomain,
			CompanyIdentifier:  in.CompanyIdentifier,
			SubscriptionEndsAt: endsAt,
		})
		if err != nil {
			return err
		}

		taken, err = s.accounts.EmailExists(ctx, q, scope, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Duplicate("User", "Email", in.Email)
		}

		// The tenant is new, so no username can collide yet.
		userID, err = s.accounts.CreateAccount(ctx, q, scope, NewAccount{
			TenantID:     tenantID,
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: digest,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			PhoneNumber:  in.PhoneNumber,
		})
		return err
	})
	if err != nil {
		telemetry.AuthAttemptsTotal.WithLabelValues("register", outcome(err)).Inc()
		return nil, err
	}

	identity := &Identity{
		UserID:      userID,
		TenantID:    tenantID,
		Username:    in.Username,
		Email:       in.Email,
		FullName:    fullName(in.FirstName, in.LastName),
		TenantName:  in.TenantName,
		Roles:       []string{RoleOwner},
		Permissions: []string{},
	}
	result, err := s.issue(identity)
	if err != nil {
		return nil, err
	}

	telemetry.AuthAttemptsTotal.WithLabelValues("register", "success").Inc()
	s.audit.Log(ctx, audit.Event{
		TenantID:     audit.ID(tenantID),
		UserID:       audit.ID(userID),
		Action:       audit.ActionTenantRegistered,
		ResourceType: audit.ResourceTenant,
		ResourceID:   audit.ID(tenantID),
		Metadata:     map[string]any{audit.MetadataSubdomain: in.Subdomain},
		Source:       audit.SourceAPI,
	})
	s.logger.Info("tenant registered", "tenant_id", tenantID, "user_id", userID, "subdomain", in.Subdomain)

	return result, nil
}

// Login verifies credentials and issues a session token. An expired
// subscription deactivates the tenant before SubscriptionExpired is returned.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	var account *LoginAccount
	err := s.tx.WithScope(ctx, database.CrossTenant(0), func(ctx context.Context, q database.Querier) error {
		var err error
		account, err = s.accounts.FindActiveByEmailForLogin(ctx, q, in.Email)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	digest := s.hasher.DummyHash()
	if account != nil {
		digest = account.PasswordHash
	}
	matched := s.hasher.Verify(in.Password, digest)

	switch {
	case account == nil || !matched:
		return nil, s.loginFailed(ctx, account, "invalid_credentials", msgInvalidCredentials)
	case !account.IsActive:
		return nil, s.loginFailed(ctx, account, "user_inactive", msgUserInactive)
	case account.Tenant == nil || !account.Tenant.IsActive:
		return nil, s.loginFailed(ctx, account, "tenant_inactive", msgTenantInactive)
	}

	tenant := account.Tenant
	if ends := tenant.SubscriptionEndsAt; ends != nil && ends.Before(s.now()) {
		if err := s.deactivate(ctx, account); err != nil {
			return nil, err
		}
		telemetry.AuthAttemptsTotal.WithLabelValues("login", "subscription_expired").Inc()
		return nil, apperror.SubscriptionExpired(*ends, tenant.Name)
	}

	roles, permissions, err := s.roles.RolesFor(ctx, account.UserID, account.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolving roles: %w", err)
	}

	result, err := s.issue(&Identity{
		UserID:      account.UserID,
		TenantID:    account.TenantID,
		Username:    account.Username,
		Email:       account.Email,
		FullName:    fullName(account.FirstName, account.LastName),
		TenantName:  tenant.Name,
		Roles:       roles,
		Permissions: permissions,
	})
	if err != nil {
		return nil, err
	}

	telemetry.AuthAttemptsTotal.WithLabelValues("login", "success").Inc()
	s.audit.Log(ctx, audit.Event{
		TenantID: audit.ID(account.TenantID),
		UserID:   audit.ID(account.UserID),
		Action:   audit.ActionLoginSucceeded,
		Source:   audit.SourceAPI,
	})
	return result, nil
}

func (s *Service) deactivate(ctx context.Context, account *LoginAccount) error {
	scope, err := database.ForTenant(account.TenantID, account.UserID)
	if err != nil {
		return err
	}

	var changed bool
	err = s.tx.WithScope(ctx, scope, func(ctx context.Context, q database.Querier) error {
		var err error
		changed, err = s.accounts.DeactivateTenant(ctx, q, scope, account.TenantID)
		return err
	})
	if err != nil {
		return fmt.Errorf("deactivating tenant %d: %w", account.TenantID, err)
	}

	if changed {
		telemetry.TenantDeactivationsTotal.WithLabelValues("login").Inc()
		s.audit.Log(ctx, audit.Event{
			TenantID:     audit.ID(account.TenantID),
			UserID:       audit.ID(account.UserID),
			Action:       audit.ActionTenantDeactivated,
			ResourceType: audit.ResourceTenant,
			ResourceID:   audit.ID(account.TenantID),
			Metadata: map[string]any{
				audit.MetadataReason:    "subscription_expired",
				audit.MetadataExpiredAt: account.Tenant.SubscriptionEndsAt,
			},
			Source: audit.SourceAPI,
		})
		s.logger.Info("tenant deactivated on login", "tenant_id", account.TenantID)
	}
	return nil
}

func (s *Service) loginFailed(ctx context.Context, account *LoginAccount, reason, message string) error {
	telemetry.AuthAttemptsTotal.WithLabelValues("login", reason).Inc()

	event := audit.Event{
		Action:   audit.ActionLoginFailed,
		Metadata: map[string]any{audit.MetadataReason: reason},
		Source:   audit.SourceAPI,
	}
	if account != nil && reason != "invalid_credentials" {
		event.TenantID = audit.ID(account.TenantID)
		event.UserID = audit.ID(account.UserID)
	}
	s.audit.Log(ctx, event)

	return apperror.Unauthorized(message)
}

func (s *Service) issue(identity *Identity) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(identity)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User: UserInfo{
			ID:         identity.UserID,
			TenantID:   identity.TenantID,
			Username:   identity.Username,
			Email:      identity.Email,
			FullName:   identity.FullName,
			TenantName: identity.TenantName,
			Roles:      identity.Roles,
		},
	}, nil
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func outcome(err error) string {
	switch apperror.KindOf(err) {
	case apperror.KindDuplicate:
		return "duplicate"
	case apperror.KindValidation:
		return "invalid"
	default:
		return "error"
	}
}
