// Package subscription blocks requests from tenants whose billing period has
// lapsed or that have been suspended.
package subscription

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/audit"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/telemetry"
	"github.com/gatehouse-io/gatehouse/internal/tenant"
)

const (
	msgTenantNotFound = "Organization not found"
	msgTenantInactive = "Organization is inactive. Please contact support."
)

// Gate decisions, as counted in gatehouse_subscription_gate_total.
const (
	DecisionAllowed  = "allowed"
	DecisionPublic   = "public"
	DecisionBypass   = "bypass"
	DecisionMissing  = "missing"
	DecisionExpired  = "expired"
	DecisionInactive = "inactive"
)

// DefaultPublicPaths are never gated.
var DefaultPublicPaths = []string{
	"/auth/login",
	"/auth/register",
	"/docs",
	"/openapi",
	"/healthz",
	"/readyz",
	"/metrics",
}

// Tenants resolves and deactivates the caller's tenant. *tenant.Service
// implements it.
type Tenants interface {
	CallerTenant(ctx context.Context, identity *auth.Identity) (*tenant.Tenant, error)
	DeactivateExpired(ctx context.Context, identity *auth.Identity, t *tenant.Tenant, source string) (bool, error)
}

// Option configures a Gate.
type Option func(*Gate)

// WithPublicPaths replaces the default allow-list.
func WithPublicPaths(paths ...string) Option {
	return func(g *Gate) {
		g.public = paths
	}
}

// WithClock sets the clock used to detect expiry.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// Gate checks the caller's tenant billing state once per request.
type Gate struct {
	tenants Tenants
	logger  *slog.Logger
	public  []string
	now     func() time.Time
}

func NewGate(tenants Tenants, logger *slog.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		tenants: tenants,
		logger:  logger,
		public:  DefaultPublicPaths,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check returns nil when the request may proceed. An expired tenant that is
// still flagged active is deactivated before the rejection is returned.
func (g *Gate) Check(ctx context.Context, identity *auth.Identity, path string) error {
	decision, err := g.check(ctx, identity, path)
	telemetry.SubscriptionGateTotal.WithLabelValues(decision).Inc()
	return err
}

func (g *Gate) check(ctx context.Context, identity *auth.Identity, path string) (string, error) {
	if g.isPublic(path) {
		return DecisionPublic, nil
	}
	if _, err := identity.RequireUserID(); err != nil {
		return DecisionMissing, err
	}
	if identity.IsSuperAdmin() {
		return DecisionBypass, nil
	}

	t, err := g.tenants.CallerTenant(ctx, identity)
	if err != nil {
		return DecisionMissing, err
	}
	if t == nil {
		return DecisionMissing, apperror.Forbidden(msgTenantNotFound)
	}

	switch t.BillingState(g.now()) {
	case tenant.BillingExpiredFlaggedActive:
		changed, err := g.tenants.DeactivateExpired(ctx, identity, t, audit.SourceGate)
		if err != nil {
			// The request is rejected regardless; the next one retries.
			g.logger.Error("deactivating expired tenant", "tenant_id", t.ID, "error", err)
		} else if changed {
			telemetry.TenantDeactivationsTotal.WithLabelValues(audit.SourceGate).Inc()
		}
		return DecisionExpired, apperror.SubscriptionExpired(*t.SubscriptionEndsAt, t.Name)
	case tenant.BillingLapsed:
		return DecisionExpired, apperror.SubscriptionExpired(*t.SubscriptionEndsAt, t.Name)
	case tenant.BillingSuspended:
		return DecisionInactive, apperror.Forbidden(msgTenantInactive)
	default:
		return DecisionAllowed, nil
	}
}

func (g *Gate) isPublic(path string) bool {
	for _, p := range g.public {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Middleware applies Check to every request. It must run after
// auth.Middleware.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Check(r.Context(), auth.GetIdentity(r.Context()), r.URL.Path); err != nil {
			apperror.Write(w, g.logger, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
