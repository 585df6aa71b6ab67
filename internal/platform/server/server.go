package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/audit"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/middleware"
	"github.com/gatehouse-io/gatehouse/internal/ratelimit"
	"github.com/gatehouse-io/gatehouse/internal/subscription"
	"github.com/gatehouse-io/gatehouse/internal/tenant"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether the database is reachable. *pgxpool.Pool implements
// it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all injected dependencies for the server. Nil handlers
// leave their routes unregistered.
type Dependencies struct {
	DB            Pinger
	Tokens        *auth.TokenService
	AuthHandler   *auth.Handler
	TenantHandler *tenant.Handler
	UserHandler   *tenant.UserHandler
	AuditHandler  *audit.Handler
	Gate          *subscription.Gate
	// Limiter enables rate limiting with Policies when set.
	Limiter            ratelimit.Limiter
	Policies           ratelimit.Policies
	ServeMetrics       bool
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	db           Pinger
	handler      http.Handler
	logger       *slog.Logger
}

func New(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := func(p ratelimit.Policy, key ratelimit.KeyFunc) func(http.Handler) http.Handler {
		if deps.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return ratelimit.Middleware(deps.Limiter, p, key, logger)
	}

	// Protected routes: bearer token, then subscription gate, then the
	// per-user limit.
	protectedMux := http.NewServeMux()
	var protectedHandler http.Handler = protectedMux
	protectedHandler = limit(deps.Policies.API, ratelimit.ByUserOrIP)(protectedHandler)
	if deps.Gate != nil {
		protectedHandler = deps.Gate.Middleware(protectedHandler)
	}
	if deps.Tokens != nil {
		protectedHandler = auth.Middleware(deps.Tokens, logger)(protectedHandler)
	}

	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		protectedMux: protectedMux,
		db:           deps.DB,
		logger:       logger,
	}

	// Public routes
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.ServeMetrics {
		topMux.Handle("GET /metrics", promhttp.Handler())
	}
	if deps.AuthHandler != nil {
		topMux.Handle("POST /auth/login",
			limit(deps.Policies.Auth, ratelimit.ByIP)(http.HandlerFunc(deps.AuthHandler.HandleLogin)),
		)
		topMux.Handle("POST /auth/register",
			limit(deps.Policies.Register, ratelimit.ByIP)(http.HandlerFunc(deps.AuthHandler.HandleRegister)),
		)
	}

	// Tenant administration; destructive routes carry the critical limit.
	if h := deps.TenantHandler; h != nil {
		critical := limit(deps.Policies.Critical, ratelimit.ByIP)
		protectedMux.HandleFunc("GET /tenants", h.HandleList)
		protectedMux.HandleFunc("GET /tenants/{id}", h.HandleGet)
		protectedMux.HandleFunc("PUT /tenants/{id}", h.HandleUpdate)
		protectedMux.Handle("DELETE /tenants/{id}", critical(http.HandlerFunc(h.HandleDelete)))
		protectedMux.Handle("POST /tenants/{id}/renew", critical(http.HandlerFunc(h.HandleRenew)))
	}
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterRoutes(protectedMux)
	}
	if deps.AuditHandler != nil {
		deps.AuditHandler.RegisterRoutes(protectedMux)
	}

	// All other routes go through the protected chain
	topMux.Handle("/", protectedHandler)

	var handler http.Handler = topMux
	mws := []func(http.Handler) http.Handler{}
	if len(deps.CORSAllowedOrigins) > 0 {
		mws = append(mws, middleware.CORS(deps.CORSAllowedOrigins))
	}
	mws = append(mws, middleware.RequestID, middleware.Logging(logger), middleware.Metrics)
	handler = middleware.Chain(handler, mws...)

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// NewMetrics serves only GET /metrics, for a separate listener.
func NewMetrics(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		handler: mux,
		logger:  logger,
	}
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	s.logger.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("server shutting down", "addr", listener.Addr().String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database not connected",
		})
		return
	}

	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
