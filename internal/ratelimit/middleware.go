package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/telemetry"
)

// KeyFunc derives the counter key for a request.
type KeyFunc func(r *http.Request) string

// ByIP keys on the client address.
func ByIP(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// ByUserOrIP keys on the authenticated user, falling back to the client
// address.
func ByUserOrIP(r *http.Request) string {
	if id := auth.GetIdentity(r.Context()); id != nil && id.UserID > 0 {
		return "user:" + strconv.FormatInt(id.UserID, 10)
	}
	return ByIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rejection struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware enforces policy per key. Limiter errors are logged and the
// request is let through.
func Middleware(l Limiter, policy Policy, key KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), policy.Name+":"+key(r), policy.Limit, policy.Window)
			if err != nil {
				logger.Warn("rate limiter unavailable", "policy", policy.Name, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := d.RetryAfter(time.Now())
			telemetry.RateLimitRejectedTotal.WithLabelValues(policy.Name).Inc()
			logger.Info("rate limited", "policy", policy.Name, "path", r.URL.Path, "retry_after", retry)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rejection{
				Message:    "Too many requests. Please try again later.",
				RetryAfter: retry,
			})
		})
	}
}
