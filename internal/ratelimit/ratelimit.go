// Package ratelimit implements fixed-window request limits backed by memory
// or Redis.
package ratelimit

import (
	"context"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/platform/config"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left in the current window, rounded up to whole
// seconds and never below one.
func (d Decision) RetryAfter(now time.Time) int {
	left := d.ResetAt.Sub(now)
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter counts hits per key in fixed windows. A limit <= 0 disables the
// check.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Policy is a named limit applied to one class of endpoints.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Policies groups the endpoint classes.
type Policies struct {
	Auth     Policy
	Register Policy
	Critical Policy
	API      Policy
}

func NewPolicies(c config.RateLimitConfig) Policies {
	return Policies{
		Auth:     Policy{Name: "auth", Limit: c.Auth.Limit, Window: c.Auth.Window()},
		Register: Policy{Name: "register", Limit: c.Register.Limit, Window: c.Register.Window()},
		Critical: Policy{Name: "critical", Limit: c.Critical.Limit, Window: c.Critical.Window()},
		API:      Policy{Name: "api", Limit: c.API.Limit, Window: c.API.Window()},
	}
}
