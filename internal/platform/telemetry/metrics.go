package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// HTTPRequestsTotal counts requests by method and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatehouse_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AuthAttemptsTotal counts register and login outcomes.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_auth_attempts_total",
			Help: "Authentication attempts",
		},
		[]string{"operation", "outcome"},
	)

	// SubscriptionGateTotal counts gate decisions: allowed, bypass, expired,
	// inactive, missing.
	SubscriptionGateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_subscription_gate_total",
			Help: "Subscription gate decisions",
		},
		[]string{"decision"},
	)

	TenantDeactivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_tenant_deactivations_total",
			Help: "Tenants deactivated on subscription expiry",
		},
		[]string{"source"},
	)

	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"policy"},
	)

	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatehouse_audit_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AuthAttemptsTotal,
		SubscriptionGateTotal,
		TenantDeactivationsTotal,
		RateLimitRejectedTotal,
		AuditDroppedTotal,
	)
}
