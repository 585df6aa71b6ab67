package audit

import (
	"context"
	"time"
)

// Event represents a single auditable action.
type Event struct {
	TenantID     *int64 // nil for events before a tenant is known
	UserID       *int64 // nil for anonymous or system events
	Action       string
	ResourceType string
	ResourceID   *int64
	Metadata     map[string]any
	Source       string // "api", "gate", "system"
}

// Record is a persisted event as returned by the query API.
type Record struct {
	ID           string         `json:"id"`
	TenantID     *int64         `json:"tenantId"`
	UserID       *int64         `json:"userId"`
	Action       string         `json:"action"`
	ResourceType *string        `json:"resourceType"`
	ResourceID   *int64         `json:"resourceId"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Source       string         `json:"source"`
	CreatedAt    time.Time      `json:"createdAt"`
}

const (
	ActionTenantRegistered  = "tenant.registered"
	ActionTenantUpdated     = "tenant.updated"
	ActionTenantDeleted     = "tenant.deleted"
	ActionTenantRenewed     = "tenant.renewed"
	ActionTenantDeactivated = "tenant.deactivated"

	ActionUserCreated = "user.created"
	ActionUserUpdated = "user.updated"
	ActionUserDeleted = "user.deleted"

	ActionLoginSucceeded = "auth.login_succeeded"
	ActionLoginFailed    = "auth.login_failed"
)

const (
	ResourceTenant = "tenant"
	ResourceUser   = "user"
)

const (
	SourceAPI    = "api"
	SourceGate   = "gate"
	SourceSystem = "system"
)

const (
	MetadataReason    = "reason"
	MetadataEmail     = "email"
	MetadataSubdomain = "subdomain"
	MetadataMonths    = "months"
	MetadataExpiredAt = "expired_at"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// ID returns a pointer to id, or nil for zero, for the nullable event
// columns.
func ID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
