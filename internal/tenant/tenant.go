package tenant

import "time"

// Tenant is an organization and its billing state.
type Tenant struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Subdomain          string     `json:"subdomain"`
	CompanyIdentifier  *string    `json:"companyIdentifier"`
	IsActive           bool       `json:"isActive"`
	SubscriptionEndsAt *time.Time `json:"subscriptionEndsAt"`
	CreatedAt          time.Time  `json:"createdAt"`
	CreatedBy          *int64     `json:"createdBy,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt"`
	UpdatedBy          *int64     `json:"updatedBy,omitempty"`
}

// BillingState is where a tenant sits in its subscription lifecycle.
type BillingState int

const (
	// BillingActive: subscription not ended (or open-ended) and flagged active.
	BillingActive BillingState = iota
	// BillingExpiredFlaggedActive: the subscription ended but nothing has
	// flipped the flag yet. The next gated request deactivates the tenant.
	BillingExpiredFlaggedActive
	// BillingLapsed: ended and already deactivated.
	BillingLapsed
	// BillingSuspended: inactive for a reason other than expiry.
	BillingSuspended
)

func (s BillingState) String() string {
	switch s {
	case BillingActive:
		return "active"
	case BillingExpiredFlaggedActive:
		return "expired"
	case BillingLapsed:
		return "lapsed"
	case BillingSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Expired reports whether the subscription ended strictly before now.
func (t *Tenant) Expired(now time.Time) bool {
	return t.SubscriptionEndsAt != nil && t.SubscriptionEndsAt.Before(now)
}

// BillingState derives the lifecycle state at now.
func (t *Tenant) BillingState(now time.Time) BillingState {
	switch {
	case t.Expired(now) && t.IsActive:
		return BillingExpiredFlaggedActive
	case t.Expired(now):
		return BillingLapsed
	case !t.IsActive:
		return BillingSuspended
	default:
		return BillingActive
	}
}

// addMonths adds months to t, clamping the day to the end of the target
// month, so Jan 31 + 1 month is Feb 28 (or 29).
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
