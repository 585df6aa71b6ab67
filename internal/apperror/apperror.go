// Package apperror defines the classified failures raised by services and
// the single translator that turns them into HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failure. The zero value is Unclassified.
type Kind int

const (
	KindUnclassified Kind = iota
	KindNotFound
	KindDuplicate
	KindUnauthorized
	KindForbidden
	KindSubscriptionExpired
	KindBusinessRule
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindSubscriptionExpired:
		return "subscription_expired"
	case KindBusinessRule:
		return "business_rule"
	case KindValidation:
		return "validation"
	default:
		return "unclassified"
	}
}

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicate:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindSubscriptionExpired:
		return http.StatusPaymentRequired
	case KindBusinessRule, KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Only the fields relevant to Kind are set.
type Error struct {
	Kind    Kind
	Message string

	Entity string
	Field  string
	Value  string
	ID     any

	Rule   string
	Fields map[string][]string

	ExpiredAt  time.Time
	TenantName string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindForbidden})
// works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.cause == nil
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnclassified
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// NotFound reports a missing entity looked up by id.
func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s with the id: %v not found", entity, id),
		Entity:  entity,
		ID:      id,
	}
}

// Duplicate reports a uniqueness violation.
func Duplicate(entity, field, value string) *Error {
	return &Error{
		Kind:    KindDuplicate,
		Message: fmt.Sprintf("%s with %s '%s' already exists", entity, field, value),
		Entity:  entity,
		Field:   field,
		Value:   value,
	}
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Forbidden reports an authenticated caller acting outside its entitlement.
func Forbidden(message string) *Error {
	if message == "" {
		message = "You are not authorized to perform this action"
	}
	return &Error{Kind: KindForbidden, Message: message}
}

// SubscriptionExpired reports a lapsed billing period.
func SubscriptionExpired(expiredAt time.Time, tenantName string) *Error {
	return &Error{
		Kind:       KindSubscriptionExpired,
		Message:    "Subscription expired. Please renew to continue.",
		ExpiredAt:  expiredAt,
		TenantName: tenantName,
	}
}

// BusinessRule reports a violated domain rule.
func BusinessRule(rule, message string) *Error {
	return &Error{Kind: KindBusinessRule, Message: message, Rule: rule}
}

// Validation reports per-field input errors.
func Validation(fields map[string][]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "One or more validation failures have occurred",
		Fields:  fields,
	}
}

// InvalidField reports a single invalid field.
func InvalidField(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Fields:  map[string][]string{field: {message}},
	}
}

// Wrap attaches cause to a classified error, keeping its kind and message.
func Wrap(e *Error, cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}
