package apperror

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Envelope is the JSON body returned for every failure.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

type notFoundDetails struct {
	EntityName string `json:"entityName"`
	EntityID   any    `json:"entityId"`
}

type duplicateDetails struct {
	EntityName string `json:"entityName"`
	Field      string `json:"field"`
	Value      string `json:"value"`
}

type ruleDetails struct {
	Rule string `json:"rule"`
}

type validationDetails struct {
	Errors map[string][]string `json:"errors"`
}

type subscriptionDetails struct {
	ExpiredAt  time.Time `json:"expiredAt"`
	TenantName string    `json:"tenantName"`
}

// ToEnvelope builds the response body for err. Unclassified errors never leak
// their message.
func ToEnvelope(err error) Envelope {
	e, ok := As(err)
	if !ok || e.Kind == KindUnclassified {
		return Envelope{
			StatusCode: http.StatusInternalServerError,
			Message:    "An internal server error occurred",
		}
	}

	env := Envelope{StatusCode: e.Kind.Status(), Message: e.Message}
	switch e.Kind {
	case KindNotFound:
		env.Details = notFoundDetails{EntityName: e.Entity, EntityID: e.ID}
	case KindDuplicate:
		env.Details = duplicateDetails{EntityName: e.Entity, Field: e.Field, Value: e.Value}
	case KindBusinessRule:
		env.Details = ruleDetails{Rule: e.Rule}
	case KindValidation:
		env.Details = validationDetails{Errors: e.Fields}
	case KindUnauthorized:
		env.Message = "Not authorized. you must sign in"
	case KindSubscriptionExpired:
		env.Details = subscriptionDetails{ExpiredAt: e.ExpiredAt, TenantName: e.TenantName}
	}
	return env
}

// Write translates err into its status code and envelope. Server errors are
// logged with full detail; client errors at warn level.
func Write(w http.ResponseWriter, logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	env := ToEnvelope(err)
	if env.StatusCode >= http.StatusInternalServerError {
		logger.Error("internal server error", "error", err)
	} else {
		logger.Warn("client error", "status", env.StatusCode, "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)
	_ = json.NewEncoder(w).Encode(env)
}
