package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/platform/database"
)

// ScopeFunc resolves the data scope of the caller behind ctx.
type ScopeFunc func(ctx context.Context) (database.Scope, error)

// Handler serves the audit query endpoint.
type Handler struct {
	tx     database.Transactor
	store  *Store
	scope  ScopeFunc
	logger *slog.Logger
}

func NewHandler(tx database.Transactor, store *Store, scope ScopeFunc, logger *slog.Logger) *Handler {
	return &Handler{tx: tx, store: store, scope: scope, logger: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /audit/events", h.HandleListEvents)
}

// HandleListEvents returns audit events for the caller's tenant, or every
// tenant for superadmins.
// GET /audit/events?limit=50&action=user.created&after=<RFC3339>
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scope(r.Context())
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	params, err := parseListParams(r)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	var events []Record
	err = h.tx.WithScope(r.Context(), scope, func(ctx context.Context, q database.Querier) error {
		var err error
		events, err = h.store.List(ctx, q, scope, params)
		return err
	})
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func parseListParams(r *http.Request) (ListParams, error) {
	q := r.URL.Query()
	p := ListParams{
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		Limit:        50,
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			return p, apperror.InvalidField("limit", "limit must be between 1 and 200")
		}
		p.Limit = n
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return p, apperror.InvalidField("user_id", "user_id must be a positive integer")
		}
		p.UserID = id
	}
	for key, dst := range map[string]*time.Time{"after": &p.After, "before": &p.Before} {
		if raw := q.Get(key); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return p, apperror.InvalidField(key, key+" must be an RFC3339 timestamp")
			}
			*dst = t
		}
	}
	return p, nil
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
