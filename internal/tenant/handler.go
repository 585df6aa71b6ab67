package tenant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/auth"
)

const maxBodyBytes = 10 << 10

// Handler handles tenant HTTP endpoints. Routes require an authenticated
// identity, applied externally via middleware.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a new tenant handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes registers tenant routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /tenants", h.HandleList)
	mux.HandleFunc("GET /tenants/{id}", h.HandleGet)
	mux.HandleFunc("PUT /tenants/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /tenants/{id}", h.HandleDelete)
	mux.HandleFunc("POST /tenants/{id}/renew", h.HandleRenew)
}

// HandleList returns every tenant. Superadmin only.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.List(r.Context(), auth.GetIdentity(r.Context()))
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

// HandleGet returns a tenant by ID.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	t, err := h.svc.Get(r.Context(), auth.GetIdentity(r.Context()), id)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	var in UpdateTenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	t, err := h.svc.Update(r.Context(), auth.GetIdentity(r.Context()), id, in)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	if err := h.svc.Delete(r.Context(), auth.GetIdentity(r.Context()), id); err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRenew extends a tenant's subscription.
// POST /tenants/{id}/renew {"months": 12}
func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	var in RenewInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	t, err := h.svc.Renew(r.Context(), auth.GetIdentity(r.Context()), id, in)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.InvalidField("id", "id must be a positive integer")
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.InvalidField("body", "request body too large")
		}
		return apperror.InvalidField("body", "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
