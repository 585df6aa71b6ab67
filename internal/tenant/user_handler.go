package tenant

import (
	"log/slog"
	"net/http"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/auth"
)

// UserHandler handles user HTTP endpoints within the caller's tenant.
type UserHandler struct {
	svc    *UserService
	logger *slog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc *UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{svc: svc, logger: logger}
}

func (h *UserHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /users", h.HandleList)
	mux.HandleFunc("POST /users", h.HandleCreate)
	mux.HandleFunc("GET /users/{id}", h.HandleGet)
	mux.HandleFunc("GET /users/{id}/exists", h.HandleExists)
	mux.HandleFunc("PUT /users/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /users/{id}", h.HandleDelete)
}

// HandleList returns all users visible to the caller.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context(), auth.GetIdentity(r.Context()))
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, viewOf(&users[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleCreate creates a new user within the authenticated tenant.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	u, err := h.svc.Create(r.Context(), auth.GetIdentity(r.Context()), in)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(u))
}

// HandleGet returns a user by ID.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	u, err := h.svc.Get(r.Context(), auth.GetIdentity(r.Context()), id)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(u))
}

func (h *UserHandler) HandleExists(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	exists, err := h.svc.Exists(r.Context(), auth.GetIdentity(r.Context()), id)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	var in UpdateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	u, err := h.svc.Update(r.Context(), auth.GetIdentity(r.Context()), id, in)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(u))
}

func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
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
