package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
)

const maxBodyBytes = 1 << 16

// Handler serves the public registration and login endpoints.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes registers auth routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.HandleRegister)
	mux.HandleFunc("POST /auth/login", h.HandleLogin)
}

// HandleRegister creates a tenant with its owner and returns a session.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	result, err := h.svc.Register(r.Context(), in)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// HandleLogin exchanges credentials for a session token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperror.Write(w, h.logger, err)
		return
	}

	result, err := h.svc.Login(r.Context(), in)
	if err != nil {
		apperror.Write(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeJSON reads a single JSON object no larger than maxBodyBytes.
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
