package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"telehealth-backend/internal/httpx"
	"telehealth-backend/internal/middleware"
	"telehealth-backend/internal/transport"
	"telehealth-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

// Register serves POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req RegisterRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("register: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("register: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp, err := h.service.Register(ctx, req)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			transport.WriteError(w, http.StatusConflict, "email already registered", nil)
			return
		}
		log.Error("register: internal error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	log.Info("register: ok",
		slog.String("user_id", resp.User.ID),
		slog.String("role", resp.User.Role),
	)
	transport.WriteJSON(w, http.StatusCreated, resp)
}

// Login serves POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req LoginRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("login: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("login: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp, err := h.service.Login(ctx, req)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			log.Warn("login: invalid credentials")
			transport.WriteError(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		log.Error("login: internal error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	log.Info("login: ok", slog.String("user_id", resp.User.ID))
	transport.WriteJSON(w, http.StatusOK, resp)
}

// Refresh serves POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	var req RefreshRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("refresh: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("refresh: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp, err := h.service.Refresh(ctx, req)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			log.Warn("refresh: invalid token")
			transport.WriteError(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		log.Error("refresh: internal error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	log.Info("refresh: ok", slog.String("user_id", resp.User.ID))
	transport.WriteJSON(w, http.StatusOK, resp)
}

// Me serves GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.Me(ctx, caller)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			transport.WriteError(w, http.StatusNotFound, "user not found", nil)
			return
		}
		log.Error("me: internal error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, user)
}

// ListDoctors serves GET /doctors. Public.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	specialization := strings.TrimSpace(r.URL.Query().Get("specialization"))

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.ListDoctors(ctx, specialization, limit, offset)
	if err != nil {
		log.Error("doctors list: internal error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

// GetDoctor serves GET /doctors/{id}. Public.
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	doctor, err := h.service.GetDoctor(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			transport.WriteError(w, http.StatusNotFound, "doctor not found", nil)
			return
		}
		log.Error("doctor get: internal error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, doctor)
}

// UpdateAvailability serves PUT /doctors/availability for the calling doctor.
func (h *Handler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req UpdateAvailabilityRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("availability: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("availability: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	doctor, err := h.service.UpdateAvailability(ctx, caller, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
		case errors.Is(err, ErrNotFound):
			transport.WriteError(w, http.StatusNotFound, "doctor not found", nil)
		default:
			log.Warn("availability: rejected", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		}
		return
	}

	log.Info("availability: updated", slog.String("doctor_id", caller.ID))
	transport.WriteJSON(w, http.StatusOK, doctor)
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
