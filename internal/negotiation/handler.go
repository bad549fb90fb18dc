package negotiation

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

// AdminList serves GET /admin/doctors/earning-negotiation for the polling
// admin console.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		log.Warn("negotiation list: invalid query", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, caller, status, limit, offset)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
			return
		}
		log.Error("negotiation list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	log.Info("negotiation list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

// AdminGet serves GET /admin/doctors/{doctorId}/earning-negotiation.
func (h *Handler) AdminGet(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, chi.URLParam(r, "doctorId"))
}

// SelfGet serves GET /doctor/earning-negotiation for the doctor's own record.
func (h *Handler) SelfGet(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	h.get(w, r, caller.ID)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, doctorID string) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing doctor id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	record, err := h.service.Get(ctx, caller, doctorID)
	if err != nil {
		h.writeServiceError(w, log, "negotiation get", doctorID, err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, record)
}

// AdminUpdate serves POST /admin/doctors/{doctorId}/earning-negotiation.
func (h *Handler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, chi.URLParam(r, "doctorId"))
}

// SelfUpdate serves POST /doctor/earning-negotiation.
func (h *Handler) SelfUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	h.update(w, r, caller.ID)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, doctorID string) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing doctor id", nil)
		return
	}

	var req UpdateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("negotiation update: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("negotiation update: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	record, err := h.service.PostUpdate(ctx, caller, doctorID, req)
	if err != nil {
		if errors.Is(err, ErrMessageRequired) {
			transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"message": "required"})
			return
		}
		h.writeServiceError(w, log, "negotiation update", doctorID, err)
		return
	}

	log.Info("negotiation update: ok",
		slog.String("doctor_id", doctorID),
		slog.String("status", record.Status),
		slog.String("sender", caller.Role),
	)
	transport.WriteJSON(w, http.StatusOK, record)
}

// AdminAgree serves POST /admin/doctors/{doctorId}/earning-negotiation/agree.
func (h *Handler) AdminAgree(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	doctorID := strings.TrimSpace(chi.URLParam(r, "doctorId"))
	if doctorID == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing doctor id", nil)
		return
	}

	var req AgreeRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("negotiation agree: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("negotiation agree: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	record, err := h.service.Agree(ctx, caller, doctorID, req)
	if err != nil {
		h.writeServiceError(w, log, "negotiation agree", doctorID, err)
		return
	}

	log.Info("negotiation agree: ok",
		slog.String("doctor_id", doctorID),
		slog.Float64("agreed_fee", record.AgreedFee),
	)
	transport.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, log *slog.Logger, op, doctorID string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		log.Warn(op+": doctor not found", slog.String("doctor_id", doctorID))
		transport.WriteError(w, http.StatusNotFound, "doctor not found", nil)
	case errors.Is(err, ErrForbidden):
		log.Warn(op+": forbidden", slog.String("doctor_id", doctorID))
		transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
	default:
		log.Error(op+": database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
	}
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if r == nil {
		return h.log
	}
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
