package reviews

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

// Create serves POST /reviews.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req CreateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("create review: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("create review: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	review, err := h.service.Create(ctx, caller, req)
	if err != nil {
		h.writeReviewError(w, log, "create review", err)
		return
	}

	log.Info("create review: ok",
		slog.String("review_id", review.ID),
		slog.String("doctor_id", review.DoctorID),
	)
	transport.WriteJSON(w, http.StatusCreated, review)
}

// ListForDoctor serves GET /doctors/{id}/reviews. Public.
func (h *Handler) ListForDoctor(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	doctorID := strings.TrimSpace(chi.URLParam(r, "id"))
	if doctorID == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing doctor id", nil)
		return
	}

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, summary, err := h.service.ListForDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		h.writeReviewError(w, log, "list reviews", err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":   items,
		"summary": summary,
		"limit":   limit,
		"offset":  offset,
	})
}

// Delete serves DELETE /reviews/{id}. Author or admin.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	if err := h.service.Delete(ctx, caller, id); err != nil {
		h.writeReviewError(w, log, "delete review", err)
		return
	}

	log.Info("delete review: ok", slog.String("review_id", id))
	transport.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) writeReviewError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrDoctorNotFound):
		transport.WriteError(w, http.StatusNotFound, "doctor not found", nil)
	case errors.Is(err, ErrAppointmentNotFound):
		transport.WriteError(w, http.StatusNotFound, "appointment not found", nil)
	case errors.Is(err, ErrReviewNotFound):
		transport.WriteError(w, http.StatusNotFound, "review not found", nil)
	case errors.Is(err, ErrForbidden):
		log.Warn(op + ": forbidden")
		transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, ErrDuplicateReview):
		transport.WriteError(w, http.StatusConflict, "you already reviewed this doctor", nil)
	case errors.Is(err, ErrNotEligible):
		transport.WriteError(w, http.StatusForbidden, "no eligible appointment with this doctor", nil)
	default:
		log.Error(op+": internal error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
