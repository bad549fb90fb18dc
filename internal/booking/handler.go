package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"telehealth-backend/internal/auth"
	"telehealth-backend/internal/httpx"
	"telehealth-backend/internal/middleware"
	"telehealth-backend/internal/payments"
	"telehealth-backend/internal/transport"
	"telehealth-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

// Stripe webhook payloads are small; 64 KiB is ample.
const maxWebhookBody = 1 << 16

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

// CreateIntent serves POST /payments/create-intent.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req CreateIntentRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("create intent: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("create intent: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	resp, err := h.service.CreateIntent(ctx, caller, req)
	if err != nil {
		h.writeBookingError(w, log, "create intent", err)
		return
	}

	log.Info("create intent: ok",
		slog.String("payment_intent_id", resp.PaymentIntentID),
		slog.String("doctor_id", req.DoctorID),
	)
	transport.WriteJSON(w, http.StatusOK, resp)
}

// Confirm serves POST /payments/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req ConfirmRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("confirm: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("confirm: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	appointment, err := h.service.Confirm(ctx, caller, req)
	if err != nil {
		h.writeBookingError(w, log, "confirm", err)
		return
	}

	log.Info("confirm: booked",
		slog.String("appointment_id", appointment.ID),
		slog.String("doctor_id", appointment.DoctorID),
		slog.String("date", appointment.Date),
		slog.String("slot", appointment.Slot),
	)
	transport.WriteJSON(w, http.StatusCreated, appointment)
}

// Webhook serves POST /payments/webhook. Once the signature checks out the
// response is always 2xx so the provider stops re-delivering.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, "unreadable payload", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	err = h.service.HandleWebhook(ctx, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			log.Warn("webhook: bad signature")
			transport.WriteError(w, http.StatusBadRequest, "invalid signature", nil)
			return
		}
		log.Error("webhook: processing error", slog.String("error", err.Error()))
	}

	transport.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// Refund serves POST /admin/payments/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req RefundRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("refund: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("refund: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	resp, err := h.service.Refund(ctx, caller, req)
	if err != nil {
		h.writeBookingError(w, log, "refund", err)
		return
	}

	log.Info("refund: ok",
		slog.String("appointment_id", resp.AppointmentID),
		slog.String("refund_id", resp.RefundID),
	)
	transport.WriteJSON(w, http.StatusOK, resp)
}

// History serves GET /payments/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.History(ctx, caller, limit, offset)
	if err != nil {
		h.writeBookingError(w, log, "history", err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

// List serves GET /appointments for patients and doctors.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, caller, limit, offset)
	if err != nil {
		h.writeBookingError(w, log, "appointments list", err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

// Accept serves PATCH /appointments/{id}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(ctx context.Context, caller auth.Caller, id string) (interface{}, error) {
		return h.service.Accept(ctx, caller, id)
	})
}

// Complete serves PATCH /appointments/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	// Body is optional for completion.
	_ = httpx.DecodeJSON(r.Body, &body)
	h.lifecycle(w, r, func(ctx context.Context, caller auth.Caller, id string) (interface{}, error) {
		return h.service.Complete(ctx, caller, id, strings.TrimSpace(body.Notes))
	})
}

// Cancel serves PATCH /appointments/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body CancelRequest
	_ = httpx.DecodeJSON(r.Body, &body)
	h.lifecycle(w, r, func(ctx context.Context, caller auth.Caller, id string) (interface{}, error) {
		return h.service.Cancel(ctx, caller, id, strings.TrimSpace(body.Reason))
	})
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, auth.Caller, string) (interface{}, error)) {
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

	result, err := op(ctx, caller, id)
	if err != nil {
		h.writeBookingError(w, log, "appointment update", err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) writeBookingError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	var conflict *SlotConflictError
	var state *PaymentStateError
	var provider *ProviderError

	switch {
	case errors.As(err, &conflict):
		log.Warn(op+": slot conflict", slog.Bool("refund_failed", conflict.RefundFailed))
		details := map[string]string{}
		if conflict.RefundID != "" {
			details["refundId"] = conflict.RefundID
		}
		transport.WriteError(w, http.StatusConflict, conflict.Error(), details)
	case errors.As(err, &state):
		log.Warn(op+": payment not completed", slog.String("payment_status", state.Status))
		transport.WriteError(w, http.StatusBadRequest, state.Error(), nil)
	case errors.As(err, &provider):
		log.Error(op+": provider error", slog.String("error", provider.Err.Error()))
		transport.WriteError(w, http.StatusBadGateway, payments.SanitizeError(provider.Err), nil)
	case errors.Is(err, ErrDoctorNotFound):
		transport.WriteError(w, http.StatusNotFound, "doctor not found", nil)
	case errors.Is(err, ErrAppointmentNotFound):
		transport.WriteError(w, http.StatusNotFound, "appointment not found", nil)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrIdentityMismatch):
		log.Warn(op + ": forbidden")
		transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, ErrSlotNotOffered):
		transport.WriteError(w, http.StatusBadRequest, "slot not available", nil)
	case errors.Is(err, ErrSlotPast):
		transport.WriteError(w, http.StatusBadRequest, "slot already passed", nil)
	case errors.Is(err, ErrAlreadyRefunded):
		transport.WriteError(w, http.StatusConflict, "payment already refunded", nil)
	case errors.Is(err, ErrNotPaid):
		transport.WriteError(w, http.StatusConflict, "appointment was never paid", nil)
	case errors.Is(err, ErrBadMetadata):
		log.Error(op+": bad intent metadata", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, "payment intent metadata is invalid", nil)
	case errors.Is(err, ErrBadTransition):
		transport.WriteError(w, http.StatusConflict, "invalid appointment state", nil)
	default:
		log.Error(op+": internal error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
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
