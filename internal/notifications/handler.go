package notifications

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

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
)

type Handler struct {
	store *Store
	log   *slog.Logger
}

func NewHandler(store *Store, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

// List serves GET /notifications for the calling user.
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

	items, total, err := h.store.ListForUser(ctx, caller.ID, limit, offset)
	if err != nil {
		log.Error("notifications list: internal error", slog.String("error", err.Error()))
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

// MarkRead serves PATCH /notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.MarkRead(ctx, caller.ID, id); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			transport.WriteError(w, http.StatusNotFound, "notification not found", nil)
			return
		}
		log.Error("notification read: internal error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
