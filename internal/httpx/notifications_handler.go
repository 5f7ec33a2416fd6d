package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hmaulana/go-order-engine/internal/notify"
)

// NotificationStore is the staff inbox surface.
type NotificationStore interface {
	ListUnread(ctx context.Context, limit int) ([]notify.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

type NotificationsHandler struct {
	Store NotificationStore
}

func (h *NotificationsHandler) Register(r *chi.Mux) {
	r.Get("/staff/notifications", RequireStaff(h.list))
	r.Post("/staff/notifications/{id}/read", RequireStaff(h.markRead))
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.Store.ListUnread(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (h *NotificationsHandler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
