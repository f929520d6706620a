package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pawzr/marketplace/internal/notify"
)

type NotificationStore interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notify.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type NotificationsHandler struct {
	Store NotificationStore
}

func (h *NotificationsHandler) Register(r chi.Router) {
	r.Get("/notifications", h.list)
	r.Patch("/notifications/{id}/read", h.markRead)
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	unread, _ := strconv.ParseBool(q.Get("unread"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ns, err := h.Store.List(ctx, who.ID, unread, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

func (h *NotificationsHandler) markRead(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.MarkRead(ctx, who.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
