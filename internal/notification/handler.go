// internal/notification/handler.go
package notification

import (
	"net/http"

	"lendhub/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := h.service.List(r.Context(), caller, unreadOnly)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, notifications)
}

func (h *Handler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	count, err := h.service.UnreadCount(r.Context(), caller)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	id, err := web.UUIDParam(r, "notificationID")
	if err != nil {
		web.Error(w, err)
		return
	}
	if err := h.service.MarkRead(r.Context(), id, caller); err != nil {
		web.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	marked, err := h.service.MarkAllRead(r.Context(), caller)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]int{"marked": marked})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	id, err := web.UUIDParam(r, "notificationID")
	if err != nil {
		web.Error(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, caller); err != nil {
		web.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
