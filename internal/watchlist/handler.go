// internal/watchlist/handler.go
package watchlist

import (
	"net/http"

	"github.com/google/uuid"

	"lendhub/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	var req struct {
		ItemID uuid.UUID `json:"item_id"`
	}
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, err)
		return
	}
	entry, err := h.service.Watch(r.Context(), caller, req.ItemID)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, entry)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	entries, err := h.service.ListByBorrower(r.Context(), caller)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleUnwatch(w http.ResponseWriter, r *http.Request) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	itemID, err := web.UUIDParam(r, "itemID")
	if err != nil {
		web.Error(w, err)
		return
	}
	removed, err := h.service.Unwatch(r.Context(), caller, itemID)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]bool{"removed": removed})
}
