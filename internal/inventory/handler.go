// internal/inventory/handler.go
package inventory

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"lendhub/internal/web"
	"lendhub/pkg/logger"
)

// RestockFunc is told about items whose availability rose from zero.
type RestockFunc func(ctx context.Context, itemID uuid.UUID) error

type Handler struct {
	service   Service
	onRestock RestockFunc
	log       *logger.Logger
}

func NewHandler(service Service, onRestock RestockFunc, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("inventory")
	}
	return &Handler{service: service, onRestock: onRestock, log: log}
}

func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, items)
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ISBN        string `json:"isbn"`
		Title       string `json:"title"`
		Author      string `json:"author"`
		TotalCopies int    `json:"total_copies"`
	}
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	item, err := h.service.AddItem(r.Context(), req.ISBN, req.Title, req.Author, req.TotalCopies)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, item)
}

func (h *Handler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "itemID")
	if err != nil {
		web.Error(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, item)
}

func (h *Handler) HandleSetTotalCopies(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "itemID")
	if err != nil {
		web.Error(w, err)
		return
	}
	var req struct {
		TotalCopies int `json:"total_copies"`
	}
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	item, restocked, err := h.service.SetTotalCopies(r.Context(), id, req.TotalCopies)
	if err != nil {
		web.Error(w, err)
		return
	}
	if restocked && h.onRestock != nil {
		// the new total is already committed
		if err := h.onRestock(r.Context(), id); err != nil {
			h.log.WithError(err).WithField("item_id", id).Error("failed to notify watchers of restocked item")
		}
	}
	web.JSON(w, http.StatusOK, item)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "itemID")
	if err != nil {
		web.Error(w, err)
		return
	}
	if err := h.service.RemoveItem(r.Context(), id); err != nil {
		web.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
