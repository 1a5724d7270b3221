// internal/circulation/handler.go
package circulation

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"lendhub/internal/apperr"
	"lendhub/internal/web"
)

// StaffLister returns the reviewers to notify about new requests.
type StaffLister func(ctx context.Context) ([]uuid.UUID, error)

type Handler struct {
	service Service
	staff   StaffLister
}

func NewHandler(service Service, staff StaffLister) *Handler {
	return &Handler{service: service, staff: staff}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
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

	var staffIDs []uuid.UUID
	if h.staff != nil {
		if staffIDs, err = h.staff(r.Context()); err != nil {
			web.Error(w, err)
			return
		}
	}

	created, err := h.service.CreateRequest(r.Context(), caller, req.ItemID, staffIDs)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if status == "" {
		status = StatusPending
	}
	reqs, err := h.service.FindActive(r.Context(), status)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, reqs)
}

func (h *Handler) HandleMine(w http.ResponseWriter, r *http.Request) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	reqs, err := h.service.FindByBorrower(r.Context(), caller)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, reqs)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "requestID")
	if err != nil {
		web.Error(w, err)
		return
	}
	req, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, req)
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.reviewTarget(w, r)
	if !ok {
		return
	}
	var body struct {
		DueAt *time.Time `json:"due_at"`
	}
	if r.ContentLength > 0 {
		if err := web.Decode(r, &body); err != nil {
			web.Error(w, err)
			return
		}
	}

	req, err := h.service.Approve(r.Context(), id, caller, body.DueAt)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, req)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.reviewTarget(w, r)
	if !ok {
		return
	}
	req, err := h.service.Reject(r.Context(), id, caller)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, req)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "requestID")
	if err != nil {
		web.Error(w, err)
		return
	}
	result, err := h.service.ReturnItem(r.Context(), id)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, result)
}

func (h *Handler) reviewTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	caller, err := web.CallerID(r)
	if err != nil {
		web.Error(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := web.UUIDParam(r, "requestID")
	if err != nil {
		web.Error(w, apperr.Validation("circulation.review", "invalid request id"))
		return uuid.Nil, uuid.Nil, false
	}
	return caller, id, true
}
