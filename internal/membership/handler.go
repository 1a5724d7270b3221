// internal/membership/handler.go
package membership

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

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, err)
		return
	}
	if req.Role == "" {
		req.Role = string(RoleBorrower)
	}

	member, err := h.service.Register(r.Context(), req.Name, req.Email, Role(req.Role))
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, member)
}

func (h *Handler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := web.UUIDParam(r, "memberID")
	if err != nil {
		web.Error(w, err)
		return
	}
	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, member)
}

func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		role = string(RoleBorrower)
	}
	members, err := h.service.ListByRole(r.Context(), Role(role))
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, members)
}
