package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkoshelev/bto-system/internal/model"
)

type registrationRequest struct {
	Project string `json:"project"`
}

type registrationResponse struct {
	ID           string    `json:"id"`
	Officer      string    `json:"officer"`
	Project      string    `json:"project"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
}

func toRegistrationResponse(reg model.OfficerRegistration) registrationResponse {
	return registrationResponse{
		ID:           reg.ID,
		Officer:      reg.OfficerNric,
		Project:      reg.ProjectName,
		Status:       string(reg.Status),
		RegisteredAt: reg.RegisteredAt,
	}
}

// RegisterOfficer подаёт регистрацию офицера на проект.
func (h *Handler) RegisterOfficer(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireRole(w, r, model.RoleOfficer)
	if !ok {
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Project == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	reg, err := h.service.RegisterOfficer(r.Context(), u.Nric, req.Project)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, toRegistrationResponse(*reg))
}

// MyRegistrations возвращает регистрации текущего офицера.
func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireRole(w, r, model.RoleOfficer)
	if !ok {
		return
	}

	regs, err := h.service.GetRegistrationsByOfficer(r.Context(), u.Nric)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if len(regs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		resp = append(resp, toRegistrationResponse(reg))
	}
	h.writeJSON(w, resp)
}

// ProjectRegistrations возвращает регистрации по проекту. Только для
// менеджера-владельца.
func (h *Handler) ProjectRegistrations(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireRole(w, r, model.RoleManager)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	p, err := h.service.GetProjectByName(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if p.ManagerNric != u.Nric {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	regs, err := h.service.GetRegistrationsByProject(r.Context(), p.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		resp = append(resp, toRegistrationResponse(reg))
	}
	h.writeJSON(w, resp)
}

// ApproveRegistration одобряет регистрацию офицера. Только для менеджеров.
func (h *Handler) ApproveRegistration(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, model.RoleManager); !ok {
		return
	}

	if err := h.service.ApproveRegistration(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RejectRegistration отклоняет регистрацию офицера. Только для менеджеров.
func (h *Handler) RejectRegistration(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, model.RoleManager); !ok {
		return
	}

	if err := h.service.RejectRegistration(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
