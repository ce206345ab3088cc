package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkoshelev/bto-system/internal/model"
)

type applyRequest struct {
	Project  string `json:"project"`
	FlatType string `json:"flat_type"`
}

type applicationResponse struct {
	ID        string    `json:"id"`
	Applicant string    `json:"applicant"`
	Project   string    `json:"project"`
	FlatType  string    `json:"flat_type"`
	Status    string    `json:"status"`
	AppliedAt time.Time `json:"applied_at"`
}

func toApplicationResponse(a model.BTOApplication) applicationResponse {
	return applicationResponse{
		ID:        a.ID,
		Applicant: a.ApplicantNric,
		Project:   a.ProjectName,
		FlatType:  string(a.FlatType),
		Status:    string(a.Status),
		AppliedAt: a.AppliedAt,
	}
}

// SubmitApplication обрабатывает подачу заявки на квартиру.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	flatType := model.FlatType(req.FlatType)
	if req.Project == "" || (flatType != model.FlatTypeTwoRoom && flatType != model.FlatTypeThreeRoom) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	app, err := h.service.SubmitApplication(r.Context(), u.Nric, req.Project, flatType)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, toApplicationResponse(*app))
}

// MyApplications возвращает заявки текущего пользователя, новые первыми.
func (h *Handler) MyApplications(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	apps, err := h.service.GetApplicationsByApplicant(r.Context(), u.Nric)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if len(apps) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		resp = append(resp, toApplicationResponse(a))
	}
	h.writeJSON(w, resp)
}

// ProjectApplications возвращает заявки по проекту. Доступно менеджеру
// проекта и офицерам из его состава.
func (h *Handler) ProjectApplications(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	p, err := h.service.GetProjectByName(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if p.ManagerNric != u.Nric && !p.HasOfficer(u.Nric) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	apps, err := h.service.GetApplicationsByProject(r.Context(), p.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		resp = append(resp, toApplicationResponse(a))
	}
	h.writeJSON(w, resp)
}

// ApproveApplication одобряет заявку. Только для менеджеров.
func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, model.RoleManager); !ok {
		return
	}

	if err := h.service.ApproveApplication(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RejectApplication отклоняет заявку. Только для менеджеров.
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, model.RoleManager); !ok {
		return
	}

	if err := h.service.RejectApplication(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RequestWithdrawal переводит активную заявку пользователя в ожидание отзыва.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.RequestWithdrawal(r.Context(), u.Nric); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ApproveWithdrawal утверждает отзыв заявки. Только для менеджеров.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, model.RoleManager); !ok {
		return
	}

	if err := h.service.ApproveWithdrawal(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RejectWithdrawal отклоняет отзыв и возвращает заявке прежний статус.
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, model.RoleManager); !ok {
		return
	}

	if err := h.service.RejectWithdrawal(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// BookFlat бронирует квартиру по одобренной заявке. Только для офицеров
// из состава проекта.
func (h *Handler) BookFlat(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireRole(w, r, model.RoleOfficer)
	if !ok {
		return
	}

	if err := h.service.BookFlat(r.Context(), u.Nric, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
