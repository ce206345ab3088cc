package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkoshelev/bto-system/internal/model"
)

type enquiryRequest struct {
	Project string `json:"project"`
	Text    string `json:"text"`
}

type enquiryResponse struct {
	ID        int64      `json:"id"`
	Applicant string     `json:"applicant"`
	Project   string     `json:"project"`
	Text      string     `json:"text"`
	Reply     string     `json:"reply,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	RepliedAt *time.Time `json:"replied_at,omitempty"`
}

func toEnquiryResponse(e model.Enquiry) enquiryResponse {
	return enquiryResponse{
		ID:        e.ID,
		Applicant: e.ApplicantNric,
		Project:   e.ProjectName,
		Text:      e.Text,
		Reply:     e.Reply,
		CreatedAt: e.CreatedAt,
		RepliedAt: e.RepliedAt,
	}
}

func enquiryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// SubmitEnquiry создаёт вопрос по проекту.
func (h *Handler) SubmitEnquiry(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req enquiryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Project == "" || req.Text == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	e, err := h.service.SubmitEnquiry(r.Context(), u.Nric, req.Project, req.Text)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, toEnquiryResponse(*e))
}

// MyEnquiries возвращает вопросы текущего пользователя.
func (h *Handler) MyEnquiries(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	enquiries, err := h.service.GetEnquiriesByApplicant(r.Context(), u.Nric)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if len(enquiries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]enquiryResponse, 0, len(enquiries))
	for _, e := range enquiries {
		resp = append(resp, toEnquiryResponse(e))
	}
	h.writeJSON(w, resp)
}

// ProjectEnquiries возвращает вопросы по проекту. Доступно менеджеру
// проекта и офицерам из его состава.
func (h *Handler) ProjectEnquiries(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProjectByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if p.ManagerNric != u.Nric && !p.HasOfficer(u.Nric) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	enquiries, err := h.service.GetEnquiriesByProject(r.Context(), p.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]enquiryResponse, 0, len(enquiries))
	for _, e := range enquiries {
		resp = append(resp, toEnquiryResponse(e))
	}
	h.writeJSON(w, resp)
}

type enquiryTextRequest struct {
	Text string `json:"text"`
}

// EditEnquiry изменяет текст вопроса. Только автор и только до ответа.
func (h *Handler) EditEnquiry(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id, ok := enquiryID(w, r)
	if !ok {
		return
	}

	var req enquiryTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.EditEnquiry(r.Context(), u.Nric, id, req.Text); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteEnquiry удаляет вопрос. Только автор.
func (h *Handler) DeleteEnquiry(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id, ok := enquiryID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteEnquiry(r.Context(), u.Nric, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ReplyEnquiry записывает ответ на вопрос. Доступно менеджеру проекта
// и офицерам из его состава.
func (h *Handler) ReplyEnquiry(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id, ok := enquiryID(w, r)
	if !ok {
		return
	}

	var req enquiryTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ReplyEnquiry(r.Context(), u.Nric, id, req.Text); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
