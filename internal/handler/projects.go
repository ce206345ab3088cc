package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkoshelev/bto-system/internal/model"
)

type flatUnitsPayload struct {
	TotalUnits int   `json:"total_units"`
	PriceCents int64 `json:"price_cents"`
}

type projectRequest struct {
	Name         string                      `json:"name"`
	Neighborhood string                      `json:"neighborhood"`
	OpenDate     string                      `json:"open_date"`
	CloseDate    string                      `json:"close_date"`
	OfficerSlots int                         `json:"officer_slots"`
	Flats        map[string]flatUnitsPayload `json:"flats"`
}

type flatUnitsResponse struct {
	TotalUnits     int   `json:"total_units"`
	AvailableUnits int   `json:"available_units"`
	PriceCents     int64 `json:"price_cents"`
}

type projectResponse struct {
	Name         string                       `json:"name"`
	Neighborhood string                       `json:"neighborhood"`
	OpenDate     string                       `json:"open_date"`
	CloseDate    string                       `json:"close_date"`
	Manager      string                       `json:"manager"`
	OfficerSlots int                          `json:"officer_slots"`
	Officers     []string                     `json:"officers"`
	Visible      bool                         `json:"visible"`
	Flats        map[string]flatUnitsResponse `json:"flats"`
}

const dateLayout = "2006-01-02"

func toProjectResponse(p *model.Project) projectResponse {
	flats := make(map[string]flatUnitsResponse, len(p.Flats))
	for ft, fu := range p.Flats {
		flats[string(ft)] = flatUnitsResponse{
			TotalUnits:     fu.Total,
			AvailableUnits: fu.Available,
			PriceCents:     fu.PriceCents,
		}
	}
	return projectResponse{
		Name:         p.Name,
		Neighborhood: p.Neighborhood,
		OpenDate:     p.OpenDate.Format(dateLayout),
		CloseDate:    p.CloseDate.Format(dateLayout),
		Manager:      p.ManagerNric,
		OfficerSlots: p.OfficerSlots,
		Officers:     p.Officers,
		Visible:      p.Visible,
		Flats:        flats,
	}
}

func (h *Handler) decodeProject(w http.ResponseWriter, r *http.Request) (*model.Project, bool) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, false
	}

	if req.Name == "" || req.OfficerSlots < 0 || len(req.Flats) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, false
	}

	openDate, err := time.Parse(dateLayout, req.OpenDate)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, false
	}
	closeDate, err := time.Parse(dateLayout, req.CloseDate)
	if err != nil || closeDate.Before(openDate) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, false
	}

	flats := make(map[model.FlatType]model.FlatUnits, len(req.Flats))
	for name, fu := range req.Flats {
		ft := model.FlatType(name)
		if ft != model.FlatTypeTwoRoom && ft != model.FlatTypeThreeRoom {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return nil, false
		}
		if fu.TotalUnits < 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return nil, false
		}
		flats[ft] = model.FlatUnits{Total: fu.TotalUnits, PriceCents: fu.PriceCents}
	}

	return &model.Project{
		Name:         req.Name,
		Neighborhood: req.Neighborhood,
		OpenDate:     openDate,
		CloseDate:    closeDate,
		OfficerSlots: req.OfficerSlots,
		Flats:        flats,
	}, true
}

// ListProjects возвращает проекты, видимые текущему пользователю.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	projects, err := h.service.ListVisibleProjects(r.Context(), u.Nric)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, toProjectResponse(p))
	}
	h.writeJSON(w, resp)
}

// GetProject возвращает один проект по имени.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProjectByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	// Скрытый проект виден только своему менеджеру и офицерам состава.
	if !p.Visible && p.ManagerNric != u.Nric && !p.HasOfficer(u.Nric) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	h.writeJSON(w, toProjectResponse(p))
}

// CreateProject создаёт новый проект. Только для менеджеров.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireRole(w, r, model.RoleManager)
	if !ok {
		return
	}

	p, ok := h.decodeProject(w, r)
	if !ok {
		return
	}

	if err := h.service.CreateProject(r.Context(), u.Nric, p); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, toProjectResponse(p))
}

// EditProject изменяет параметры проекта. Только для менеджера-владельца.
func (h *Handler) EditProject(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireRole(w, r, model.RoleManager)
	if !ok {
		return
	}

	p, ok := h.decodeProject(w, r)
	if !ok {
		return
	}
	p.Name = chi.URLParam(r, "name")

	if err := h.service.EditProject(r.Context(), u.Nric, p); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

// SetProjectVisibility переключает видимость проекта для заявителей.
func (h *Handler) SetProjectVisibility(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireRole(w, r, model.RoleManager)
	if !ok {
		return
	}

	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetProjectVisibility(r.Context(), u.Nric, chi.URLParam(r, "name"), req.Visible); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteProject удаляет проект. Параметр force=true удаляет проект вместе
// с активными заявками и регистрациями.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	u, ok := h.requireRole(w, r, model.RoleManager)
	if !ok {
		return
	}

	force := r.URL.Query().Get("force") == "true"

	if err := h.service.DeleteProject(r.Context(), u.Nric, chi.URLParam(r, "name"), force); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
