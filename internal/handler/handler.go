// Package handler содержит HTTP-обработчики API сервиса BTO.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkoshelev/bto-system/internal/middleware"
	"github.com/mkoshelev/bto-system/internal/model"
	"github.com/mkoshelev/bto-system/internal/repository"
	"github.com/mkoshelev/bto-system/internal/service"
	"github.com/mkoshelev/bto-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, nric, name, password string, age int, marital model.MaritalStatus, role model.Role) error
	AuthenticateUser(ctx context.Context, nric, password string) (*model.User, error)
	GetUserByNric(ctx context.Context, nric string) (*model.User, error)

	ListVisibleProjects(ctx context.Context, nric string) ([]*model.Project, error)
	GetProjectByName(ctx context.Context, name string) (*model.Project, error)
	CreateProject(ctx context.Context, managerNric string, p *model.Project) error
	EditProject(ctx context.Context, managerNric string, p *model.Project) error
	SetProjectVisibility(ctx context.Context, managerNric, name string, visible bool) error
	DeleteProject(ctx context.Context, managerNric, name string, force bool) error

	SubmitApplication(ctx context.Context, nric, projectName string, flatType model.FlatType) (*model.BTOApplication, error)
	GetApplicationsByApplicant(ctx context.Context, nric string) ([]model.BTOApplication, error)
	GetApplicationsByProject(ctx context.Context, projectName string) ([]model.BTOApplication, error)
	ApproveApplication(ctx context.Context, id string) error
	RejectApplication(ctx context.Context, id string) error
	RequestWithdrawal(ctx context.Context, nric string) error
	ApproveWithdrawal(ctx context.Context, id string) error
	RejectWithdrawal(ctx context.Context, id string) error
	BookFlat(ctx context.Context, officerNric, applicationID string) error

	RegisterOfficer(ctx context.Context, nric, projectName string) (*model.OfficerRegistration, error)
	GetRegistrationsByOfficer(ctx context.Context, nric string) ([]model.OfficerRegistration, error)
	GetRegistrationsByProject(ctx context.Context, projectName string) ([]model.OfficerRegistration, error)
	ApproveRegistration(ctx context.Context, id string) error
	RejectRegistration(ctx context.Context, id string) error

	SubmitEnquiry(ctx context.Context, nric, projectName, text string) (*model.Enquiry, error)
	GetEnquiriesByApplicant(ctx context.Context, nric string) ([]model.Enquiry, error)
	GetEnquiriesByProject(ctx context.Context, projectName string) ([]model.Enquiry, error)
	EditEnquiry(ctx context.Context, nric string, id int64, text string) error
	DeleteEnquiry(ctx context.Context, nric string, id int64) error
	ReplyEnquiry(ctx context.Context, replierNric string, id int64, reply string) error
}

// Handler реализует HTTP-обработчики API сервиса BTO.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type registerRequest struct {
	Nric          string `json:"nric"`
	Name          string `json:"name"`
	Password      string `json:"password"`
	Age           int    `json:"age"`
	MaritalStatus string `json:"marital_status"`
	Role          string `json:"role"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Password == "" || req.Name == "" || req.Age <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidNric(req.Nric) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	marital := model.MaritalStatus(req.MaritalStatus)
	if marital != model.MaritalSingle && marital != model.MaritalMarried {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	role := model.Role(req.Role)
	switch role {
	case model.RoleApplicant, model.RoleOfficer, model.RoleManager:
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.RegisterUser(r.Context(), req.Nric, req.Name, req.Password, req.Age, marital, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, req.Nric)
	w.WriteHeader(http.StatusOK)
}

type credentialsRequest struct {
	Nric     string `json:"nric"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Nric == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Nric, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.Nric)
	w.WriteHeader(http.StatusOK)
}

// currentUser извлекает аутентифицированного пользователя запроса.
// При ошибке ответ уже записан, и обработчик должен выйти.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	nric, ok := middleware.GetNricFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}

	u, err := h.service.GetUserByNric(r.Context(), nric)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return nil, false
		}
		h.logger.Error("get current user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}

	return u, true
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role model.Role) (*model.User, bool) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return nil, false
	}
	if u.Role != role {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return nil, false
	}
	return u, true
}

// writeServiceError переводит доменные ошибки в HTTP-статусы. Причина отказа
// возвращается клиенту дословно.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrProjectNotFound),
		errors.Is(err, repository.ErrApplicationNotFound),
		errors.Is(err, repository.ErrRegistrationNotFound),
		errors.Is(err, repository.ErrEnquiryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrNotAllowed):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrIneligible):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrProjectExists),
		errors.Is(err, repository.ErrAlreadyApplied),
		errors.Is(err, repository.ErrAlreadyRegistered),
		errors.Is(err, repository.ErrNotPending),
		errors.Is(err, repository.ErrNotWithdrawable),
		errors.Is(err, repository.ErrSupplyExhausted),
		errors.Is(err, repository.ErrNoUnitsAvailable),
		errors.Is(err, repository.ErrUnitsAtCapacity),
		errors.Is(err, repository.ErrNoSlotsRemaining),
		errors.Is(err, repository.ErrProjectHasActiveRecords),
		errors.Is(err, service.ErrAlreadyBooked),
		errors.Is(err, service.ErrProjectClosed),
		errors.Is(err, service.ErrCannotRegister),
		errors.Is(err, service.ErrOfficerBusy),
		errors.Is(err, service.ErrManagerBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("service error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
