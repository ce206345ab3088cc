// Package service реализует бизнес-логику сервиса распределения жилья BTO:
// жизненный цикл заявок на квартиры, регистрации офицеров, администрирование
// проектов и сверку данных на старте.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mkoshelev/bto-system/internal/model"
)

// ErrIneligible возвращается, когда пользователь не проходит по правилам
// допуска к типу квартиры.
var (
	ErrIneligible = errors.New("applicant is not eligible for this flat type")
	// ErrAlreadyBooked возвращается, когда за заявителем уже числится бронирование.
	ErrAlreadyBooked = errors.New("applicant already has a booked flat")
	// ErrProjectClosed возвращается при подаче заявки вне периода приёма.
	ErrProjectClosed = errors.New("project application window is closed")
	// ErrCannotRegister возвращается, когда офицер не проходит проверку регистрации.
	ErrCannotRegister = errors.New("officer cannot register for this project")
	// ErrOfficerBusy возвращается, когда офицер уже обслуживает пересекающийся проект.
	ErrOfficerBusy = errors.New("officer handles an overlapping project")
	// ErrManagerBusy возвращается, когда у менеджера уже есть проект с пересекающимся периодом.
	ErrManagerBusy = errors.New("manager already has a project in this period")
	// ErrNotAllowed возвращается при попытке операции, недоступной для роли или владельца.
	ErrNotAllowed = errors.New("operation is not allowed for this user")
	// ErrInvalidCredentials возвращается при неверной паре NRIC/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) error
	GetUserByNric(ctx context.Context, nric string) (*model.User, error)
	GetAllUsers(ctx context.Context) (map[string]*model.User, error)
	UpdateUserCachedState(ctx context.Context, nric, project string, status model.ApplicationStatus, flatType model.FlatType) error

	CreateProject(ctx context.Context, p *model.Project) error
	GetProjectByName(ctx context.Context, name string) (*model.Project, error)
	GetAllProjects(ctx context.Context) ([]*model.Project, error)
	UpdateProject(ctx context.Context, p *model.Project) error
	SetProjectVisibility(ctx context.Context, name string, visible bool) error
	DeleteProject(ctx context.Context, name string, force bool) error
	RemoveProjectOfficer(ctx context.Context, projectName, nric string) error

	CreateApplication(ctx context.Context, app *model.BTOApplication) error
	GetApplicationByID(ctx context.Context, id string) (*model.BTOApplication, error)
	GetApplicationsByApplicant(ctx context.Context, nric string) ([]model.BTOApplication, error)
	GetApplicationsByProject(ctx context.Context, projectName string) ([]model.BTOApplication, error)
	GetAllApplications(ctx context.Context) ([]model.BTOApplication, error)
	ApproveApplication(ctx context.Context, id string) error
	RejectApplication(ctx context.Context, id string) error
	RequestWithdrawal(ctx context.Context, id string) error
	FinalizeWithdrawal(ctx context.Context, id string, finalStatus model.ApplicationStatus, releaseUnit bool) error
	RevertWithdrawal(ctx context.Context, id string, priorStatus model.ApplicationStatus) error
	BookApplication(ctx context.Context, id string) error

	DecrementUnits(ctx context.Context, projectName string, flatType model.FlatType) error
	IncrementUnits(ctx context.Context, projectName string, flatType model.FlatType) error
	SetAvailableUnits(ctx context.Context, projectName string, flatType model.FlatType, n int) (int, error)

	CreateRegistration(ctx context.Context, reg *model.OfficerRegistration) error
	GetRegistrationByID(ctx context.Context, id string) (*model.OfficerRegistration, error)
	GetRegistrationsByOfficer(ctx context.Context, nric string) ([]model.OfficerRegistration, error)
	GetRegistrationsByProject(ctx context.Context, projectName string) ([]model.OfficerRegistration, error)
	GetAllRegistrations(ctx context.Context) ([]model.OfficerRegistration, error)
	ApproveRegistration(ctx context.Context, id string) error
	RejectRegistration(ctx context.Context, id string) error
	DeleteRegistration(ctx context.Context, id string) error

	CreateEnquiry(ctx context.Context, e *model.Enquiry) (int64, error)
	GetEnquiryByID(ctx context.Context, id int64) (*model.Enquiry, error)
	GetEnquiriesByApplicant(ctx context.Context, nric string) ([]model.Enquiry, error)
	GetEnquiriesByProject(ctx context.Context, projectName string) ([]model.Enquiry, error)
	UpdateEnquiryText(ctx context.Context, id int64, text string) error
	ReplyEnquiry(ctx context.Context, id int64, reply string, repliedAt time.Time) error
	DeleteEnquiry(ctx context.Context, id int64) error
}

// Service содержит бизнес-логику сервиса BTO.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, nric, name, password string, age int, marital model.MaritalStatus, role model.Role) error {
	u := &model.User{
		Nric:          nric,
		Name:          name,
		PasswordHash:  hashPassword(nric, password),
		Age:           age,
		MaritalStatus: marital,
		Role:          role,
	}
	return s.repo.CreateUser(ctx, u)
}

// AuthenticateUser проверяет NRIC и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, nric, password string) (*model.User, error) {
	u, err := s.repo.GetUserByNric(ctx, nric)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(nric, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUserByNric возвращает пользователя по NRIC.
func (s *Service) GetUserByNric(ctx context.Context, nric string) (*model.User, error) {
	return s.repo.GetUserByNric(ctx, nric)
}

func hashPassword(nric, password string) []byte {
	sum := sha256.Sum256([]byte(nric + ":" + password))
	return sum[:]
}
