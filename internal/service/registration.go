package service

import (
	"context"
	"time"

	"github.com/mkoshelev/bto-system/internal/eligibility"
	"github.com/mkoshelev/bto-system/internal/model"
)

// RegisterOfficer создаёт регистрацию офицера на проект после проверки
// всех условий допуска.
func (s *Service) RegisterOfficer(ctx context.Context, nric, projectName string) (*model.OfficerRegistration, error) {
	officer, err := s.repo.GetUserByNric(ctx, nric)
	if err != nil {
		return nil, err
	}

	project, err := s.repo.GetProjectByName(ctx, projectName)
	if err != nil {
		return nil, err
	}

	apps, err := s.repo.GetApplicationsByApplicant(ctx, nric)
	if err != nil {
		return nil, err
	}

	regs, err := s.repo.GetRegistrationsByOfficer(ctx, nric)
	if err != nil {
		return nil, err
	}

	allProjects, err := s.repo.GetAllProjects(ctx)
	if err != nil {
		return nil, err
	}

	if !eligibility.CanOfficerRegister(officer, project, time.Now(), apps, regs, allProjects) {
		return nil, ErrCannotRegister
	}

	reg := &model.OfficerRegistration{
		ID:           model.RegistrationID(nric, project.Name),
		OfficerNric:  nric,
		ProjectName:  project.Name,
		Status:       model.RegistrationStatusPending,
		RegisteredAt: time.Now(),
	}

	if err := s.repo.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}

	return reg, nil
}

// ApproveRegistration одобряет регистрацию и добавляет офицера в состав
// проекта. Перед мутацией слотов повторно проверяется, что офицер не
// обслуживает пересекающийся проект: конфликт периодов — зона
// ответственности правил допуска, слоты и состав — репозитория.
func (s *Service) ApproveRegistration(ctx context.Context, id string) error {
	reg, err := s.repo.GetRegistrationByID(ctx, id)
	if err != nil {
		return err
	}

	project, err := s.repo.GetProjectByName(ctx, reg.ProjectName)
	if err != nil {
		return err
	}

	allProjects, err := s.repo.GetAllProjects(ctx)
	if err != nil {
		return err
	}

	for _, p := range allProjects {
		if model.SameProjectName(p.Name, project.Name) {
			continue
		}
		if p.HasOfficer(reg.OfficerNric) &&
			eligibility.DatesOverlap(project.OpenDate, project.CloseDate, p.OpenDate, p.CloseDate) {
			return ErrOfficerBusy
		}
	}

	return s.repo.ApproveRegistration(ctx, id)
}

// RejectRegistration отклоняет регистрацию в статусе PENDING.
func (s *Service) RejectRegistration(ctx context.Context, id string) error {
	return s.repo.RejectRegistration(ctx, id)
}

// GetRegistrationsByOfficer возвращает регистрации офицера.
func (s *Service) GetRegistrationsByOfficer(ctx context.Context, nric string) ([]model.OfficerRegistration, error) {
	return s.repo.GetRegistrationsByOfficer(ctx, nric)
}

// GetRegistrationsByProject возвращает регистрации на проект.
func (s *Service) GetRegistrationsByProject(ctx context.Context, projectName string) ([]model.OfficerRegistration, error) {
	return s.repo.GetRegistrationsByProject(ctx, projectName)
}
