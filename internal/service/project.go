package service

import (
	"context"

	"github.com/mkoshelev/bto-system/internal/eligibility"
	"github.com/mkoshelev/bto-system/internal/model"
)

// CreateProject создаёт проект BTO. Проект создаётся невидимым; у менеджера
// не может быть другого проекта с пересекающимся периодом подачи заявок.
func (s *Service) CreateProject(ctx context.Context, managerNric string, p *model.Project) error {
	manager, err := s.repo.GetUserByNric(ctx, managerNric)
	if err != nil {
		return err
	}
	if manager.Role != model.RoleManager {
		return ErrNotAllowed
	}

	if err := s.checkManagerPeriod(ctx, managerNric, p); err != nil {
		return err
	}

	p.ManagerNric = managerNric
	p.Visible = false

	for ft, units := range p.Flats {
		units.Available = units.Total
		p.Flats[ft] = units
	}

	return s.repo.CreateProject(ctx, p)
}

// EditProject обновляет атрибуты проекта. Менять проект может только его менеджер.
func (s *Service) EditProject(ctx context.Context, managerNric string, p *model.Project) error {
	existing, err := s.repo.GetProjectByName(ctx, p.Name)
	if err != nil {
		return err
	}
	if existing.ManagerNric != managerNric {
		return ErrNotAllowed
	}

	if err := s.checkManagerPeriod(ctx, managerNric, p); err != nil {
		return err
	}

	p.Visible = existing.Visible

	return s.repo.UpdateProject(ctx, p)
}

func (s *Service) checkManagerPeriod(ctx context.Context, managerNric string, p *model.Project) error {
	all, err := s.repo.GetAllProjects(ctx)
	if err != nil {
		return err
	}

	for _, other := range all {
		if model.SameProjectName(other.Name, p.Name) {
			continue
		}
		if other.ManagerNric == managerNric &&
			eligibility.DatesOverlap(p.OpenDate, p.CloseDate, other.OpenDate, other.CloseDate) {
			return ErrManagerBusy
		}
	}

	return nil
}

// SetProjectVisibility включает или выключает видимость проекта для заявителей.
func (s *Service) SetProjectVisibility(ctx context.Context, managerNric, name string, visible bool) error {
	project, err := s.repo.GetProjectByName(ctx, name)
	if err != nil {
		return err
	}
	if project.ManagerNric != managerNric {
		return ErrNotAllowed
	}

	return s.repo.SetProjectVisibility(ctx, name, visible)
}

// DeleteProject удаляет проект своего менеджера. Без force удаление
// отклоняется, пока есть незакрытые заявки или нерассмотренные регистрации.
func (s *Service) DeleteProject(ctx context.Context, managerNric, name string, force bool) error {
	project, err := s.repo.GetProjectByName(ctx, name)
	if err != nil {
		return err
	}
	if project.ManagerNric != managerNric {
		return ErrNotAllowed
	}

	return s.repo.DeleteProject(ctx, name, force)
}

// GetProjectByName возвращает проект по имени.
func (s *Service) GetProjectByName(ctx context.Context, name string) (*model.Project, error) {
	return s.repo.GetProjectByName(ctx, name)
}

// ListVisibleProjects возвращает проекты, видимые пользователю: менеджерам —
// все, остальным — видимые проекты плюс проекты со своей незакрытой заявкой
// и, для офицеров, с утверждённой регистрацией.
func (s *Service) ListVisibleProjects(ctx context.Context, nric string) ([]*model.Project, error) {
	user, err := s.repo.GetUserByNric(ctx, nric)
	if err != nil {
		return nil, err
	}

	all, err := s.repo.GetAllProjects(ctx)
	if err != nil {
		return nil, err
	}

	apps, err := s.repo.GetApplicationsByApplicant(ctx, nric)
	if err != nil {
		return nil, err
	}

	var regs []model.OfficerRegistration
	if user.Role == model.RoleOfficer {
		regs, err = s.repo.GetRegistrationsByOfficer(ctx, nric)
		if err != nil {
			return nil, err
		}
	}

	var res []*model.Project
	for _, p := range all {
		if eligibility.IsProjectVisibleToUser(user, p, apps, regs) {
			res = append(res, p)
		}
	}

	return res, nil
}
