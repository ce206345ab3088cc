package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mkoshelev/bto-system/internal/model"
)

// Порядок значимости статусов при выборе заявки для кэша заявителя.
// Меньшее значение — более значимый статус.
var statusRelevance = map[model.ApplicationStatus]int{
	model.ApplicationStatusBooked:            0,
	model.ApplicationStatusSuccessful:        1,
	model.ApplicationStatusPending:           2,
	model.ApplicationStatusPendingWithdrawal: 3,
	model.ApplicationStatusWithdrawn:         4,
	model.ApplicationStatusUnsuccessful:      5,
}

// Reconcile выполняет одноразовую сверку данных на старте, до обработки
// запросов: перестраивает кэшированное состояние заявителей по заявкам,
// пересчитывает доступные квартиры по бронированиям и чинит состав офицеров
// и регистрации после правок данных в обход сервиса. Проблемы целостности
// не фатальны: где есть безопасное значение — оно применяется с
// предупреждением в логе, безнадёжные записи отбрасываются.
func (s *Service) Reconcile(ctx context.Context) error {
	users, err := s.repo.GetAllUsers(ctx)
	if err != nil {
		return err
	}

	apps, err := s.repo.GetAllApplications(ctx)
	if err != nil {
		return err
	}

	projects, err := s.repo.GetAllProjects(ctx)
	if err != nil {
		return err
	}

	regs, err := s.repo.GetAllRegistrations(ctx)
	if err != nil {
		return err
	}

	if err := s.rebuildCachedStates(ctx, users, apps); err != nil {
		return err
	}

	if err := s.recountAvailableUnits(ctx, projects, apps); err != nil {
		return err
	}

	if err := s.repairRosters(ctx, projects, users, regs); err != nil {
		return err
	}

	return s.dropOrphanedRegistrations(ctx, regs, users, projects)
}

// rebuildCachedStates выбирает для каждого заявителя самую значимую заявку
// и перестраивает по ней кэшированное состояние; заявителям без заявок кэш
// очищается.
func (s *Service) rebuildCachedStates(ctx context.Context, users map[string]*model.User, apps []model.BTOApplication) error {
	best := make(map[string]model.BTOApplication)
	for _, a := range apps {
		cur, ok := best[a.ApplicantNric]
		if !ok || moreRelevant(a, cur) {
			best[a.ApplicantNric] = a
		}
	}

	for nric, u := range users {
		var (
			project string
			status  model.ApplicationStatus
			flat    model.FlatType
		)

		if a, ok := best[nric]; ok {
			project = a.ProjectName
			status = a.Status
			if a.Status == model.ApplicationStatusBooked ||
				(a.Status == model.ApplicationStatusPendingWithdrawal &&
					a.StatusBeforeWithdrawal == model.ApplicationStatusBooked) {
				flat = a.FlatType
			}
		}

		if u.AppliedProject == project && u.ApplicationStatus == status && u.BookedFlatType == flat {
			continue
		}

		s.logger.Warn("cached applicant state out of sync, rebuilding",
			zap.String("nric", nric),
			zap.String("project", project),
			zap.String("status", string(status)),
		)

		if err := s.repo.UpdateUserCachedState(ctx, nric, project, status, flat); err != nil {
			return err
		}
	}

	return nil
}

func moreRelevant(a, b model.BTOApplication) bool {
	ra, ok := statusRelevance[a.Status]
	if !ok {
		return false
	}
	rb, ok := statusRelevance[b.Status]
	if !ok {
		return true
	}
	if ra != rb {
		return ra < rb
	}
	return a.AppliedAt.After(b.AppliedAt)
}

// recountAvailableUnits пересчитывает доступные квартиры каждого проекта
// как total - count(BOOKED). Значение за пределами [0, total] — признак
// повреждения данных: бронирований больше, чем квартир.
func (s *Service) recountAvailableUnits(ctx context.Context, projects []*model.Project, apps []model.BTOApplication) error {
	for _, p := range projects {
		for ft, units := range p.Flats {
			booked := 0
			for _, a := range apps {
				if model.SameProjectName(a.ProjectName, p.Name) &&
					a.FlatType == ft && a.Status == model.ApplicationStatusBooked {
					booked++
				}
			}

			want := units.Total - booked
			if want < 0 || want > units.Total {
				s.logger.Warn("available units out of range, clamping",
					zap.String("project", p.Name),
					zap.String("flatType", string(ft)),
					zap.Int("computed", want),
					zap.Int("total", units.Total),
				)
			}

			if want == units.Available {
				continue
			}

			written, err := s.repo.SetAvailableUnits(ctx, p.Name, ft, want)
			if err != nil {
				return err
			}

			if written != want {
				s.logger.Warn("available units clamped by store",
					zap.String("project", p.Name),
					zap.String("flatType", string(ft)),
					zap.Int("computed", want),
					zap.Int("written", written),
				)
			}
		}
	}

	return nil
}

// repairRosters проверяет состав офицеров каждого проекта: записи, не
// соответствующие действующему офицеру, отбрасываются; для офицера без
// утверждённой регистрации регистрация досоздаётся, а не теряется.
func (s *Service) repairRosters(ctx context.Context, projects []*model.Project, users map[string]*model.User, regs []model.OfficerRegistration) error {
	regByID := make(map[string]model.OfficerRegistration, len(regs))
	for _, r := range regs {
		regByID[r.ID] = r
	}

	for _, p := range projects {
		for _, nric := range p.Officers {
			u, ok := users[nric]
			if !ok || u.Role != model.RoleOfficer {
				s.logger.Warn("roster entry does not resolve to an officer, dropping",
					zap.String("project", p.Name),
					zap.String("nric", nric),
				)
				if err := s.repo.RemoveProjectOfficer(ctx, p.Name, nric); err != nil {
					return err
				}
				continue
			}

			id := model.RegistrationID(nric, p.Name)
			reg, ok := regByID[id]
			if !ok {
				s.logger.Warn("approved officer has no registration record, synthesizing",
					zap.String("project", p.Name),
					zap.String("nric", nric),
				)
				synth := &model.OfficerRegistration{
					ID:          id,
					OfficerNric: nric,
					ProjectName: p.Name,
					Status:      model.RegistrationStatusApproved,
					// Дата регистрации утеряна; подставляется открытие проекта.
					RegisteredAt: p.OpenDate,
				}
				if err := s.repo.CreateRegistration(ctx, synth); err != nil {
					return err
				}
				regByID[id] = *synth
				continue
			}

			if reg.Status != model.RegistrationStatusApproved {
				s.logger.Warn("roster entry with non-approved registration",
					zap.String("project", p.Name),
					zap.String("nric", nric),
					zap.String("status", string(reg.Status)),
				)
			}
		}
	}

	return nil
}

// dropOrphanedRegistrations отбрасывает регистрации, ссылающиеся на
// несуществующего офицера или проект: безопасного значения для них нет.
func (s *Service) dropOrphanedRegistrations(ctx context.Context, regs []model.OfficerRegistration, users map[string]*model.User, projects []*model.Project) error {
	projectNames := make(map[string]bool, len(projects))
	for _, p := range projects {
		projectNames[strings.ToLower(p.Name)] = true
	}

	for _, r := range regs {
		u, okUser := users[r.OfficerNric]
		okUser = okUser && u.Role == model.RoleOfficer

		if okUser && projectNames[strings.ToLower(r.ProjectName)] {
			continue
		}

		s.logger.Warn("registration references missing officer or project, discarding",
			zap.String("registration", r.ID),
		)

		if err := s.repo.DeleteRegistration(ctx, r.ID); err != nil {
			return err
		}
	}

	return nil
}
