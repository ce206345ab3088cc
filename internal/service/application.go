package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mkoshelev/bto-system/internal/eligibility"
	"github.com/mkoshelev/bto-system/internal/model"
	"github.com/mkoshelev/bto-system/internal/repository"
)

// SubmitApplication создаёт заявку на квартиру. У заявителя не должно быть
// незакрытой заявки; тип квартиры должен быть доступен ему по правилам
// допуска и иметь свободные квартиры на момент подачи. Проверка доступности
// мягкая — квартира не резервируется до бронирования.
func (s *Service) SubmitApplication(ctx context.Context, nric, projectName string, flatType model.FlatType) (*model.BTOApplication, error) {
	user, err := s.repo.GetUserByNric(ctx, nric)
	if err != nil {
		return nil, err
	}

	project, err := s.repo.GetProjectByName(ctx, projectName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	today := dateOnly(now)
	if today.Before(project.OpenDate) || today.After(project.CloseDate) {
		return nil, ErrProjectClosed
	}

	apps, err := s.repo.GetApplicationsByApplicant(ctx, nric)
	if err != nil {
		return nil, err
	}
	for _, a := range apps {
		if a.Status.IsActive() {
			return nil, repository.ErrAlreadyApplied
		}
	}

	if !eligibility.CanApplyForFlatType(user, flatType) {
		return nil, ErrIneligible
	}

	units, ok := project.Flats[flatType]
	if !ok {
		return nil, ErrIneligible
	}
	if units.Available == 0 {
		return nil, repository.ErrNoUnitsAvailable
	}

	app := &model.BTOApplication{
		ID:            model.ApplicationID(nric, project.Name),
		ApplicantNric: nric,
		ProjectName:   project.Name,
		FlatType:      flatType,
		Status:        model.ApplicationStatusPending,
		AppliedAt:     now,
	}

	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, err
	}

	return app, nil
}

// ApproveApplication одобряет заявку, если одобренных и забронированных
// заявок на тот же проект и тип квартиры меньше общего числа квартир.
func (s *Service) ApproveApplication(ctx context.Context, id string) error {
	return s.repo.ApproveApplication(ctx, id)
}

// RejectApplication отклоняет заявку в статусе PENDING.
func (s *Service) RejectApplication(ctx context.Context, id string) error {
	return s.repo.RejectApplication(ctx, id)
}

// RequestWithdrawal создаёт запрос на отзыв незакрытой заявки пользователя.
func (s *Service) RequestWithdrawal(ctx context.Context, nric string) error {
	apps, err := s.repo.GetApplicationsByApplicant(ctx, nric)
	if err != nil {
		return err
	}

	for _, a := range apps {
		switch a.Status {
		case model.ApplicationStatusPending, model.ApplicationStatusSuccessful, model.ApplicationStatusBooked:
			return s.repo.RequestWithdrawal(ctx, a.ID)
		case model.ApplicationStatusPendingWithdrawal:
			return repository.ErrNotWithdrawable
		}
	}

	return repository.ErrApplicationNotFound
}

// ApproveWithdrawal одобряет отзыв заявки. Если до отзыва заявка была
// BOOKED, квартира возвращается в инвентарь и итоговый статус UNSUCCESSFUL;
// после SUCCESSFUL — UNSUCCESSFUL без возврата; после PENDING — WITHDRAWN.
func (s *Service) ApproveWithdrawal(ctx context.Context, id string) error {
	app, err := s.repo.GetApplicationByID(ctx, id)
	if err != nil {
		return err
	}

	prior, err := s.priorStatus(ctx, app)
	if err != nil {
		return err
	}

	switch prior {
	case model.ApplicationStatusBooked:
		return s.repo.FinalizeWithdrawal(ctx, id, model.ApplicationStatusUnsuccessful, true)
	case model.ApplicationStatusSuccessful:
		return s.repo.FinalizeWithdrawal(ctx, id, model.ApplicationStatusUnsuccessful, false)
	default:
		return s.repo.FinalizeWithdrawal(ctx, id, model.ApplicationStatusWithdrawn, false)
	}
}

// RejectWithdrawal отклоняет запрос на отзыв и возвращает заявку в прежний статус.
func (s *Service) RejectWithdrawal(ctx context.Context, id string) error {
	app, err := s.repo.GetApplicationByID(ctx, id)
	if err != nil {
		return err
	}

	prior, err := s.priorStatus(ctx, app)
	if err != nil {
		return err
	}

	return s.repo.RevertWithdrawal(ctx, id, prior)
}

// priorStatus возвращает статус заявки до запроса на отзыв. Для старых
// данных без записанного статуса прежнее состояние восстанавливается
// эвристикой: BOOKED, если кэш заявителя хранит тот же тип квартиры, иначе
// SUCCESSFUL при наличии типа, иначе PENDING. Восстановление может ошибиться
// при расхождении кэша и заявки, поэтому каждый случай логируется.
func (s *Service) priorStatus(ctx context.Context, app *model.BTOApplication) (model.ApplicationStatus, error) {
	if app.StatusBeforeWithdrawal != "" {
		return app.StatusBeforeWithdrawal, nil
	}

	user, err := s.repo.GetUserByNric(ctx, app.ApplicantNric)
	if err != nil {
		return "", err
	}

	inferred := model.ApplicationStatusPending
	switch {
	case user.BookedFlatType != "" && user.BookedFlatType == app.FlatType:
		inferred = model.ApplicationStatusBooked
	case app.FlatType != "":
		inferred = model.ApplicationStatusSuccessful
	}

	s.logger.Warn("status before withdrawal missing, inferred from cached state",
		zap.String("application", app.ID),
		zap.String("inferred", string(inferred)),
	)

	return inferred, nil
}

// BookFlat бронирует квартиру для одобренной заявки. Бронировать может
// только офицер из утверждённого состава проекта, и только для заявителя
// без уже имеющегося бронирования. Списание квартиры — жёсткое: при
// исчерпании свободных квартир операция завершается ошибкой.
func (s *Service) BookFlat(ctx context.Context, officerNric, applicationID string) error {
	app, err := s.repo.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return err
	}

	project, err := s.repo.GetProjectByName(ctx, app.ProjectName)
	if err != nil {
		return err
	}
	if !project.HasOfficer(officerNric) {
		return ErrNotAllowed
	}

	applicant, err := s.repo.GetUserByNric(ctx, app.ApplicantNric)
	if err != nil {
		return err
	}
	if applicant.BookedFlatType != "" {
		return ErrAlreadyBooked
	}

	return s.repo.BookApplication(ctx, applicationID)
}

// GetApplicationsByApplicant возвращает заявки пользователя.
func (s *Service) GetApplicationsByApplicant(ctx context.Context, nric string) ([]model.BTOApplication, error) {
	return s.repo.GetApplicationsByApplicant(ctx, nric)
}

// GetApplicationsByProject возвращает заявки на проект.
func (s *Service) GetApplicationsByProject(ctx context.Context, projectName string) ([]model.BTOApplication, error) {
	return s.repo.GetApplicationsByProject(ctx, projectName)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
