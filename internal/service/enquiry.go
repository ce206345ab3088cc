package service

import (
	"context"
	"time"

	"github.com/mkoshelev/bto-system/internal/model"
)

// SubmitEnquiry создаёт вопрос пользователя по проекту.
func (s *Service) SubmitEnquiry(ctx context.Context, nric, projectName, text string) (*model.Enquiry, error) {
	project, err := s.repo.GetProjectByName(ctx, projectName)
	if err != nil {
		return nil, err
	}

	e := &model.Enquiry{
		ApplicantNric: nric,
		ProjectName:   project.Name,
		Text:          text,
		CreatedAt:     time.Now(),
	}

	id, err := s.repo.CreateEnquiry(ctx, e)
	if err != nil {
		return nil, err
	}
	e.ID = id

	return e, nil
}

// GetEnquiriesByApplicant возвращает вопросы пользователя.
func (s *Service) GetEnquiriesByApplicant(ctx context.Context, nric string) ([]model.Enquiry, error) {
	return s.repo.GetEnquiriesByApplicant(ctx, nric)
}

// GetEnquiriesByProject возвращает вопросы по проекту.
func (s *Service) GetEnquiriesByProject(ctx context.Context, projectName string) ([]model.Enquiry, error) {
	return s.repo.GetEnquiriesByProject(ctx, projectName)
}

// EditEnquiry обновляет текст своего вопроса, пока на него не ответили.
func (s *Service) EditEnquiry(ctx context.Context, nric string, id int64, text string) error {
	e, err := s.repo.GetEnquiryByID(ctx, id)
	if err != nil {
		return err
	}
	if e.ApplicantNric != nric || e.RepliedAt != nil {
		return ErrNotAllowed
	}

	return s.repo.UpdateEnquiryText(ctx, id, text)
}

// DeleteEnquiry удаляет свой вопрос.
func (s *Service) DeleteEnquiry(ctx context.Context, nric string, id int64) error {
	e, err := s.repo.GetEnquiryByID(ctx, id)
	if err != nil {
		return err
	}
	if e.ApplicantNric != nric {
		return ErrNotAllowed
	}

	return s.repo.DeleteEnquiry(ctx, id)
}

// ReplyEnquiry записывает ответ на вопрос. Отвечать может менеджер проекта
// или офицер из его утверждённого состава.
func (s *Service) ReplyEnquiry(ctx context.Context, replierNric string, id int64, reply string) error {
	e, err := s.repo.GetEnquiryByID(ctx, id)
	if err != nil {
		return err
	}

	project, err := s.repo.GetProjectByName(ctx, e.ProjectName)
	if err != nil {
		return err
	}

	if project.ManagerNric != replierNric && !project.HasOfficer(replierNric) {
		return ErrNotAllowed
	}

	return s.repo.ReplyEnquiry(ctx, id, reply, time.Now())
}
