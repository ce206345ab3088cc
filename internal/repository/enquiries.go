package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mkoshelev/bto-system/internal/model"
)

// CreateEnquiry сохраняет вопрос и возвращает его идентификатор.
// Идентификаторы выдаёт последовательность БД.
func (r *PostgresRepository) CreateEnquiry(ctx context.Context, e *model.Enquiry) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO enquiries (applicant_nric, project_name, enquiry_text)
		 VALUES ($1, $2, $3) RETURNING id`,
		e.ApplicantNric, e.ProjectName, e.Text,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert enquiry: %w", err)
	}
	return id, nil
}

// GetEnquiryByID возвращает вопрос по идентификатору.
func (r *PostgresRepository) GetEnquiryByID(ctx context.Context, id int64) (*model.Enquiry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, applicant_nric, project_name, enquiry_text, reply, created_at, replied_at
		 FROM enquiries WHERE id = $1`,
		id,
	)

	e, err := scanEnquiry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEnquiryNotFound
		}
		return nil, fmt.Errorf("get enquiry: %w", err)
	}

	return e, nil
}

// GetEnquiriesByApplicant возвращает вопросы пользователя, новые первыми.
func (r *PostgresRepository) GetEnquiriesByApplicant(ctx context.Context, nric string) ([]model.Enquiry, error) {
	return r.selectEnquiries(ctx,
		`SELECT id, applicant_nric, project_name, enquiry_text, reply, created_at, replied_at
		 FROM enquiries WHERE applicant_nric = $1 ORDER BY created_at DESC`,
		nric,
	)
}

// GetEnquiriesByProject возвращает вопросы по проекту.
func (r *PostgresRepository) GetEnquiriesByProject(ctx context.Context, projectName string) ([]model.Enquiry, error) {
	return r.selectEnquiries(ctx,
		`SELECT id, applicant_nric, project_name, enquiry_text, reply, created_at, replied_at
		 FROM enquiries WHERE lower(project_name) = lower($1) ORDER BY created_at`,
		projectName,
	)
}

func (r *PostgresRepository) selectEnquiries(ctx context.Context, query string, args ...any) ([]model.Enquiry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select enquiries: %w", err)
	}
	defer rows.Close()

	var res []model.Enquiry
	for rows.Next() {
		e, err := scanEnquiry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enquiry: %w", err)
		}
		res = append(res, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanEnquiry(row pgx.Row) (*model.Enquiry, error) {
	var e model.Enquiry
	err := row.Scan(&e.ID, &e.ApplicantNric, &e.ProjectName, &e.Text, &e.Reply, &e.CreatedAt, &e.RepliedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEnquiryText обновляет текст вопроса.
func (r *PostgresRepository) UpdateEnquiryText(ctx context.Context, id int64, text string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE enquiries SET enquiry_text = $2 WHERE id = $1`,
		id, text,
	)
	if err != nil {
		return fmt.Errorf("update enquiry: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrEnquiryNotFound
	}
	return nil
}

// ReplyEnquiry записывает ответ на вопрос.
func (r *PostgresRepository) ReplyEnquiry(ctx context.Context, id int64, reply string, repliedAt time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE enquiries SET reply = $2, replied_at = $3 WHERE id = $1`,
		id, reply, repliedAt,
	)
	if err != nil {
		return fmt.Errorf("reply enquiry: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrEnquiryNotFound
	}
	return nil
}

// DeleteEnquiry удаляет вопрос.
func (r *PostgresRepository) DeleteEnquiry(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM enquiries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enquiry: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrEnquiryNotFound
	}
	return nil
}
