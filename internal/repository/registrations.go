package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mkoshelev/bto-system/internal/model"
)

// CreateRegistration сохраняет новую регистрацию офицера.
func (r *PostgresRepository) CreateRegistration(ctx context.Context, reg *model.OfficerRegistration) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO registrations (id, officer_nric, project_name, status, registered_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		reg.ID, reg.OfficerNric, reg.ProjectName, string(reg.Status), reg.RegisteredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, reg.ID)
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetRegistrationByID возвращает регистрацию по каноническому идентификатору.
func (r *PostgresRepository) GetRegistrationByID(ctx context.Context, id string) (*model.OfficerRegistration, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, officer_nric, project_name, status, registered_at
		 FROM registrations WHERE id = $1`,
		id,
	)

	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}

	return reg, nil
}

// GetRegistrationsByOfficer возвращает регистрации офицера.
func (r *PostgresRepository) GetRegistrationsByOfficer(ctx context.Context, nric string) ([]model.OfficerRegistration, error) {
	return r.selectRegistrations(ctx,
		`SELECT id, officer_nric, project_name, status, registered_at
		 FROM registrations WHERE officer_nric = $1 ORDER BY registered_at`,
		nric,
	)
}

// GetRegistrationsByProject возвращает регистрации на проект.
func (r *PostgresRepository) GetRegistrationsByProject(ctx context.Context, projectName string) ([]model.OfficerRegistration, error) {
	return r.selectRegistrations(ctx,
		`SELECT id, officer_nric, project_name, status, registered_at
		 FROM registrations WHERE lower(project_name) = lower($1) ORDER BY registered_at`,
		projectName,
	)
}

// GetAllRegistrations возвращает все регистрации.
func (r *PostgresRepository) GetAllRegistrations(ctx context.Context) ([]model.OfficerRegistration, error) {
	return r.selectRegistrations(ctx,
		`SELECT id, officer_nric, project_name, status, registered_at
		 FROM registrations ORDER BY registered_at`,
	)
}

func (r *PostgresRepository) selectRegistrations(ctx context.Context, query string, args ...any) ([]model.OfficerRegistration, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select registrations: %w", err)
	}
	defer rows.Close()

	var res []model.OfficerRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		res = append(res, *reg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanRegistration(row pgx.Row) (*model.OfficerRegistration, error) {
	var (
		reg    model.OfficerRegistration
		status string
	)
	err := row.Scan(&reg.ID, &reg.OfficerNric, &reg.ProjectName, &status, &reg.RegisteredAt)
	if err != nil {
		return nil, err
	}

	reg.Status = model.RegistrationStatus(status)

	return &reg, nil
}

// ApproveRegistration переводит регистрацию PENDING -> APPROVED и добавляет
// офицера в состав проекта. Проверка свободного слота и вставка в состав
// выполняются под блокировкой строки проекта, чтобы два параллельных
// одобрения не заняли последний слот дважды.
func (r *PostgresRepository) ApproveRegistration(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT id, officer_nric, project_name, status, registered_at
		 FROM registrations WHERE id = $1 FOR UPDATE`,
		id,
	)
	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("lock registration: %w", err)
	}

	if reg.Status != model.RegistrationStatusPending {
		return ErrNotPending
	}

	var (
		projectName string
		slots       int
	)
	err = tx.QueryRow(ctx,
		`SELECT name, officer_slots FROM projects WHERE lower(name) = lower($1) FOR UPDATE`,
		reg.ProjectName,
	).Scan(&projectName, &slots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("lock project: %w", err)
	}

	var taken int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM project_officers WHERE project_name = $1`,
		projectName,
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("count project officers: %w", err)
	}

	if taken >= slots {
		return ErrNoSlotsRemaining
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO project_officers (project_name, officer_nric) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		projectName, reg.OfficerNric,
	)
	if err != nil {
		return fmt.Errorf("insert project officer: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE registrations SET status = $2 WHERE id = $1`,
		reg.ID, string(model.RegistrationStatusApproved),
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// RejectRegistration переводит регистрацию PENDING -> REJECTED.
func (r *PostgresRepository) RejectRegistration(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE registrations SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(model.RegistrationStatusRejected), string(model.RegistrationStatusPending),
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, getErr := r.GetRegistrationByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNotPending
	}
	return nil
}

// DeleteRegistration удаляет регистрацию. Используется сверкой для записей,
// ссылающихся на несуществующего офицера или проект.
func (r *PostgresRepository) DeleteRegistration(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return nil
}
