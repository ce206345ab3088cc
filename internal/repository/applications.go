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

// CreateApplication сохраняет новую заявку и обновляет кэшированное
// состояние заявителя в той же транзакции.
func (r *PostgresRepository) CreateApplication(ctx context.Context, app *model.BTOApplication) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO applications (id, applicant_nric, project_name, flat_type, status, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		app.ID, app.ApplicantNric, app.ProjectName, string(app.FlatType), string(app.Status), app.AppliedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrAlreadyApplied, app.ID)
		}
		return fmt.Errorf("insert application: %w", err)
	}

	err = updateCachedStateTx(ctx, tx, app.ApplicantNric, app.ProjectName, app.Status, "")
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetApplicationByID возвращает заявку по каноническому идентификатору.
func (r *PostgresRepository) GetApplicationByID(ctx context.Context, id string) (*model.BTOApplication, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, applicant_nric, project_name, flat_type, status, status_before_withdrawal, applied_at
		 FROM applications WHERE id = $1`,
		id,
	)

	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("get application: %w", err)
	}

	return app, nil
}

// GetApplicationsByApplicant возвращает заявки пользователя, новые первыми.
func (r *PostgresRepository) GetApplicationsByApplicant(ctx context.Context, nric string) ([]model.BTOApplication, error) {
	return r.selectApplications(ctx,
		`SELECT id, applicant_nric, project_name, flat_type, status, status_before_withdrawal, applied_at
		 FROM applications WHERE applicant_nric = $1 ORDER BY applied_at DESC`,
		nric,
	)
}

// GetApplicationsByProject возвращает заявки на проект.
func (r *PostgresRepository) GetApplicationsByProject(ctx context.Context, projectName string) ([]model.BTOApplication, error) {
	return r.selectApplications(ctx,
		`SELECT id, applicant_nric, project_name, flat_type, status, status_before_withdrawal, applied_at
		 FROM applications WHERE lower(project_name) = lower($1) ORDER BY applied_at`,
		projectName,
	)
}

// GetAllApplications возвращает все заявки.
func (r *PostgresRepository) GetAllApplications(ctx context.Context) ([]model.BTOApplication, error) {
	return r.selectApplications(ctx,
		`SELECT id, applicant_nric, project_name, flat_type, status, status_before_withdrawal, applied_at
		 FROM applications ORDER BY applied_at`,
	)
}

func (r *PostgresRepository) selectApplications(ctx context.Context, query string, args ...any) ([]model.BTOApplication, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select applications: %w", err)
	}
	defer rows.Close()

	var res []model.BTOApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		res = append(res, *app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanApplication(row pgx.Row) (*model.BTOApplication, error) {
	var (
		app          model.BTOApplication
		flat         string
		status       string
		beforeStatus string
	)
	err := row.Scan(&app.ID, &app.ApplicantNric, &app.ProjectName, &flat, &status, &beforeStatus, &app.AppliedAt)
	if err != nil {
		return nil, err
	}

	app.FlatType = model.FlatType(flat)
	app.Status = model.ApplicationStatus(status)
	app.StatusBeforeWithdrawal = model.ApplicationStatus(beforeStatus)

	return &app, nil
}

func lockApplicationTx(ctx context.Context, tx pgx.Tx, id string) (*model.BTOApplication, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, applicant_nric, project_name, flat_type, status, status_before_withdrawal, applied_at
		 FROM applications WHERE id = $1 FOR UPDATE`,
		id,
	)

	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("lock application: %w", err)
	}

	return app, nil
}

// ApproveApplication переводит заявку PENDING -> SUCCESSFUL. Одобрение
// ограничено общим числом квартир: количество уже одобренных и
// забронированных заявок на тот же проект и тип должно быть строго меньше
// total_units. Доступные квартиры при этом не расходуются — они
// списываются только при бронировании. Строка project_flats блокируется на
// время подсчёта, чтобы параллельные одобрения не превысили лимит.
func (r *PostgresRepository) ApproveApplication(ctx context.Context, id string) error {
	return r.withRetry(ctx, func() error {
		return r.approveApplication(ctx, id)
	})
}

func (r *PostgresRepository) approveApplication(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	app, err := lockApplicationTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if app.Status != model.ApplicationStatusPending {
		return ErrNotPending
	}

	var total int
	err = tx.QueryRow(ctx,
		`SELECT total_units FROM project_flats
		 WHERE lower(project_name) = lower($1) AND flat_type = $2
		 FOR UPDATE`,
		app.ProjectName, string(app.FlatType),
	).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("select total units: %w", err)
	}

	var approved int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM applications
		 WHERE lower(project_name) = lower($1) AND flat_type = $2 AND status = ANY($3)`,
		app.ProjectName, string(app.FlatType),
		[]string{string(model.ApplicationStatusSuccessful), string(model.ApplicationStatusBooked)},
	).Scan(&approved)
	if err != nil {
		return fmt.Errorf("count approved applications: %w", err)
	}

	if approved >= total {
		return ErrSupplyExhausted
	}

	return r.finishTransition(ctx, tx, app, model.ApplicationStatusSuccessful, "", "")
}

// RejectApplication переводит заявку PENDING -> UNSUCCESSFUL.
func (r *PostgresRepository) RejectApplication(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	app, err := lockApplicationTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if app.Status != model.ApplicationStatusPending {
		return ErrNotPending
	}

	return r.finishTransition(ctx, tx, app, model.ApplicationStatusUnsuccessful, "", "")
}

// RequestWithdrawal переводит заявку из PENDING, SUCCESSFUL или BOOKED в
// PENDING_WITHDRAWAL, запоминая прежний статус для возврата.
func (r *PostgresRepository) RequestWithdrawal(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	app, err := lockApplicationTx(ctx, tx, id)
	if err != nil {
		return err
	}

	switch app.Status {
	case model.ApplicationStatusPending, model.ApplicationStatusSuccessful, model.ApplicationStatusBooked:
	default:
		return ErrNotWithdrawable
	}

	bookedFlat := model.FlatType("")
	if app.Status == model.ApplicationStatusBooked {
		bookedFlat = app.FlatType
	}

	return r.finishTransition(ctx, tx, app, model.ApplicationStatusPendingWithdrawal, app.Status, bookedFlat)
}

// FinalizeWithdrawal завершает отзыв заявки из PENDING_WITHDRAWAL в
// указанный терминальный статус. При releaseUnit квартира возвращается в
// инвентарь той же транзакцией.
func (r *PostgresRepository) FinalizeWithdrawal(ctx context.Context, id string, finalStatus model.ApplicationStatus, releaseUnit bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	app, err := lockApplicationTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if app.Status != model.ApplicationStatusPendingWithdrawal {
		return ErrNotWithdrawable
	}

	if releaseUnit {
		if err := incrementUnitsTx(ctx, tx, app.ProjectName, app.FlatType); err != nil {
			return err
		}
	}

	return r.finishTransition(ctx, tx, app, finalStatus, "", "")
}

// RevertWithdrawal возвращает заявку из PENDING_WITHDRAWAL в прежний статус.
func (r *PostgresRepository) RevertWithdrawal(ctx context.Context, id string, priorStatus model.ApplicationStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	app, err := lockApplicationTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if app.Status != model.ApplicationStatusPendingWithdrawal {
		return ErrNotWithdrawable
	}

	bookedFlat := model.FlatType("")
	if priorStatus == model.ApplicationStatusBooked {
		bookedFlat = app.FlatType
	}

	return r.finishTransition(ctx, tx, app, priorStatus, "", bookedFlat)
}

// BookApplication бронирует квартиру для одобренной заявки: списание
// квартиры из инвентаря, перевод SUCCESSFUL -> BOOKED и обновление кэша
// заявителя выполняются одной транзакцией.
func (r *PostgresRepository) BookApplication(ctx context.Context, id string) error {
	return r.withRetry(ctx, func() error {
		return r.bookApplication(ctx, id)
	})
}

func (r *PostgresRepository) bookApplication(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	app, err := lockApplicationTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if app.Status == model.ApplicationStatusBooked {
		return ErrAlreadyBooked
	}
	if app.Status != model.ApplicationStatusSuccessful {
		return ErrNotPending
	}

	if err := decrementUnitsTx(ctx, tx, app.ProjectName, app.FlatType); err != nil {
		return err
	}

	return r.finishTransition(ctx, tx, app, model.ApplicationStatusBooked, "", app.FlatType)
}

// finishTransition записывает новый статус заявки и кэшированное состояние
// заявителя и завершает транзакцию. Кэш и запись-источник меняются вместе,
// чтобы параллельный читатель не увидел расхождение.
func (r *PostgresRepository) finishTransition(ctx context.Context, tx pgx.Tx, app *model.BTOApplication, status, beforeStatus model.ApplicationStatus, bookedFlat model.FlatType) error {
	_, err := tx.Exec(ctx,
		`UPDATE applications SET status = $2, status_before_withdrawal = $3 WHERE id = $1`,
		app.ID, string(status), string(beforeStatus),
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}

	err = updateCachedStateTx(ctx, tx, app.ApplicantNric, app.ProjectName, status, bookedFlat)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
