// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mkoshelev/bto-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим NRIC.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProjectExists возвращается при попытке создать проект с занятым именем.
	ErrProjectExists = errors.New("project already exists")
	// ErrProjectNotFound возвращается, если проект не найден.
	ErrProjectNotFound = errors.New("project not found")
	// ErrApplicationNotFound возвращается, если заявка не найдена.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrRegistrationNotFound возвращается, если регистрация офицера не найдена.
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrEnquiryNotFound возвращается, если вопрос не найден.
	ErrEnquiryNotFound = errors.New("enquiry not found")
	// ErrAlreadyApplied возвращается при повторной заявке на тот же проект.
	ErrAlreadyApplied = errors.New("application for this project already exists")
	// ErrAlreadyRegistered возвращается при повторной регистрации на тот же проект.
	ErrAlreadyRegistered = errors.New("registration for this project already exists")
	// ErrNotPending возвращается, если заявка или регистрация не в требуемом исходном статусе.
	ErrNotPending = errors.New("record is not in the required status")
	// ErrNotWithdrawable возвращается, если заявка не может быть отозвана из текущего статуса.
	ErrNotWithdrawable = errors.New("application cannot be withdrawn")
	// ErrSupplyExhausted возвращается, когда число одобренных заявок достигло общего числа квартир.
	ErrSupplyExhausted = errors.New("approved applications reached total supply")
	// ErrNoUnitsAvailable возвращается при попытке забронировать квартиру, когда свободных не осталось.
	ErrNoUnitsAvailable = errors.New("no units available")
	// ErrUnitsAtCapacity возвращается при попытке вернуть квартиру сверх общего числа.
	ErrUnitsAtCapacity = errors.New("available units already at capacity")
	// ErrNoSlotsRemaining возвращается, когда в проекте не осталось слотов для офицеров.
	ErrNoSlotsRemaining = errors.New("no officer slots remaining")
	// ErrAlreadyBooked возвращается при попытке повторного бронирования.
	ErrAlreadyBooked = errors.New("application already booked")
	// ErrProjectHasActiveRecords возвращается при удалении проекта с незакрытыми заявками или регистрациями.
	ErrProjectHasActiveRecords = errors.New("project has active applications or registrations")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure или Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (nric, name, password_hash, age, marital_status, role)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.Nric, u.Name, u.PasswordHash, u.Age, string(u.MaritalStatus), string(u.Role),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Nric)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByNric возвращает пользователя по NRIC.
func (r *PostgresRepository) GetUserByNric(ctx context.Context, nric string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT nric, name, password_hash, age, marital_status, role,
		        applied_project, application_status, booked_flat_type, created_at
		 FROM users WHERE nric = $1`,
		nric,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return u, nil
}

// GetAllUsers возвращает всех пользователей, ключ — NRIC.
func (r *PostgresRepository) GetAllUsers(ctx context.Context) (map[string]*model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT nric, name, password_hash, age, marital_status, role,
		        applied_project, application_status, booked_flat_type, created_at
		 FROM users`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	res := make(map[string]*model.User)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res[u.Nric] = u
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u             model.User
		marital, role string
		status, flat  string
	)
	err := row.Scan(&u.Nric, &u.Name, &u.PasswordHash, &u.Age, &marital, &role,
		&u.AppliedProject, &status, &flat, &u.CreatedAt)
	if err != nil {
		return nil, err
	}

	u.MaritalStatus = model.MaritalStatus(marital)
	u.Role = model.Role(role)
	u.ApplicationStatus = model.ApplicationStatus(status)
	u.BookedFlatType = model.FlatType(flat)

	return &u, nil
}

// UpdateUserCachedState перезаписывает кэшированное состояние заявки пользователя.
// Переходы статусов обновляют кэш внутри своих транзакций; этот метод
// используется сверкой на старте.
func (r *PostgresRepository) UpdateUserCachedState(ctx context.Context, nric, project string, status model.ApplicationStatus, flatType model.FlatType) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET applied_project = $2, application_status = $3, booked_flat_type = $4
		 WHERE nric = $1`,
		nric, project, string(status), string(flatType),
	)
	if err != nil {
		return fmt.Errorf("update cached state: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func updateCachedStateTx(ctx context.Context, tx pgx.Tx, nric, project string, status model.ApplicationStatus, flatType model.FlatType) error {
	_, err := tx.Exec(ctx,
		`UPDATE users
		 SET applied_project = $2, application_status = $3, booked_flat_type = $4
		 WHERE nric = $1`,
		nric, project, string(status), string(flatType),
	)
	if err != nil {
		return fmt.Errorf("update cached state: %w", err)
	}
	return nil
}

// CreateProject создаёт проект вместе с инвентарём квартир.
func (r *PostgresRepository) CreateProject(ctx context.Context, p *model.Project) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO projects (name, neighborhood, open_date, close_date, manager_nric, officer_slots, visible)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.Name, p.Neighborhood, p.OpenDate, p.CloseDate, p.ManagerNric, p.OfficerSlots, p.Visible,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrProjectExists, p.Name)
		}
		return fmt.Errorf("insert project: %w", err)
	}

	for ft, units := range p.Flats {
		_, err = tx.Exec(ctx,
			`INSERT INTO project_flats (project_name, flat_type, total_units, available_units, price_cents)
			 VALUES ($1, $2, $3, $4, $5)`,
			p.Name, string(ft), units.Total, units.Available, units.PriceCents,
		)
		if err != nil {
			return fmt.Errorf("insert project flats: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetProjectByName возвращает проект по имени без учёта регистра.
func (r *PostgresRepository) GetProjectByName(ctx context.Context, name string) (*model.Project, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT name, neighborhood, open_date, close_date, manager_nric, officer_slots, visible, created_at
		 FROM projects WHERE lower(name) = lower($1)`,
		name,
	)

	var p model.Project
	err := row.Scan(&p.Name, &p.Neighborhood, &p.OpenDate, &p.CloseDate,
		&p.ManagerNric, &p.OfficerSlots, &p.Visible, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}

	if err := r.loadProjectDetails(ctx, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

// GetAllProjects возвращает все проекты с инвентарём и составом офицеров.
func (r *PostgresRepository) GetAllProjects(ctx context.Context) ([]*model.Project, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, neighborhood, open_date, close_date, manager_nric, officer_slots, visible, created_at
		 FROM projects ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	defer rows.Close()

	var res []*model.Project
	for rows.Next() {
		var p model.Project
		err := rows.Scan(&p.Name, &p.Neighborhood, &p.OpenDate, &p.CloseDate,
			&p.ManagerNric, &p.OfficerSlots, &p.Visible, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		res = append(res, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for _, p := range res {
		if err := r.loadProjectDetails(ctx, p); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func (r *PostgresRepository) loadProjectDetails(ctx context.Context, p *model.Project) error {
	rows, err := r.pool.Query(ctx,
		`SELECT flat_type, total_units, available_units, price_cents
		 FROM project_flats WHERE project_name = $1`,
		p.Name,
	)
	if err != nil {
		return fmt.Errorf("select project flats: %w", err)
	}
	defer rows.Close()

	p.Flats = make(map[model.FlatType]model.FlatUnits)
	for rows.Next() {
		var (
			ft    string
			units model.FlatUnits
		)
		if err := rows.Scan(&ft, &units.Total, &units.Available, &units.PriceCents); err != nil {
			return fmt.Errorf("scan project flats: %w", err)
		}
		p.Flats[model.FlatType(ft)] = units
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	officerRows, err := r.pool.Query(ctx,
		`SELECT officer_nric FROM project_officers WHERE project_name = $1 ORDER BY officer_nric`,
		p.Name,
	)
	if err != nil {
		return fmt.Errorf("select project officers: %w", err)
	}
	defer officerRows.Close()

	p.Officers = nil
	for officerRows.Next() {
		var nric string
		if err := officerRows.Scan(&nric); err != nil {
			return fmt.Errorf("scan project officer: %w", err)
		}
		p.Officers = append(p.Officers, nric)
	}

	if err := officerRows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

// UpdateProject обновляет атрибуты проекта и инвентарь квартир.
// Доступное число квартир сохраняется и лишь прижимается сверху к новому
// общему числу.
func (r *PostgresRepository) UpdateProject(ctx context.Context, p *model.Project) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE projects
		 SET neighborhood = $2, open_date = $3, close_date = $4, officer_slots = $5, visible = $6
		 WHERE lower(name) = lower($1)`,
		p.Name, p.Neighborhood, p.OpenDate, p.CloseDate, p.OfficerSlots, p.Visible,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}

	for ft, units := range p.Flats {
		_, err = tx.Exec(ctx,
			`INSERT INTO project_flats (project_name, flat_type, total_units, available_units, price_cents)
			 VALUES ($1, $2, $3, $3, $4)
			 ON CONFLICT (project_name, flat_type) DO UPDATE
			 SET total_units = EXCLUDED.total_units,
			     price_cents = EXCLUDED.price_cents,
			     available_units = LEAST(project_flats.available_units, EXCLUDED.total_units)`,
			p.Name, string(ft), units.Total, units.PriceCents,
		)
		if err != nil {
			return fmt.Errorf("upsert project flats: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// SetProjectVisibility включает или выключает видимость проекта.
func (r *PostgresRepository) SetProjectVisibility(ctx context.Context, name string, visible bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE projects SET visible = $2 WHERE lower(name) = lower($1)`,
		name, visible,
	)
	if err != nil {
		return fmt.Errorf("update visibility: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// DeleteProject удаляет проект. Без force удаление отклоняется, пока на
// проект ссылаются незакрытые заявки или нерассмотренные регистрации;
// с force связанные заявки, регистрации и вопросы удаляются каскадом.
func (r *PostgresRepository) DeleteProject(ctx context.Context, name string, force bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if !force {
		var active int
		err = tx.QueryRow(ctx,
			`SELECT
			   (SELECT count(*) FROM applications
			    WHERE lower(project_name) = lower($1) AND status = ANY($2)) +
			   (SELECT count(*) FROM registrations
			    WHERE lower(project_name) = lower($1) AND status = $3)`,
			name,
			[]string{
				string(model.ApplicationStatusPending),
				string(model.ApplicationStatusSuccessful),
				string(model.ApplicationStatusBooked),
				string(model.ApplicationStatusPendingWithdrawal),
			},
			string(model.RegistrationStatusPending),
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("count active records: %w", err)
		}
		if active > 0 {
			return ErrProjectHasActiveRecords
		}
	}

	cmdTag, err := tx.Exec(ctx, `DELETE FROM projects WHERE lower(name) = lower($1)`, name)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// RemoveProjectOfficer убирает офицера из утверждённого состава проекта.
func (r *PostgresRepository) RemoveProjectOfficer(ctx context.Context, projectName, nric string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM project_officers WHERE lower(project_name) = lower($1) AND officer_nric = $2`,
		projectName, nric,
	)
	if err != nil {
		return fmt.Errorf("remove project officer: %w", err)
	}
	return nil
}
