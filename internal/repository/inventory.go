package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mkoshelev/bto-system/internal/model"
)

// Инвентарь квартир меняется только тремя запросами этого файла:
// атомарными списанием и возвратом и прямой установкой при сверке.
// Проверка и изменение счётчика выполняются одним UPDATE, поэтому два
// параллельных бронирования последней квартиры не могут пройти оба.

// DecrementUnits атомарно списывает одну доступную квартиру.
// Возвращает ErrNoUnitsAvailable, если свободных квартир не осталось.
func (r *PostgresRepository) DecrementUnits(ctx context.Context, projectName string, flatType model.FlatType) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE project_flats SET available_units = available_units - 1
		 WHERE lower(project_name) = lower($1) AND flat_type = $2 AND available_units > 0`,
		projectName, string(flatType),
	)
	if err != nil {
		return fmt.Errorf("decrement units: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNoUnitsAvailable
	}
	return nil
}

// IncrementUnits атомарно возвращает одну квартиру в инвентарь.
// Возвращает ErrUnitsAtCapacity, если доступно уже полное число квартир.
func (r *PostgresRepository) IncrementUnits(ctx context.Context, projectName string, flatType model.FlatType) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE project_flats SET available_units = available_units + 1
		 WHERE lower(project_name) = lower($1) AND flat_type = $2 AND available_units < total_units`,
		projectName, string(flatType),
	)
	if err != nil {
		return fmt.Errorf("increment units: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUnitsAtCapacity
	}
	return nil
}

// SetAvailableUnits устанавливает число доступных квартир, прижимая его к
// диапазону [0, total_units]. Используется только сверкой на старте.
// Возвращает фактически записанное значение.
func (r *PostgresRepository) SetAvailableUnits(ctx context.Context, projectName string, flatType model.FlatType, n int) (int, error) {
	var written int
	err := r.pool.QueryRow(ctx,
		`UPDATE project_flats
		 SET available_units = LEAST(GREATEST($3, 0), total_units)
		 WHERE lower(project_name) = lower($1) AND flat_type = $2
		 RETURNING available_units`,
		projectName, string(flatType), n,
	).Scan(&written)
	if err != nil {
		return 0, fmt.Errorf("set available units: %w", err)
	}
	return written, nil
}

func decrementUnitsTx(ctx context.Context, tx pgx.Tx, projectName string, flatType model.FlatType) error {
	cmdTag, err := tx.Exec(ctx,
		`UPDATE project_flats SET available_units = available_units - 1
		 WHERE lower(project_name) = lower($1) AND flat_type = $2 AND available_units > 0`,
		projectName, string(flatType),
	)
	if err != nil {
		return fmt.Errorf("decrement units: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNoUnitsAvailable
	}
	return nil
}

func incrementUnitsTx(ctx context.Context, tx pgx.Tx, projectName string, flatType model.FlatType) error {
	cmdTag, err := tx.Exec(ctx,
		`UPDATE project_flats SET available_units = available_units + 1
		 WHERE lower(project_name) = lower($1) AND flat_type = $2 AND available_units < total_units`,
		projectName, string(flatType),
	)
	if err != nil {
		return fmt.Errorf("increment units: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUnitsAtCapacity
	}
	return nil
}
