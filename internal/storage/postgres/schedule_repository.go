package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vmaslennikov/bms/internal/domain"
)

type scheduleRepository struct {
	db *sql.DB
}

// NewScheduleRepository создаёт PostgreSQL-реализацию ScheduleRepository.
func NewScheduleRepository(store *Store) domain.ScheduleRepository {
	return &scheduleRepository{db: store.DB()}
}

func (r *scheduleRepository) Schedule(sc domain.ScheduledConfirmation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()

	// Upsert по booking_id: повторная регистрация обновляет дедлайн,
	// дубликатов не возникает.
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_confirmations (booking_id, due_at, attempts, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (booking_id) DO UPDATE
		SET due_at = EXCLUDED.due_at,
		    updated_at = EXCLUDED.updated_at
	`, sc.BookingID, sc.DueAt, now); err != nil {
		return fmt.Errorf("schedule confirmation: %w", err)
	}

	return nil
}

func (r *scheduleRepository) DuePending(now time.Time, limit int) ([]domain.ScheduledConfirmation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT booking_id, due_at, attempts, created_at, updated_at
		FROM scheduled_confirmations
		WHERE due_at <= $1
		ORDER BY due_at ASC, booking_id ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due confirmations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ScheduledConfirmation, 0, limit)
	for rows.Next() {
		var sc domain.ScheduledConfirmation
		if err := rows.Scan(&sc.BookingID, &sc.DueAt, &sc.Attempts, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled confirmation: %w", err)
		}
		result = append(result, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled confirmations: %w", err)
	}

	return result, nil
}

func (r *scheduleRepository) MarkAttempt(bookingID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_confirmations
		SET attempts = attempts + 1,
		    updated_at = $2
		WHERE booking_id = $1
	`, bookingID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark confirmation attempt: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrScheduleNotFound
	}

	return nil
}

func (r *scheduleRepository) Remove(bookingID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM scheduled_confirmations WHERE booking_id = $1
	`, bookingID); err != nil {
		return fmt.Errorf("remove scheduled confirmation: %w", err)
	}

	return nil
}

var _ domain.ScheduleRepository = (*scheduleRepository)(nil)
