package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgWindowRepository struct {
	pool *pgxpool.Pool
	q    db.Querier
}

func NewPgWindowRepository(pool *pgxpool.Pool) *PgWindowRepository {
	return &PgWindowRepository{pool: pool, q: pool}
}

const windowColumns = `id, professional_id, day_of_week, start_time, end_time, room_id, created_at, updated_at`

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var day int16
	var start, end pgtype.Time

	err := row.Scan(
		&w.ID,
		&w.ProfessionalID,
		&day,
		&start,
		&end,
		&w.RoomID,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	w.Day = Weekday(day)
	w.Start = clockFromPg(start)
	w.End = clockFromPg(end)
	return &w, nil
}

func clockFromPg(t pgtype.Time) ClockTime {
	return ClockTime(t.Microseconds / 60_000_000)
}

func clockToPg(c ClockTime) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * 60_000_000, Valid: true}
}

func (r *PgWindowRepository) GetByID(ctx context.Context, id uuid.UUID) (*Window, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+windowColumns+`
		FROM weekly_windows
		WHERE id = $1
	`, id)
	return scanWindow(row)
}

func (r *PgWindowRepository) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]Window, error) {
	return r.list(ctx, `
		SELECT `+windowColumns+`
		FROM weekly_windows
		WHERE professional_id = $1
		ORDER BY day_of_week, start_time
	`, professionalID)
}

func (r *PgWindowRepository) ListByProfessionalDay(ctx context.Context, professionalID uuid.UUID, day Weekday) ([]Window, error) {
	return r.list(ctx, `
		SELECT `+windowColumns+`
		FROM weekly_windows
		WHERE professional_id = $1 AND day_of_week = $2
		ORDER BY start_time
	`, professionalID, int16(day))
}

func (r *PgWindowRepository) list(ctx context.Context, sql string, args ...any) ([]Window, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Window{}
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgWindowRepository) Create(ctx context.Context, w *Window) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO weekly_windows (id, professional_id, day_of_week, start_time, end_time, room_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, w.ID, w.ProfessionalID, int16(w.Day), clockToPg(w.Start), clockToPg(w.End), w.RoomID, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert window: %w", err)
	}
	return nil
}

func (r *PgWindowRepository) Update(ctx context.Context, w *Window) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE weekly_windows
		SET day_of_week = $2,
		    start_time = $3,
		    end_time = $4,
		    room_id = $5,
		    updated_at = $6
		WHERE id = $1
	`, w.ID, int16(w.Day), clockToPg(w.Start), clockToPg(w.End), w.RoomID, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *PgWindowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM weekly_windows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

// WithDayLock serializes writers of one professional's day with a
// transaction-scoped advisory lock.
func (r *PgWindowRepository) WithDayLock(ctx context.Context, professionalID uuid.UUID, day Weekday, fn func(ctx context.Context, repo WindowRepository) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		key := fmt.Sprintf("window:%s:%d", professionalID, int(day))
		if err := db.AdvisoryXactLock(ctx, tx, key); err != nil {
			return err
		}
		return fn(ctx, &PgWindowRepository{pool: r.pool, q: tx})
	})
}
