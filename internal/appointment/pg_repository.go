package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

// uniqueBlockingSlot is the partial unique index over blocking appointments.
const uniqueBlockingSlot = "appointments_blocking_slot_key"

const (
	fkPatient      = "appointments_patient_id_fkey"
	fkProfessional = "appointments_professional_id_fkey"
	fkService      = "appointments_service_id_fkey"
)

type PgRepository struct {
	pool *pgxpool.Pool
	q    db.Querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

const appointmentColumns = `id, patient_id, professional_id, service_id, scheduled_at, duration_minutes,
	status, room_id, notes_pre, notes_post, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProfessionalID,
		&a.ServiceID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Status,
		&a.RoomID,
		&a.NotesPre,
		&a.NotesPost,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	// scheduled_at is a wall-clock TIMESTAMP; keep it in UTC like the rest of
	// the scheduling code.
	a.ScheduledAt = a.ScheduledAt.UTC()
	return &a, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListForDay(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	from, to := dayBounds(date)
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at, created_at
	`, professionalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) BlockingTimes(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]time.Time, error) {
	from, to := dayBounds(date)
	rows, err := r.q.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE professional_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status IN ('reserved', 'rescheduled')
		ORDER BY scheduled_at
	`, professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query blocking appointments: %w", err)
	}

	times, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("collect blocking appointments: %w", err)
	}
	for i := range times {
		times[i] = times[i].UTC()
	}
	return times, nil
}

func (r *PgRepository) IsBlocked(ctx context.Context, professionalID uuid.UUID, at time.Time) (bool, error) {
	var blocked bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE professional_id = $1
			  AND scheduled_at = $2
			  AND status IN ('reserved', 'rescheduled')
		)
	`, professionalID, at).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("query blocking appointment: %w", err)
	}
	return blocked, nil
}

// WithTx runs fn under READ COMMITTED. Bookings serialize on LockSlot and the
// partial unique index rather than on the isolation level.
func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{PgRepository: PgRepository{pool: r.pool, q: tx}, tx: tx})
	})
}

type pgTxRepository struct {
	PgRepository
	tx pgx.Tx
}

func (r *pgTxRepository) LockSlot(ctx context.Context, professionalID uuid.UUID, at time.Time) error {
	return db.AdvisoryXactLock(ctx, r.tx, fmt.Sprintf("slot:%s:%s", professionalID, at.UTC().Format("2006-01-02T15:04")))
}

func (r *pgTxRepository) Insert(ctx context.Context, a *Appointment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, professional_id, service_id, scheduled_at, duration_minutes,
			status, room_id, notes_pre, notes_post, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.PatientID, a.ProfessionalID, a.ServiceID, a.ScheduledAt, a.DurationMinutes,
		a.Status, a.RoomID, a.NotesPre, a.NotesPost, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueBlockingSlot) {
			return apperr.Wrap(apperr.KindSlotUnavailable, err, "slot was taken concurrently")
		}
		if db.IsForeignKeyViolation(err, "") {
			return missingReference(err, a)
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *pgTxRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, at time.Time, roomID uuid.UUID, status Status, updatedAt time.Time) (*Appointment, error) {
	row := r.tx.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    room_id = $3,
		    status = $4,
		    updated_at = $5
		WHERE id = $1
		RETURNING `+appointmentColumns, id, at, roomID, status, updatedAt)

	a, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueBlockingSlot) {
			return nil, apperr.Wrap(apperr.KindSlotUnavailable, err, "slot was taken concurrently")
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment schedule: %w", err)
	}
	return a, nil
}

// UpdateStatus keeps the stored post-visit notes when notesPost is nil.
func (r *pgTxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, notesPost *string, updatedAt time.Time) (*Appointment, error) {
	row := r.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes_post = COALESCE($3, notes_post),
		    updated_at = $4
		WHERE id = $1
		RETURNING `+appointmentColumns, id, status, notesPost, updatedAt)

	a, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueBlockingSlot) {
			return nil, apperr.Wrap(apperr.KindSlotUnavailable, err, "slot was taken concurrently")
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

func (r *pgTxRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *pgTxRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// missingReference maps a foreign key failure on insert to the not_found
// error of the referenced entity.
func missingReference(err error, a *Appointment) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case fkPatient:
			return apperr.NotFound("patient", a.PatientID)
		case fkProfessional:
			return apperr.NotFound("professional", a.ProfessionalID)
		case fkService:
			if a.ServiceID != nil {
				return apperr.NotFound("service", *a.ServiceID)
			}
		}
	}
	return apperr.Wrap(apperr.KindNotFound, err, "referenced record not found")
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var (
	_ Repository   = (*PgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)
