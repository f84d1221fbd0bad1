package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgOutbox struct {
	pool *pgxpool.Pool
}

func NewPgOutbox(pool *pgxpool.Pool) *PgOutbox {
	return &PgOutbox{pool: pool}
}

func (o *PgOutbox) Enqueue(ctx context.Context, appointmentID uuid.UUID, kind string) error {
	_, err := o.pool.Exec(ctx, `
		INSERT INTO notification_outbox (appointment_id, kind)
		VALUES ($1, $2)
	`, appointmentID, kind)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (o *PgOutbox) ProcessPending(ctx context.Context, limit, maxAttempts int, handle func(ctx context.Context, m Message) error) (Stats, error) {
	var stats Stats

	err := pgx.BeginFunc(ctx, o.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, appointment_id, kind, attempts, created_at
			FROM notification_outbox
			WHERE sent_at IS NULL
			  AND attempts < $2
			  AND next_attempt_at <= now()
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit, maxAttempts)
		if err != nil {
			return fmt.Errorf("claim notifications: %w", err)
		}

		msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
			var m Message
			err := row.Scan(&m.ID, &m.AppointmentID, &m.Kind, &m.Attempts, &m.CreatedAt)
			return m, err
		})
		if err != nil {
			return fmt.Errorf("scan notifications: %w", err)
		}

		for _, m := range msgs {
			if herr := handle(ctx, m); herr != nil {
				stats.Failed++
				retry := time.Now().Add(Backoff(m.Attempts + 1))
				if _, err := tx.Exec(ctx, `
					UPDATE notification_outbox
					SET attempts = attempts + 1,
					    last_error = $2,
					    next_attempt_at = $3
					WHERE id = $1
				`, m.ID, herr.Error(), retry); err != nil {
					return fmt.Errorf("record notification failure: %w", err)
				}
				continue
			}

			stats.Sent++
			if _, err := tx.Exec(ctx, `
				UPDATE notification_outbox
				SET attempts = attempts + 1,
				    sent_at = now()
				WHERE id = $1
			`, m.ID); err != nil {
				return fmt.Errorf("mark notification sent: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

var _ Store = (*PgOutbox)(nil)
