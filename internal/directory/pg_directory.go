package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// PgDirectory reads the patients, professionals and services tables owned by
// the surrounding clinic system.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query patient: %w", err)
	}
	return exists, nil
}

func (d *PgDirectory) ProfessionalExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM professionals WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query professional: %w", err)
	}
	return exists, nil
}

func (d *PgDirectory) GetServiceByID(ctx context.Context, id uuid.UUID) (*appointment.ServiceInfo, error) {
	var info appointment.ServiceInfo
	err := d.pool.QueryRow(ctx, `
		SELECT duration_minutes, price_cents
		FROM services
		WHERE id = $1
	`, id).Scan(&info.DurationMinutes, &info.PriceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("service", id)
		}
		return nil, fmt.Errorf("query service: %w", err)
	}
	return &info, nil
}

var (
	_ appointment.ServiceDirectory      = (*PgDirectory)(nil)
	_ appointment.ProfessionalDirectory = (*PgDirectory)(nil)
	_ appointment.PatientDirectory      = (*PgDirectory)(nil)
)
