package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var ErrAppointmentNotFound = apperr.New(apperr.KindNotFound, "appointment not found")

// Repository contains all appointment storage used by the service. Reads
// outside WithTx see committed state only.
type Repository interface {
	schedule.Occupancy

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListForDay(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error)

	// WithTx runs fn in one all-or-nothing unit of work. Any error returned
	// by fn, or a cancelled ctx, rolls back every write made through tx.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository is the transaction-bound view handed to WithTx callbacks.
type TxRepository interface {
	schedule.Occupancy

	// LockSlot serializes all transactions touching (professionalID, at)
	// until the current transaction ends.
	LockSlot(ctx context.Context, professionalID uuid.UUID, at time.Time) error

	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Insert reports a concurrent blocking appointment at the same
	// (professional, date-time) as apperr.ErrSlotUnavailable.
	Insert(ctx context.Context, a *Appointment) error
	UpdateSchedule(ctx context.Context, id uuid.UUID, at time.Time, roomID uuid.UUID, status Status, updatedAt time.Time) (*Appointment, error)
	// UpdateStatus leaves the post-visit notes unchanged when notesPost is nil.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, notesPost *string, updatedAt time.Time) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
