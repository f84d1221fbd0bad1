package memstore

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Appointments is an in-memory appointment.Repository. Transactions are
// serialized and roll back to a snapshot on error, and the blocking-slot
// uniqueness rule is enforced on every write like the Postgres index.
type Appointments struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	rows   map[uuid.UUID]appointment.Appointment
	events []appointment.EventLog

	// FailEvents makes InsertEvent fail, to exercise rollback.
	FailEvents error
}

func NewAppointments() *Appointments {
	return &Appointments{rows: map[uuid.UUID]appointment.Appointment{}}
}

func (r *Appointments) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.rows[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *Appointments) ListForDay(_ context.Context, professionalID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []appointment.Appointment{}
	for _, a := range r.rows {
		if a.ProfessionalID == professionalID && sameDay(a.ScheduledAt, date) {
			result = append(result, a)
		}
	}
	slices.SortFunc(result, func(a, b appointment.Appointment) int {
		if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (r *Appointments) BlockingTimes(_ context.Context, professionalID uuid.UUID, date time.Time) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var times []time.Time
	for _, a := range r.rows {
		if a.ProfessionalID == professionalID && a.Status.Blocking() && sameDay(a.ScheduledAt, date) {
			times = append(times, a.ScheduledAt)
		}
	}
	slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })
	return times, nil
}

func (r *Appointments) IsBlocked(_ context.Context, professionalID uuid.UUID, at time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.rows {
		if a.ProfessionalID == professionalID && a.Status.Blocking() && a.ScheduledAt.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Appointments) WithTx(ctx context.Context, fn func(ctx context.Context, tx appointment.TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	rows := maps.Clone(r.rows)
	events := len(r.events)
	r.mu.Unlock()

	err := fn(ctx, &appointmentsTx{r})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.mu.Lock()
		r.rows = rows
		r.events = r.events[:events]
		r.mu.Unlock()
	}
	return err
}

// Events returns a copy of the recorded audit events.
func (r *Appointments) Events() []appointment.EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

// Count returns the number of stored appointments.
func (r *Appointments) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

type appointmentsTx struct {
	*Appointments
}

// LockSlot is a no-op: WithTx already serializes transactions.
func (t *appointmentsTx) LockSlot(context.Context, uuid.UUID, time.Time) error { return nil }

func (t *appointmentsTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return t.GetByID(ctx, id)
}

func (t *appointmentsTx) Insert(_ context.Context, a *appointment.Appointment) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conflicts(*a) {
		return apperr.Wrap(apperr.KindSlotUnavailable, errDuplicateSlot, "slot was taken concurrently")
	}
	t.rows[a.ID] = *a
	return nil
}

func (t *appointmentsTx) UpdateSchedule(_ context.Context, id uuid.UUID, at time.Time, roomID uuid.UUID, status appointment.Status, updatedAt time.Time) (*appointment.Appointment, error) {
	return t.update(id, func(a *appointment.Appointment) {
		a.ScheduledAt = at
		a.RoomID = roomID
		a.Status = status
		a.UpdatedAt = updatedAt
	})
}

func (t *appointmentsTx) UpdateStatus(_ context.Context, id uuid.UUID, status appointment.Status, notesPost *string, updatedAt time.Time) (*appointment.Appointment, error) {
	return t.update(id, func(a *appointment.Appointment) {
		a.Status = status
		if notesPost != nil {
			notes := *notesPost
			a.NotesPost = &notes
		}
		a.UpdatedAt = updatedAt
	})
}

func (t *appointmentsTx) update(id uuid.UUID, apply func(*appointment.Appointment)) (*appointment.Appointment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.rows[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	apply(&a)
	if t.conflicts(a) {
		return nil, apperr.Wrap(apperr.KindSlotUnavailable, errDuplicateSlot, "slot was taken concurrently")
	}
	t.rows[id] = a
	return &a, nil
}

func (t *appointmentsTx) Delete(_ context.Context, id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(t.rows, id)
	return nil
}

func (t *appointmentsTx) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	if t.FailEvents != nil {
		return t.FailEvents
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ev.ID = int64(len(t.events) + 1)
	t.events = append(t.events, ev)
	return nil
}

var errDuplicateSlot = errors.New("duplicate blocking appointment for professional and date-time")

// conflicts mirrors the partial unique index on blocking appointments.
func (r *Appointments) conflicts(a appointment.Appointment) bool {
	if !a.Status.Blocking() {
		return false
	}
	for id, other := range r.rows {
		if id != a.ID && other.Status.Blocking() &&
			other.ProfessionalID == a.ProfessionalID && other.ScheduledAt.Equal(a.ScheduledAt) {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var (
	_ appointment.Repository   = (*Appointments)(nil)
	_ appointment.TxRepository = (*appointmentsTx)(nil)
)
