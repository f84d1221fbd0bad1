package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// Windows is an in-memory schedule.WindowRepository.
type Windows struct {
	mu      sync.Mutex
	dayLock sync.Mutex
	rows    map[uuid.UUID]schedule.Window

	// Reads counts ListByProfessional calls, to observe cache behavior.
	Reads int
}

func NewWindows() *Windows {
	return &Windows{rows: map[uuid.UUID]schedule.Window{}}
}

func (r *Windows) GetByID(_ context.Context, id uuid.UUID) (*schedule.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.rows[id]
	if !ok {
		return nil, schedule.ErrWindowNotFound
	}
	return &w, nil
}

func (r *Windows) ListByProfessional(_ context.Context, professionalID uuid.UUID) ([]schedule.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reads++

	return r.filter(func(w schedule.Window) bool { return w.ProfessionalID == professionalID }), nil
}

func (r *Windows) ListByProfessionalDay(_ context.Context, professionalID uuid.UUID, day schedule.Weekday) ([]schedule.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.filter(func(w schedule.Window) bool {
		return w.ProfessionalID == professionalID && w.Day == day
	}), nil
}

func (r *Windows) filter(keep func(schedule.Window) bool) []schedule.Window {
	result := []schedule.Window{}
	for _, w := range r.rows {
		if keep(w) {
			result = append(result, w)
		}
	}
	slices.SortFunc(result, func(a, b schedule.Window) int {
		if c := cmp.Compare(a.Day, b.Day); c != 0 {
			return c
		}
		return cmp.Compare(a.Start, b.Start)
	})
	return result
}

func (r *Windows) Create(_ context.Context, w *schedule.Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows[w.ID] = *w
	return nil
}

func (r *Windows) Update(_ context.Context, w *schedule.Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[w.ID]; !ok {
		return schedule.ErrWindowNotFound
	}
	r.rows[w.ID] = *w
	return nil
}

func (r *Windows) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return schedule.ErrWindowNotFound
	}
	delete(r.rows, id)
	return nil
}

// WithDayLock serializes all locked sections regardless of key and restores
// the previous rows if fn fails.
func (r *Windows) WithDayLock(ctx context.Context, _ uuid.UUID, _ schedule.Weekday, fn func(ctx context.Context, repo schedule.WindowRepository) error) error {
	r.dayLock.Lock()
	defer r.dayLock.Unlock()

	r.mu.Lock()
	snapshot := maps.Clone(r.rows)
	r.mu.Unlock()

	err := fn(ctx, r)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.mu.Lock()
		r.rows = snapshot
		r.mu.Unlock()
	}
	return err
}

var _ schedule.WindowRepository = (*Windows)(nil)
