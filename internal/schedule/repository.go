package schedule

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

var ErrWindowNotFound = apperr.New(apperr.KindNotFound, "window not found")

// WindowRepository persists weekly windows.
type WindowRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Window, error)
	// ListByProfessional returns every window of the professional ordered by
	// day, then start.
	ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]Window, error)
	ListByProfessionalDay(ctx context.Context, professionalID uuid.UUID, day Weekday) ([]Window, error)

	Create(ctx context.Context, w *Window) error
	Update(ctx context.Context, w *Window) error
	Delete(ctx context.Context, id uuid.UUID) error

	// WithDayLock runs fn inside one unit of work that holds an exclusive
	// lock on (professionalID, day). fn must use the repository it is given.
	WithDayLock(ctx context.Context, professionalID uuid.UUID, day Weekday, fn func(ctx context.Context, repo WindowRepository) error) error
}

// WindowCache caches all windows of a professional. Implementations may be
// lossy; a miss or error falls back to the repository.
//
// Every Invalidate advances a per-professional generation. Get reports the
// generation it observed and Set stores windows only while that generation
// is still current, so a read that raced a write cannot repopulate the cache
// with the old list.
type WindowCache interface {
	Get(ctx context.Context, professionalID uuid.UUID) (windows []Window, generation int64, hit bool, err error)
	Set(ctx context.Context, professionalID uuid.UUID, generation int64, windows []Window) (stored bool, err error)
	Invalidate(ctx context.Context, professionalID uuid.UUID) error
}
