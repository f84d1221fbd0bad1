package schedule

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

// Store manages the recurring weekly windows of professionals.
type Store struct {
	repo   WindowRepository
	cache  WindowCache
	logger *zap.Logger
	now    func() time.Time
}

// NewStore returns a Store. cache may be nil.
func NewStore(repo WindowRepository, cache WindowCache, logger *zap.Logger) *Store {
	return &Store{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// AddWindow validates w and persists it unless it overlaps another window of
// the same professional and day.
func (s *Store) AddWindow(ctx context.Context, w Window) (*Window, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	w.ID = uuid.New()
	now := s.now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	err := s.repo.WithDayLock(ctx, w.ProfessionalID, w.Day, func(ctx context.Context, repo WindowRepository) error {
		existing, err := repo.ListByProfessionalDay(ctx, w.ProfessionalID, w.Day)
		if err != nil {
			return fmt.Errorf("list windows: %w", err)
		}
		if other, ok := firstOverlap(w, existing); ok {
			return overlapError(w, other)
		}
		if err := repo.Create(ctx, &w); err != nil {
			return fmt.Errorf("create window: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, w.ProfessionalID)
	s.logger.Info("window added",
		zap.String("window_id", w.ID.String()),
		zap.String("professional_id", w.ProfessionalID.String()),
		zap.Stringer("day", w.Day),
		zap.Stringer("start", w.Start),
		zap.Stringer("end", w.End),
	)
	return &w, nil
}

// UpdateWindow applies patch to window id after re-checking overlap against
// the professional's other windows on the resulting day.
func (s *Store) UpdateWindow(ctx context.Context, id uuid.UUID, patch WindowPatch) (*Window, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := patch.Apply(*current)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now().UTC()

	err = s.repo.WithDayLock(ctx, updated.ProfessionalID, updated.Day, func(ctx context.Context, repo WindowRepository) error {
		existing, err := repo.ListByProfessionalDay(ctx, updated.ProfessionalID, updated.Day)
		if err != nil {
			return fmt.Errorf("list windows: %w", err)
		}
		if other, ok := firstOverlap(updated, existing); ok {
			return overlapError(updated, other)
		}
		if err := repo.Update(ctx, &updated); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			return fmt.Errorf("update window: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, updated.ProfessionalID)
	s.logger.Info("window updated",
		zap.String("window_id", id.String()),
		zap.Stringer("day", updated.Day),
		zap.Stringer("start", updated.Start),
		zap.Stringer("end", updated.End),
	)
	return &updated, nil
}

func (s *Store) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete window: %w", err)
	}

	s.invalidate(ctx, w.ProfessionalID)
	s.logger.Info("window deleted", zap.String("window_id", id.String()))
	return nil
}

func (s *Store) GetWindow(ctx context.Context, id uuid.UUID) (*Window, error) {
	return s.repo.GetByID(ctx, id)
}

// WindowsFor returns the professional's windows on day ordered by start.
// An empty result is valid.
func (s *Store) WindowsFor(ctx context.Context, professionalID uuid.UUID, day Weekday) ([]Window, error) {
	if !day.Valid() {
		return nil, apperr.New(apperr.KindInvalidRange, "day_of_week %d is outside 1..7", int(day))
	}

	all, err := s.allWindows(ctx, professionalID)
	if err != nil {
		return nil, err
	}

	result := make([]Window, 0, len(all))
	for _, w := range all {
		if w.Day == day {
			result = append(result, w)
		}
	}
	sortByStart(result)
	return result, nil
}

// Direct returns a WindowSource that bypasses the cache. Checks made inside a
// booking transaction read through it.
func (s *Store) Direct() WindowSource {
	return directSource{repo: s.repo}
}

type directSource struct {
	repo WindowRepository
}

func (d directSource) WindowsFor(ctx context.Context, professionalID uuid.UUID, day Weekday) ([]Window, error) {
	if !day.Valid() {
		return nil, apperr.New(apperr.KindInvalidRange, "day_of_week %d is outside 1..7", int(day))
	}
	windows, err := d.repo.ListByProfessionalDay(ctx, professionalID, day)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	sortByStart(windows)
	return windows, nil
}

func (s *Store) allWindows(ctx context.Context, professionalID uuid.UUID) ([]Window, error) {
	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		cached, gen, ok, err := s.cache.Get(ctx, professionalID)
		switch {
		case err != nil:
			s.logger.Warn("window cache read failed",
				zap.String("professional_id", professionalID.String()),
				zap.Error(err),
			)
		case ok:
			return cached, nil
		default:
			generation, cacheable = gen, true
		}
	}

	windows, err := s.repo.ListByProfessional(ctx, professionalID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}

	if cacheable {
		stored, err := s.cache.Set(ctx, professionalID, generation, windows)
		switch {
		case err != nil:
			s.logger.Warn("window cache write failed",
				zap.String("professional_id", professionalID.String()),
				zap.Error(err),
			)
		case !stored:
			s.logger.Debug("window cache write skipped after concurrent change",
				zap.String("professional_id", professionalID.String()),
			)
		}
	}
	return windows, nil
}

func (s *Store) invalidate(ctx context.Context, professionalID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, professionalID); err != nil {
		s.logger.Warn("window cache invalidation failed",
			zap.String("professional_id", professionalID.String()),
			zap.Error(err),
		)
	}
}

func sortByStart(windows []Window) {
	slices.SortFunc(windows, func(a, b Window) int { return cmp.Compare(a.Start, b.Start) })
}

func overlapError(candidate, existing Window) error {
	return apperr.New(apperr.KindOverlap,
		"window %s-%s overlaps existing window %s-%s on %s",
		candidate.Start, candidate.End, existing.Start, existing.End, candidate.Day)
}
