package schedule

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

const (
	DefaultSlotLength = 30
	MinSlotLength     = 5
	MaxSlotLength     = 240
)

// OccupancyPolicy names how appointments mark generated slots as taken.
type OccupancyPolicy string

// OccupancyExactStart treats a slot as taken only when a blocking
// appointment starts at exactly the slot's start. An appointment that
// straddles a slot boundary does not hide the following slot.
const OccupancyExactStart OccupancyPolicy = "exact-start-match"

// WindowSource yields the windows of a professional on a weekday, ordered by
// start.
type WindowSource interface {
	WindowsFor(ctx context.Context, professionalID uuid.UUID, day Weekday) ([]Window, error)
}

// Occupancy reports which date-times are held by blocking appointments.
type Occupancy interface {
	BlockingTimes(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]time.Time, error)
	IsBlocked(ctx context.Context, professionalID uuid.UUID, at time.Time) (bool, error)
}

type Slot struct {
	Time     ClockTime `json:"time"`
	RoomID   uuid.UUID `json:"room_id"`
	WindowID uuid.UUID `json:"window_id"`
}

type SlotGenerator struct {
	windows   WindowSource
	occupancy Occupancy
	policy    OccupancyPolicy
	now       func() time.Time
}

type SlotOption func(*SlotGenerator)

// WithClock sets the clock used to skip slots that already started. A nil
// clock disables the filter.
func WithClock(now func() time.Time) SlotOption {
	return func(g *SlotGenerator) { g.now = now }
}

func NewSlotGenerator(windows WindowSource, occupancy Occupancy, opts ...SlotOption) *SlotGenerator {
	g := &SlotGenerator{
		windows:   windows,
		occupancy: occupancy,
		policy:    OccupancyExactStart,
		now:       WallClock(time.UTC),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SlotGenerator) Policy() OccupancyPolicy { return g.policy }

// GenerateSlots returns the free slots of professionalID on date in
// ascending order. Windows and occupancy are loaded up front; the returned
// sequence is lazy, finite and may be ranged over more than once.
func (g *SlotGenerator) GenerateSlots(ctx context.Context, professionalID uuid.UUID, date time.Time, slotLength int) (iter.Seq[Slot], error) {
	if slotLength < MinSlotLength || slotLength > MaxSlotLength {
		return nil, apperr.Validation("slot length %d must be between %d and %d minutes", slotLength, MinSlotLength, MaxSlotLength)
	}

	date = Date(date)
	windows, err := g.windows.WindowsFor(ctx, professionalID, ISOWeekday(date))
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}

	taken := map[ClockTime]struct{}{}
	if len(windows) > 0 {
		blocking, err := g.occupancy.BlockingTimes(ctx, professionalID, date)
		if err != nil {
			return nil, fmt.Errorf("load occupancy: %w", err)
		}
		for _, at := range blocking {
			taken[ClockOf(at)] = struct{}{}
		}
	}

	var cutoff time.Time
	if g.now != nil {
		cutoff = g.now()
	}

	return func(yield func(Slot) bool) {
		for _, w := range windows {
			for t := w.Start; t < w.End; t = t.Add(slotLength) {
				if _, ok := taken[t]; ok {
					continue
				}
				if !cutoff.IsZero() && t.On(date).Before(cutoff) {
					continue
				}
				if !yield(Slot{Time: t, RoomID: w.RoomID, WindowID: w.ID}) {
					return
				}
			}
		}
	}, nil
}
