package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Availability is the answer to "is professional P free at date D, time T".
// Window and RoomID are set whenever a window covers the time, even if an
// appointment already holds it.
type Availability struct {
	Available bool       `json:"available"`
	RoomID    *uuid.UUID `json:"room_id,omitempty"`
	Window    *Window    `json:"window,omitempty"`
}

// Checker answers point availability questions. A positive answer is not a
// reservation; booking re-checks inside its transaction.
type Checker struct {
	windows   WindowSource
	occupancy Occupancy
}

func NewChecker(windows WindowSource, occupancy Occupancy) *Checker {
	return &Checker{windows: windows, occupancy: occupancy}
}

// WithOccupancy returns a copy of c reading occupancy from o, typically a
// transaction-bound repository.
func (c *Checker) WithOccupancy(o Occupancy) *Checker {
	return &Checker{windows: c.windows, occupancy: o}
}

func (c *Checker) CheckAvailability(ctx context.Context, professionalID uuid.UUID, date time.Time, at ClockTime) (Availability, error) {
	date = Date(date)
	windows, err := c.windows.WindowsFor(ctx, professionalID, ISOWeekday(date))
	if err != nil {
		return Availability{}, fmt.Errorf("load windows: %w", err)
	}

	var covering *Window
	for i := range windows {
		if windows[i].Covers(at) {
			covering = &windows[i]
			break
		}
	}
	if covering == nil {
		return Availability{Available: false}, nil
	}

	blocked, err := c.occupancy.IsBlocked(ctx, professionalID, at.On(date))
	if err != nil {
		return Availability{}, fmt.Errorf("check occupancy: %w", err)
	}

	room := covering.RoomID
	return Availability{Available: !blocked, RoomID: &room, Window: covering}, nil
}

// CheckAt is CheckAvailability for a combined date-time.
func (c *Checker) CheckAt(ctx context.Context, professionalID uuid.UUID, at time.Time) (Availability, error) {
	return c.CheckAvailability(ctx, professionalID, at, ClockOf(at))
}
