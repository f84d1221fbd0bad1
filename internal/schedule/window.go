package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

// Window is one recurring weekly availability interval [Start, End) of a
// professional, assigned to a room.
type Window struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	Day            Weekday   `json:"day_of_week"`
	Start          ClockTime `json:"start_time"`
	End            ClockTime `json:"end_time"`
	RoomID         uuid.UUID `json:"room_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (w Window) Validate() error {
	if w.ProfessionalID == uuid.Nil {
		return apperr.Validation("professional_id is required")
	}
	if w.RoomID == uuid.Nil {
		return apperr.Validation("room_id is required")
	}
	if !w.Day.Valid() {
		return apperr.New(apperr.KindInvalidRange, "day_of_week %d is outside 1..7", int(w.Day))
	}
	if !w.Start.Valid() || !w.End.Valid() {
		return apperr.New(apperr.KindInvalidRange, "window times must be within the day")
	}
	if w.Start >= w.End {
		return apperr.New(apperr.KindInvalidRange, "window start %s must be before end %s", w.Start, w.End)
	}
	return nil
}

// Overlaps uses half-open intervals, so a window ending at 10:00 does not
// overlap one starting at 10:00.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// Covers reports whether t falls inside [Start, End).
func (w Window) Covers(t ClockTime) bool {
	return w.Start <= t && t < w.End
}

// WindowPatch carries the fields of an update. Nil fields are left unchanged.
type WindowPatch struct {
	Day    *Weekday   `json:"day_of_week,omitempty"`
	Start  *ClockTime `json:"start_time,omitempty"`
	End    *ClockTime `json:"end_time,omitempty"`
	RoomID *uuid.UUID `json:"room_id,omitempty"`
}

func (p WindowPatch) Apply(w Window) Window {
	if p.Day != nil {
		w.Day = *p.Day
	}
	if p.Start != nil {
		w.Start = *p.Start
	}
	if p.End != nil {
		w.End = *p.End
	}
	if p.RoomID != nil {
		w.RoomID = *p.RoomID
	}
	return w
}

// firstOverlap returns the first window in existing that overlaps candidate,
// ignoring candidate itself.
func firstOverlap(candidate Window, existing []Window) (Window, bool) {
	for _, w := range existing {
		if w.ID == candidate.ID {
			continue
		}
		if w.Day == candidate.Day && candidate.Overlaps(w) {
			return w, true
		}
	}
	return Window{}, false
}
