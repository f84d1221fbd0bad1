package appointment

import (
	"slices"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

// Effects describes what a successful transition implies beyond the status
// write.
type Effects struct {
	NoOp      bool
	Notify    bool
	FreesSlot bool
}

// transitions lists every allowed status change. Same-state requests are
// handled separately as no-ops.
var transitions = map[Status][]Status{
	StatusReserved:    {StatusCompleted, StatusNoShow, StatusCancelled, StatusRescheduled},
	StatusRescheduled: {StatusCompleted, StatusNoShow, StatusCancelled},
	StatusCompleted:   nil,
	StatusCancelled:   nil,
	StatusNoShow:      nil,
}

// Transition validates from -> to and reports its side effects.
func Transition(from, to Status) (Effects, error) {
	if !from.Valid() || !to.Valid() {
		return Effects{}, apperr.New(apperr.KindInvalidTransition, "unknown status %q -> %q", from, to)
	}
	if from == to {
		return Effects{NoOp: true}, nil
	}
	if !slices.Contains(transitions[from], to) {
		return Effects{}, apperr.New(apperr.KindInvalidTransition, "cannot move appointment from %s to %s", from, to)
	}
	return Effects{
		Notify:    to == StatusRescheduled,
		FreesSlot: to == StatusCancelled,
	}, nil
}

// CanReschedule reports whether an appointment in status s may move to a new
// date-time. A rescheduled appointment can be moved again.
func CanReschedule(s Status) error {
	_, err := Transition(s, StatusRescheduled)
	return err
}

// AttendanceStatus maps an attendance registration to its target status.
func AttendanceStatus(attended bool) Status {
	if attended {
		return StatusCompleted
	}
	return StatusNoShow
}

// deleteEffects applies to the administrative hard-delete path.
var deleteEffects = Effects{FreesSlot: true}
