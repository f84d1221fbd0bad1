package appointment

import (
	"errors"
	"testing"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

func TestTransition_Table(t *testing.T) {
	all := []Status{StatusReserved, StatusCompleted, StatusCancelled, StatusRescheduled, StatusNoShow}

	allowed := map[[2]Status]Effects{
		{StatusReserved, StatusCompleted}:    {},
		{StatusReserved, StatusNoShow}:       {},
		{StatusReserved, StatusCancelled}:    {FreesSlot: true},
		{StatusReserved, StatusRescheduled}:  {Notify: true},
		{StatusRescheduled, StatusCompleted}: {},
		{StatusRescheduled, StatusNoShow}:    {},
		{StatusRescheduled, StatusCancelled}: {FreesSlot: true},
	}

	for _, from := range all {
		for _, to := range all {
			eff, err := Transition(from, to)

			if from == to {
				if err != nil || !eff.NoOp {
					t.Errorf("%s -> %s: expected no-op success, got %+v %v", from, to, eff, err)
				}
				continue
			}

			want, ok := allowed[[2]Status{from, to}]
			if !ok {
				if !errors.Is(err, apperr.ErrInvalidTransition) {
					t.Errorf("%s -> %s: expected invalid transition, got %v", from, to, err)
				}
				continue
			}
			if err != nil {
				t.Errorf("%s -> %s: unexpected error %v", from, to, err)
				continue
			}
			if eff != want {
				t.Errorf("%s -> %s: expected effects %+v, got %+v", from, to, want, eff)
			}
		}
	}
}

func TestTransition_UnknownStatus(t *testing.T) {
	if _, err := Transition("pending", StatusCancelled); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected invalid transition for unknown status, got %v", err)
	}
}

func TestCanReschedule(t *testing.T) {
	for _, s := range []Status{StatusReserved, StatusRescheduled} {
		if err := CanReschedule(s); err != nil {
			t.Errorf("%s should be reschedulable: %v", s, err)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		if err := CanReschedule(s); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Errorf("%s should not be reschedulable, got %v", s, err)
		}
	}
}

func TestAttendanceStatus(t *testing.T) {
	if AttendanceStatus(true) != StatusCompleted {
		t.Error("attended should complete")
	}
	if AttendanceStatus(false) != StatusNoShow {
		t.Error("absent should be no_show")
	}
}

func TestStatus_Blocking(t *testing.T) {
	for _, s := range BlockingStatuses {
		if !s.Blocking() {
			t.Errorf("%s should block", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		if s.Blocking() {
			t.Errorf("%s should not block", s)
		}
	}
}
