package schedule_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/memstore"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func book(t *testing.T, appts *memstore.Appointments, prof uuid.UUID, at time.Time, status appointment.Status) {
	t.Helper()
	err := appts.WithTx(context.Background(), func(ctx context.Context, tx appointment.TxRepository) error {
		return tx.Insert(ctx, &appointment.Appointment{
			ID:              uuid.New(),
			PatientID:       uuid.New(),
			ProfessionalID:  prof,
			ScheduledAt:     at,
			DurationMinutes: 30,
			Status:          status,
			RoomID:          uuid.New(),
		})
	})
	if err != nil {
		t.Fatalf("book %s: %v", at, err)
	}
}

func times(seq func(func(schedule.Slot) bool)) []string {
	var out []string
	for s := range seq {
		out = append(out, s.Time.String())
	}
	return out
}

func noClock() schedule.SlotOption { return schedule.WithClock(nil) }

func TestGenerateSlots_ScenarioA(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	prof, room := uuid.New(), uuid.New()
	if _, err := store.AddWindow(ctx, window(prof, schedule.Wednesday, "09:00", "12:00", room)); err != nil {
		t.Fatal(err)
	}

	gen := schedule.NewSlotGenerator(store, memstore.NewAppointments(), noClock())
	seq, err := gen.GenerateSlots(ctx, prof, wednesday, 30)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}

	want := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}
	var got []string
	for s := range seq {
		got = append(got, s.Time.String())
		if s.RoomID != room {
			t.Errorf("slot %s: expected room %s, got %s", s.Time, room, s.RoomID)
		}
	}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestGenerateSlots_ExcludesBlockingOnly(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	appts := memstore.NewAppointments()
	prof := uuid.New()
	if _, err := store.AddWindow(ctx, window(prof, schedule.Wednesday, "09:00", "11:00", uuid.New())); err != nil {
		t.Fatal(err)
	}

	at := func(h, m int) time.Time { return schedule.Clock(h, m).On(wednesday) }
	book(t, appts, prof, at(9, 30), appointment.StatusReserved)
	book(t, appts, prof, at(10, 0), appointment.StatusRescheduled)
	book(t, appts, prof, at(10, 30), appointment.StatusCancelled)
	book(t, appts, prof, at(9, 0), appointment.StatusNoShow)
	// Another professional does not affect this one.
	book(t, appts, uuid.New(), at(10, 30), appointment.StatusReserved)

	gen := schedule.NewSlotGenerator(store, appts, noClock())
	seq, err := gen.GenerateSlots(ctx, prof, wednesday, 30)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := times(seq), []string{"09:00", "10:30"}; !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestGenerateSlots_ExactStartMatchPolicy(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	appts := memstore.NewAppointments()
	prof := uuid.New()
	if _, err := store.AddWindow(ctx, window(prof, schedule.Wednesday, "09:00", "10:00", uuid.New())); err != nil {
		t.Fatal(err)
	}
	// A 09:10 appointment does not hide the 09:00 or 09:30 slots.
	book(t, appts, prof, schedule.Clock(9, 10).On(wednesday), appointment.StatusReserved)

	gen := schedule.NewSlotGenerator(store, appts, noClock())
	if gen.Policy() != schedule.OccupancyExactStart {
		t.Fatalf("unexpected policy %q", gen.Policy())
	}
	seq, err := gen.GenerateSlots(ctx, prof, wednesday, 30)
	if err != nil {
		t.Fatal(err)
	}
	if got := times(seq); !slices.Equal(got, []string{"09:00", "09:30"}) {
		t.Errorf("unexpected slots %v", got)
	}
}

func TestGenerateSlots_StrictlyIncreasingAcrossWindows(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	prof := uuid.New()
	// Added out of order; the last slot of a window may run past its end.
	for _, w := range [][2]string{{"14:00", "15:10"}, {"08:00", "09:00"}, {"09:00", "10:00"}} {
		if _, err := store.AddWindow(ctx, window(prof, schedule.Wednesday, w[0], w[1], uuid.New())); err != nil {
			t.Fatal(err)
		}
	}

	gen := schedule.NewSlotGenerator(store, memstore.NewAppointments(), noClock())
	seq, err := gen.GenerateSlots(ctx, prof, wednesday, 25)
	if err != nil {
		t.Fatal(err)
	}

	windows, _ := store.WindowsFor(ctx, prof, schedule.Wednesday)
	var prev schedule.ClockTime = -1
	count := 0
	for s := range seq {
		if s.Time <= prev {
			t.Errorf("slot %s not after %s", s.Time, prev)
		}
		prev = s.Time
		inside := slices.ContainsFunc(windows, func(w schedule.Window) bool { return w.Covers(s.Time) })
		if !inside {
			t.Errorf("slot %s outside every window", s.Time)
		}
		count++
	}
	// 08:00..08:50 (3) + 09:00..09:50 (3) + 14:00..14:50 (3)
	if count != 9 {
		t.Errorf("expected 9 slots, got %d", count)
	}
}

func TestGenerateSlots_Restartable(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	prof := uuid.New()
	if _, err := store.AddWindow(ctx, window(prof, schedule.Wednesday, "09:00", "12:00", uuid.New())); err != nil {
		t.Fatal(err)
	}

	gen := schedule.NewSlotGenerator(store, memstore.NewAppointments(), noClock())
	seq, err := gen.GenerateSlots(ctx, prof, wednesday, 30)
	if err != nil {
		t.Fatal(err)
	}

	first := times(seq)
	second := times(seq)
	if !slices.Equal(first, second) {
		t.Errorf("second iteration differs: %v vs %v", first, second)
	}

	// Stopping early is allowed.
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("expected to stop after 2 slots, got %d", n)
	}
}

func TestGenerateSlots_NoWindowsIsEmpty(t *testing.T) {
	store, _ := newStore(t)
	gen := schedule.NewSlotGenerator(store, memstore.NewAppointments(), noClock())
	seq, err := gen.GenerateSlots(context.Background(), uuid.New(), wednesday, 30)
	if err != nil {
		t.Fatalf("no windows must not be an error: %v", err)
	}
	if got := times(seq); len(got) != 0 {
		t.Errorf("expected no slots, got %v", got)
	}
}

func TestGenerateSlots_RejectsBadLength(t *testing.T) {
	store, _ := newStore(t)
	gen := schedule.NewSlotGenerator(store, memstore.NewAppointments(), noClock())
	for _, length := range []int{0, -30, 4, 241} {
		if _, err := gen.GenerateSlots(context.Background(), uuid.New(), wednesday, length); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("length %d: expected validation error, got %v", length, err)
		}
	}
}

func TestGenerateSlots_SkipsPast(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	prof := uuid.New()
	if _, err := store.AddWindow(ctx, window(prof, schedule.Wednesday, "09:00", "11:00", uuid.New())); err != nil {
		t.Fatal(err)
	}

	now := schedule.Clock(10, 15).On(wednesday)
	gen := schedule.NewSlotGenerator(store, memstore.NewAppointments(), schedule.WithClock(func() time.Time { return now }))

	seq, err := gen.GenerateSlots(ctx, prof, wednesday, 30)
	if err != nil {
		t.Fatal(err)
	}
	if got := times(seq); !slices.Equal(got, []string{"10:30"}) {
		t.Errorf("expected only 10:30 left today, got %v", got)
	}

	seq, err = gen.GenerateSlots(ctx, prof, wednesday.AddDate(0, 0, 7), 30)
	if err != nil {
		t.Fatal(err)
	}
	if got := times(seq); len(got) != 4 {
		t.Errorf("expected all 4 slots next week, got %v", got)
	}
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	appts := memstore.NewAppointments()
	prof, room := uuid.New(), uuid.New()
	if _, err := store.AddWindow(ctx, window(prof, schedule.Wednesday, "09:00", "12:00", room)); err != nil {
		t.Fatal(err)
	}
	book(t, appts, prof, schedule.Clock(9, 30).On(wednesday), appointment.StatusReserved)

	checker := schedule.NewChecker(store, appts)

	tests := []struct {
		name      string
		date      time.Time
		at        schedule.ClockTime
		available bool
		covered   bool
	}{
		{"free slot", wednesday, schedule.Clock(10, 0), true, true},
		{"off-grid time inside window", wednesday, schedule.Clock(10, 10), true, true},
		{"booked", wednesday, schedule.Clock(9, 30), false, true},
		{"window end", wednesday, schedule.Clock(12, 0), false, false},
		{"before window", wednesday, schedule.Clock(8, 0), false, false},
		{"other weekday", wednesday.AddDate(0, 0, 1), schedule.Clock(10, 0), false, false},
		{"same time next week", wednesday.AddDate(0, 0, 7), schedule.Clock(9, 30), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.CheckAvailability(ctx, prof, tt.date, tt.at)
			if err != nil {
				t.Fatal(err)
			}
			if got.Available != tt.available {
				t.Errorf("expected available=%v, got %v", tt.available, got.Available)
			}
			if (got.Window != nil) != tt.covered {
				t.Errorf("expected covered=%v, got window %+v", tt.covered, got.Window)
			}
			if tt.available && (got.RoomID == nil || *got.RoomID != room) {
				t.Errorf("expected room %s, got %v", room, got.RoomID)
			}

			again, err := checker.CheckAvailability(ctx, prof, tt.date, tt.at)
			if err != nil {
				t.Fatal(err)
			}
			if again.Available != got.Available {
				t.Error("repeated check returned a different answer")
			}
		})
	}
}
