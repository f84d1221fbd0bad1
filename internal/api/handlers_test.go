package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/memstore"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	handler http.Handler
	windows *schedule.Store
	dir     *memstore.Directory
	prof    uuid.UUID
	room    uuid.UUID
	patient uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	now := func() time.Time { return time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC) }
	appts := memstore.NewAppointments()
	store := schedule.NewStore(memstore.NewWindows(), nil, zap.NewNop())
	checker := schedule.NewChecker(store, appts)
	dir := memstore.NewDirectory()

	svc := appointment.NewService(appointment.Dependencies{
		Repo:          appts,
		Checker:       schedule.NewChecker(store.Direct(), appts),
		Services:      dir,
		Professionals: dir,
		Patients:      dir,
		Notifier:      &memstore.Notifications{},
		Logger:        zap.NewNop(),
	}, config.Config{DefaultDurationMinutes: 30}, appointment.WithClock(now))

	ts := &testServer{
		windows: store,
		dir:     dir,
		prof:    uuid.New(),
		room:    uuid.New(),
		patient: uuid.New(),
	}
	dir.AddProfessional(ts.prof)
	dir.AddPatient(ts.patient)

	ts.handler = api.NewRouter(api.RouterConfig{
		Windows:      store,
		Slots:        schedule.NewSlotGenerator(store, appts, schedule.WithClock(now)),
		Checker:      checker,
		Appointments: svc,
		SlotLength:   30,
		Postgres:     fakePinger{},
		Logger:       zap.NewNop(),
		Env:          "test",
		Version:      "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func (ts *testServer) addWindow(t *testing.T, day, start, end string) schedule.Window {
	t.Helper()
	d, _ := schedule.ParseClock(start)
	e, _ := schedule.ParseClock(end)
	var weekday schedule.Weekday
	switch day {
	case "wed":
		weekday = schedule.Wednesday
	default:
		weekday = schedule.Monday
	}
	w, err := ts.windows.AddWindow(context.Background(), schedule.Window{
		ProfessionalID: ts.prof,
		Day:            weekday,
		Start:          d,
		End:            e,
		RoomID:         ts.room,
	})
	if err != nil {
		t.Fatalf("add window: %v", err)
	}
	return *w
}

func (ts *testServer) book(t *testing.T, scheduledAt string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, http.MethodPost, "/appointments", api.CreateAppointmentRequest{
		PatientID:      ts.patient.String(),
		ProfessionalID: ts.prof.String(),
		ScheduledAt:    scheduledAt,
	})
}

func TestCreateWindow(t *testing.T) {
	ts := newTestServer(t)
	path := "/professionals/" + ts.prof.String() + "/windows"

	rec := ts.do(t, http.MethodPost, path, api.CreateWindowRequest{
		DayOfWeek: 3, StartTime: "09:00", EndTime: "12:00", RoomID: ts.room.String(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	w := decode[schedule.Window](t, rec)
	if w.ID == uuid.Nil || w.Day != schedule.Wednesday || w.Start != schedule.Clock(9, 0) {
		t.Errorf("unexpected window %+v", w)
	}

	tests := []struct {
		name   string
		req    api.CreateWindowRequest
		status int
		code   string
	}{
		{"overlap", api.CreateWindowRequest{DayOfWeek: 3, StartTime: "11:00", EndTime: "13:00", RoomID: ts.room.String()}, http.StatusConflict, "overlap"},
		{"end before start", api.CreateWindowRequest{DayOfWeek: 3, StartTime: "15:00", EndTime: "14:00", RoomID: ts.room.String()}, http.StatusBadRequest, "invalid_range"},
		{"bad day", api.CreateWindowRequest{DayOfWeek: 8, StartTime: "15:00", EndTime: "16:00", RoomID: ts.room.String()}, http.StatusBadRequest, "invalid_range"},
		{"bad time", api.CreateWindowRequest{DayOfWeek: 3, StartTime: "9am", EndTime: "16:00", RoomID: ts.room.String()}, http.StatusBadRequest, "validation"},
		{"bad room", api.CreateWindowRequest{DayOfWeek: 3, StartTime: "15:00", EndTime: "16:00", RoomID: "x"}, http.StatusBadRequest, "invalid_room_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, path, tt.req)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decode[api.ErrorResponse](t, rec); got.Error != tt.code {
				t.Errorf("expected error %q, got %q", tt.code, got.Error)
			}
		})
	}
}

func TestListWindows(t *testing.T) {
	ts := newTestServer(t)
	ts.addWindow(t, "wed", "14:00", "16:00")
	ts.addWindow(t, "wed", "09:00", "12:00")
	ts.addWindow(t, "mon", "09:00", "10:00")

	rec := ts.do(t, http.MethodGet, "/professionals/"+ts.prof.String()+"/windows?day=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[api.WindowListResponse](t, rec)
	if len(got.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got.Windows))
	}
	if got.Windows[0].Start != schedule.Clock(9, 0) {
		t.Errorf("windows not ordered by start: %+v", got.Windows)
	}

	rec = ts.do(t, http.MethodGet, "/professionals/"+ts.prof.String()+"/windows", nil)
	if all := decode[api.WindowListResponse](t, rec); len(all.Windows) != 3 {
		t.Errorf("expected 3 windows across the week, got %d", len(all.Windows))
	}

	rec = ts.do(t, http.MethodGet, "/professionals/"+uuid.NewString()+"/windows?day=3", nil)
	if empty := decode[api.WindowListResponse](t, rec); rec.Code != http.StatusOK || len(empty.Windows) != 0 {
		t.Errorf("expected empty list, got %d %+v", rec.Code, empty)
	}

	rec = ts.do(t, http.MethodGet, "/professionals/"+ts.prof.String()+"/windows?day=9", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for day 9, got %d", rec.Code)
	}
}

func TestUpdateAndDeleteWindow(t *testing.T) {
	ts := newTestServer(t)
	w := ts.addWindow(t, "wed", "09:00", "12:00")
	path := "/windows/" + w.ID.String()

	end := "13:00"
	rec := ts.do(t, http.MethodPut, path, api.UpdateWindowRequest{EndTime: &end})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[schedule.Window](t, rec); got.End != schedule.Clock(13, 0) || got.Start != schedule.Clock(9, 0) {
		t.Errorf("unexpected window after update %+v", got)
	}

	rec = ts.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete, path, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodDelete, path, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestSlotsAndAvailability(t *testing.T) {
	ts := newTestServer(t)
	ts.addWindow(t, "wed", "09:00", "12:00")

	if rec := ts.book(t, "2030-01-09T10:00"); rec.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet, "/professionals/"+ts.prof.String()+"/slots?date=2030-01-09", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	slots := decode[api.SlotsResponse](t, rec)
	if len(slots.Slots) != 5 {
		t.Fatalf("expected 5 free slots, got %d", len(slots.Slots))
	}
	for _, s := range slots.Slots {
		if s.Time == schedule.Clock(10, 0) {
			t.Error("booked slot 10:00 listed as free")
		}
	}
	if slots.SlotLength != 30 || slots.Occupancy != string(schedule.OccupancyExactStart) {
		t.Errorf("unexpected metadata %+v", slots)
	}

	rec = ts.do(t, http.MethodGet, "/professionals/"+ts.prof.String()+"/slots?date=2030-01-09&length=60", nil)
	if got := decode[api.SlotsResponse](t, rec); len(got.Slots) != 2 {
		// 09:00 and 11:00; 10:00 starts at a booked time
		t.Errorf("expected 2 hourly slots, got %d", len(got.Slots))
	}

	rec = ts.do(t, http.MethodGet, "/professionals/"+ts.prof.String()+"/slots?date=2030-01-09&length=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero length, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/professionals/"+ts.prof.String()+"/slots", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without date, got %d", rec.Code)
	}

	tests := []struct {
		time      string
		available bool
	}{
		{"09:30", true},
		{"10:00", false},
		{"12:00", false},
		{"08:59", false},
	}
	for _, tt := range tests {
		rec := ts.do(t, http.MethodGet, "/professionals/"+ts.prof.String()+"/availability?date=2030-01-09&time="+tt.time, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.time, rec.Code)
		}
		got := decode[api.AvailabilityResponse](t, rec)
		if got.Available != tt.available {
			t.Errorf("%s: expected available=%v, got %v", tt.time, tt.available, got.Available)
		}
		if got.Available && (got.RoomID == nil || *got.RoomID != ts.room) {
			t.Errorf("%s: expected room %s, got %v", tt.time, ts.room, got.RoomID)
		}
	}
}

func TestAppointmentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.addWindow(t, "wed", "09:00", "12:00")

	rec := ts.book(t, "2030-01-09T09:30")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[api.AppointmentResponse](t, rec)
	if created.Status != "reserved" || created.ScheduledAt != "2030-01-09T09:30" || created.RoomID != ts.room {
		t.Errorf("unexpected appointment %+v", created)
	}

	rec = ts.book(t, "2030-01-09T09:30")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double booking, got %d", rec.Code)
	}
	if got := decode[api.ErrorResponse](t, rec); got.Error != "slot_unavailable" {
		t.Errorf("expected slot_unavailable, got %q", got.Error)
	}

	base := "/appointments/" + created.ID.String()

	rec = ts.do(t, http.MethodPost, base+"/reschedule", api.RescheduleRequest{ScheduledAt: "2030-01-09T11:00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[api.AppointmentResponse](t, rec); got.Status != "rescheduled" || got.ScheduledAt != "2030-01-09T11:00" {
		t.Errorf("unexpected appointment after reschedule %+v", got)
	}

	rec = ts.do(t, http.MethodGet, "/professionals/"+ts.prof.String()+"/appointments?date=2030-01-09", nil)
	list := decode[api.AppointmentListResponse](t, rec)
	if len(list.Appointments) != 1 {
		t.Fatalf("expected 1 appointment on the day, got %d", len(list.Appointments))
	}

	attended, notes := true, "follow up in six weeks"
	rec = ts.do(t, http.MethodPost, base+"/attendance", api.AttendanceRequest{Attended: &attended, Notes: &notes})
	if rec.Code != http.StatusOK {
		t.Fatalf("attendance: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[api.AppointmentResponse](t, rec)
	if got.Status != "completed" {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.NotesPost == nil || *got.NotesPost != notes {
		t.Errorf("expected post-visit notes %q, got %v", notes, got.NotesPost)
	}

	rec = ts.do(t, http.MethodPost, base+"/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel completed: expected 409, got %d", rec.Code)
	}
	if got := decode[api.ErrorResponse](t, rec); got.Error != "invalid_transition" {
		t.Errorf("expected invalid_transition, got %q", got.Error)
	}

	rec = ts.do(t, http.MethodDelete, base, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, base, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCancelFreesSlot(t *testing.T) {
	ts := newTestServer(t)
	ts.addWindow(t, "wed", "09:00", "12:00")

	created := decode[api.AppointmentResponse](t, ts.book(t, "2030-01-09T09:00"))
	rec := ts.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", rec.Code)
	}
	if rec := ts.book(t, "2030-01-09T09:00"); rec.Code != http.StatusCreated {
		t.Errorf("expected slot to be bookable after cancel, got %d", rec.Code)
	}
}

func TestCreateAppointment_BadInput(t *testing.T) {
	ts := newTestServer(t)
	ts.addWindow(t, "wed", "09:00", "12:00")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed json", "not an object", http.StatusBadRequest, "invalid_request_body"},
		{"bad patient", api.CreateAppointmentRequest{PatientID: "x", ProfessionalID: ts.prof.String(), ScheduledAt: "2030-01-09T09:00"}, http.StatusBadRequest, "invalid_patient_id"},
		{"bad date-time", api.CreateAppointmentRequest{PatientID: ts.patient.String(), ProfessionalID: ts.prof.String(), ScheduledAt: "tomorrow"}, http.StatusBadRequest, "validation"},
		{"outside window", api.CreateAppointmentRequest{PatientID: ts.patient.String(), ProfessionalID: ts.prof.String(), ScheduledAt: "2030-01-09T13:00"}, http.StatusConflict, "slot_unavailable"},
		{"unknown professional", api.CreateAppointmentRequest{PatientID: ts.patient.String(), ProfessionalID: uuid.NewString(), ScheduledAt: "2030-01-09T09:00"}, http.StatusNotFound, "not_found"},
		{"unknown patient", api.CreateAppointmentRequest{PatientID: uuid.NewString(), ProfessionalID: ts.prof.String(), ScheduledAt: "2030-01-09T09:00"}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/appointments", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decode[api.ErrorResponse](t, rec); got.Error != tt.code {
				t.Errorf("expected error %q, got %q", tt.code, got.Error)
			}
		})
	}

	rec := ts.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestConcurrentBookingOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.addWindow(t, "wed", "09:00", "12:00")

	const workers = 16
	codes := make(chan int, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- ts.book(t, "2030-01-09T10:30").Code
		}()
	}
	wg.Wait()
	close(codes)

	created, conflicts := 0, 0
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		}
	}
	if created != 1 || conflicts != workers-1 {
		t.Errorf("expected 1 created and %d conflicts, got %d and %d", workers-1, created, conflicts)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/health/ready", nil)
	got := decode[api.ReadinessResponse](t, rec)
	if rec.Code != http.StatusOK || got.Status != "ok" || got.Dependencies["redis"] != "disabled" {
		t.Errorf("unexpected readiness %d %+v", rec.Code, got)
	}

	down := api.NewHealthHandler(fakePinger{err: errors.New("connection refused")}, nil, "test", "v0")
	rec = httptest.NewRecorder()
	down.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with postgres down, got %d", rec.Code)
	}
	if got := decode[api.ReadinessResponse](t, rec); got.Dependencies["postgres"] != "down" {
		t.Errorf("expected postgres down, got %+v", got.Dependencies)
	}
}
