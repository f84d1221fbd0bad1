package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type handlers struct {
	windows      *schedule.Store
	slots        *schedule.SlotGenerator
	checker      *schedule.Checker
	appointments *appointment.Service
	slotLength   int
	logger       *zap.Logger
}

// Windows

func (h *handlers) listWindows(w http.ResponseWriter, r *http.Request) {
	profID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	days := []schedule.Weekday{schedule.Monday, schedule.Tuesday, schedule.Wednesday, schedule.Thursday, schedule.Friday, schedule.Saturday, schedule.Sunday}
	if raw := r.URL.Query().Get("day"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day", "day must be an integer 1..7")
			return
		}
		days = []schedule.Weekday{schedule.Weekday(n)}
	}

	result := []schedule.Window{}
	for _, day := range days {
		windows, err := h.windows.WindowsFor(r.Context(), profID, day)
		if err != nil {
			h.writeAppError(w, r, err)
			return
		}
		result = append(result, windows...)
	}

	writeJSON(w, http.StatusOK, WindowListResponse{ProfessionalID: profID, Windows: result})
}

func (h *handlers) createWindow(w http.ResponseWriter, r *http.Request) {
	profID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req CreateWindowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	end, err := schedule.ParseClock(req.EndTime)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
		return
	}

	created, err := h.windows.AddWindow(r.Context(), schedule.Window{
		ProfessionalID: profID,
		Day:            schedule.Weekday(req.DayOfWeek),
		Start:          start,
		End:            end,
		RoomID:         roomID,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) getWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	win, err := h.windows.GetWindow(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (h *handlers) updateWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateWindowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var patch schedule.WindowPatch
	if req.DayOfWeek != nil {
		day := schedule.Weekday(*req.DayOfWeek)
		patch.Day = &day
	}
	if req.StartTime != nil {
		start, err := schedule.ParseClock(*req.StartTime)
		if err != nil {
			h.writeAppError(w, r, err)
			return
		}
		patch.Start = &start
	}
	if req.EndTime != nil {
		end, err := schedule.ParseClock(*req.EndTime)
		if err != nil {
			h.writeAppError(w, r, err)
			return
		}
		patch.End = &end
	}
	if req.RoomID != nil {
		roomID, err := uuid.Parse(*req.RoomID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
			return
		}
		patch.RoomID = &roomID
	}

	updated, err := h.windows.UpdateWindow(r.Context(), id, patch)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) deleteWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.windows.DeleteWindow(r.Context(), id); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Slots and availability

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	profID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	date, ok := h.dateQuery(w, r)
	if !ok {
		return
	}

	length := h.slotLength
	if raw := r.URL.Query().Get("length"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_length", "length must be an integer number of minutes")
			return
		}
		length = n
	}

	seq, err := h.slots.GenerateSlots(r.Context(), profID, date, length)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	slots := []schedule.Slot{}
	for s := range seq {
		slots = append(slots, s)
	}

	writeJSON(w, http.StatusOK, SlotsResponse{
		ProfessionalID: profID,
		Date:           date.Format(time.DateOnly),
		SlotLength:     length,
		Occupancy:      string(h.slots.Policy()),
		Slots:          slots,
	})
}

func (h *handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	profID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	date, ok := h.dateQuery(w, r)
	if !ok {
		return
	}
	at, err := schedule.ParseClock(r.URL.Query().Get("time"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	res, err := h.checker.CheckAvailability(r.Context(), profID, date, at)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		ProfessionalID: profID,
		Date:           date.Format(time.DateOnly),
		Time:           at.String(),
		Availability:   res,
	})
}

// Appointments

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	profID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	date, ok := h.dateQuery(w, r)
	if !ok {
		return
	}

	appts, err := h.appointments.ListForDay(r.Context(), profID, date)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	resp := AppointmentListResponse{
		ProfessionalID: profID,
		Date:           date.Format(time.DateOnly),
		Appointments:   make([]AppointmentResponse, 0, len(appts)),
	}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}
	profID, err := uuid.Parse(req.ProfessionalID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
		return
	}
	var serviceID *uuid.UUID
	if req.ServiceID != nil {
		id, err := uuid.Parse(*req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		serviceID = &id
	}
	at, err := parseDateTime(req.ScheduledAt)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	appt, err := h.appointments.Create(r.Context(), appointment.CreateRequest{
		PatientID:      patientID,
		ProfessionalID: profID,
		ServiceID:      serviceID,
		ScheduledAt:    at,
		Notes:          req.Notes,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.appointments.Get(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req RescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	at, err := parseDateTime(req.ScheduledAt)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	appt, err := h.appointments.Reschedule(r.Context(), id, at)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.appointments.Cancel(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) registerAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req AttendanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Attended == nil {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "attended is required")
		return
	}

	appt, err := h.appointments.RegisterAttendance(r.Context(), id, *req.Attended, req.Notes)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.appointments.Delete(r.Context(), id); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helpers

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindInvalidRange:      http.StatusBadRequest,
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindOverlap:           http.StatusConflict,
	apperr.KindSlotUnavailable:   http.StatusConflict,
	apperr.KindInvalidTransition: http.StatusConflict,
}

// writeAppError maps the error kind to a status code. Internal errors are
// logged and reported without details.
func (h *handlers) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			// client went away
			h.logger.Debug("request cancelled", zap.String("request_id", GetRequestID(r.Context())))
		} else {
			h.logger.Error("internal error",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
		}
		writeError(w, http.StatusInternalServerError, "internal_error", apperr.Message(err))
		return
	}
	writeError(w, status, string(kind), apperr.Message(err))
}

func (h *handlers) dateQuery(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "date is required (YYYY-MM-DD)")
		return time.Time{}, false
	}
	date, err := schedule.ParseDate(raw)
	if err != nil {
		h.writeAppError(w, r, err)
		return time.Time{}, false
	}
	return date, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// parseDateTime accepts clinic wall-clock date-times without a zone.
func parseDateTime(s string) (time.Time, error) {
	for _, layout := range []string{dateTimeLayout, "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if s == "" {
		return time.Time{}, apperr.Validation("scheduled_at is required")
	}
	return time.Time{}, apperr.Validation("invalid scheduled_at %q, expected YYYY-MM-DDTHH:MM", s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
