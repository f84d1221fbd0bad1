package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// dateTimeLayout is clinic wall-clock time without a zone.
const dateTimeLayout = "2006-01-02T15:04"

type CreateWindowRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	RoomID    string `json:"room_id"`
}

type UpdateWindowRequest struct {
	DayOfWeek *int    `json:"day_of_week"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	RoomID    *string `json:"room_id"`
}

type CreateAppointmentRequest struct {
	PatientID      string  `json:"patient_id"`
	ProfessionalID string  `json:"professional_id"`
	ServiceID      *string `json:"service_id"`
	ScheduledAt    string  `json:"scheduled_at"`
	Notes          *string `json:"notes"`
}

type RescheduleRequest struct {
	ScheduledAt string `json:"scheduled_at"`
}

type AttendanceRequest struct {
	Attended *bool   `json:"attended"`
	Notes    *string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ProfessionalID  uuid.UUID  `json:"professional_id"`
	ServiceID       *uuid.UUID `json:"service_id,omitempty"`
	ScheduledAt     string     `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	RoomID          uuid.UUID  `json:"room_id"`
	NotesPre        *string    `json:"notes_pre,omitempty"`
	NotesPost       *string    `json:"notes_post,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ProfessionalID:  a.ProfessionalID,
		ServiceID:       a.ServiceID,
		ScheduledAt:     a.ScheduledAt.Format(dateTimeLayout),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		RoomID:          a.RoomID,
		NotesPre:        a.NotesPre,
		NotesPost:       a.NotesPost,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	ProfessionalID uuid.UUID             `json:"professional_id"`
	Date           string                `json:"date"`
	Appointments   []AppointmentResponse `json:"appointments"`
}

type WindowListResponse struct {
	ProfessionalID uuid.UUID         `json:"professional_id"`
	Windows        []schedule.Window `json:"windows"`
}

type SlotsResponse struct {
	ProfessionalID uuid.UUID       `json:"professional_id"`
	Date           string          `json:"date"`
	SlotLength     int             `json:"slot_length_minutes"`
	Occupancy      string          `json:"occupancy_policy"`
	Slots          []schedule.Slot `json:"slots"`
}

type AvailabilityResponse struct {
	ProfessionalID uuid.UUID `json:"professional_id"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	schedule.Availability
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
