package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusReserved    Status = "reserved"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusNoShow      Status = "no_show"
)

// BlockingStatuses hold their date-time against other bookings.
var BlockingStatuses = []Status{StatusReserved, StatusRescheduled}

func (s Status) Blocking() bool {
	return s == StatusReserved || s == StatusRescheduled
}

func (s Status) Valid() bool {
	switch s {
	case StatusReserved, StatusCompleted, StatusCancelled, StatusRescheduled, StatusNoShow:
		return true
	}
	return false
}

const DefaultDurationMinutes = 30

type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ProfessionalID  uuid.UUID  `json:"professional_id"`
	ServiceID       *uuid.UUID `json:"service_id,omitempty"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          Status     `json:"status"`
	RoomID          uuid.UUID  `json:"room_id"`
	NotesPre        *string    `json:"notes_pre,omitempty"`
	NotesPost       *string    `json:"notes_post,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (a Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

type CreateRequest struct {
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
	ServiceID      *uuid.UUID
	ScheduledAt    time.Time
	Notes          *string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
