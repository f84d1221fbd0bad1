package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	EventAppointmentReserved    = "APPOINTMENT_RESERVED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
)

var statusEvents = map[Status]string{
	StatusCancelled: EventAppointmentCancelled,
	StatusCompleted: EventAppointmentCompleted,
	StatusNoShow:    EventAppointmentNoShow,
}

type ServiceInfo struct {
	DurationMinutes int
	PriceCents      int64
}

// ServiceDirectory returns an apperr not_found error for unknown services.
type ServiceDirectory interface {
	GetServiceByID(ctx context.Context, id uuid.UUID) (*ServiceInfo, error)
}

type ProfessionalDirectory interface {
	ProfessionalExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type PatientDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Notifier is called after a booking or reschedule commits. Errors are
// logged and never undo the booking.
type Notifier interface {
	NotifyAppointmentBooked(ctx context.Context, appointmentID uuid.UUID) error
}

// Dependencies wires a Service. Checker re-checks availability inside the
// booking transaction, so its windows must come from an uncached source such
// as Store.Direct. Patients is optional; without it an unknown patient is
// caught by the foreign key on insert.
type Dependencies struct {
	Repo          Repository
	Checker       *schedule.Checker
	Services      ServiceDirectory
	Professionals ProfessionalDirectory
	Patients      PatientDirectory
	Notifier      Notifier
	Locker        redisclient.Locker
	Logger        *zap.Logger
}

type Service struct {
	repo          Repository
	checker       *schedule.Checker
	services      ServiceDirectory
	professionals ProfessionalDirectory
	patients      PatientDirectory
	notifier      Notifier
	locker        redisclient.Locker
	cfg           config.Config
	logger        *zap.Logger
	now           func() time.Time
	stamp         func() time.Time
}

type Option func(*Service)

// WithClock sets the wall clock used to reject bookings in the past.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTimestamps sets the clock for created_at, updated_at and event rows.
// It must return real instants, not clinic wall-clock values.
func WithTimestamps(now func() time.Time) Option {
	return func(s *Service) { s.stamp = now }
}

func NewService(deps Dependencies, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:          deps.Repo,
		checker:       deps.Checker,
		services:      deps.Services,
		professionals: deps.Professionals,
		patients:      deps.Patients,
		notifier:      deps.Notifier,
		locker:        deps.Locker,
		cfg:           cfg,
		logger:        deps.Logger,
		now:           schedule.WallClock(time.UTC),
		stamp:         func() time.Time { return time.Now().UTC() },
	}
	if cfg.Location != nil {
		s.now = schedule.WallClock(cfg.Location)
	}
	if s.locker == nil {
		s.locker = redisclient.NoopLocker{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create books a new appointment. Availability is re-checked inside the
// transaction after taking the (professional, date-time) lock.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if req.ProfessionalID == uuid.Nil {
		return nil, apperr.Validation("professional_id is required")
	}
	at, err := s.normalizeDateTime(req.ScheduledAt)
	if err != nil {
		return nil, err
	}

	exists, err := s.professionals.ProfessionalExists(ctx, req.ProfessionalID)
	if err != nil {
		return nil, fmt.Errorf("check professional: %w", err)
	}
	if !exists {
		return nil, apperr.NotFound("professional", req.ProfessionalID)
	}
	if s.patients != nil {
		exists, err := s.patients.PatientExists(ctx, req.PatientID)
		if err != nil {
			return nil, fmt.Errorf("check patient: %w", err)
		}
		if !exists {
			return nil, apperr.NotFound("patient", req.PatientID)
		}
	}

	duration, err := s.resolveDuration(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.withSlot(ctx, req.ProfessionalID, at, func(ctx context.Context, tx TxRepository) error {
		avail, err := s.checker.WithOccupancy(tx).CheckAt(ctx, req.ProfessionalID, at)
		if err != nil {
			return fmt.Errorf("re-check availability: %w", err)
		}
		if err := unavailable(avail, req.ProfessionalID, at); err != nil {
			return err
		}

		now := s.stamp()
		appt := &Appointment{
			ID:              uuid.New(),
			PatientID:       req.PatientID,
			ProfessionalID:  req.ProfessionalID,
			ServiceID:       req.ServiceID,
			ScheduledAt:     at,
			DurationMinutes: duration,
			Status:          StatusReserved,
			RoomID:          *avail.RoomID,
			NotesPre:        req.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Insert(ctx, appt); err != nil {
			return err
		}

		if err := s.logEvent(ctx, tx, appt.ID, EventAppointmentReserved, map[string]any{
			"patient_id":      appt.PatientID,
			"professional_id": appt.ProfessionalID,
			"scheduled_at":    appt.ScheduledAt.Format(time.DateTime),
			"room_id":         appt.RoomID,
		}); err != nil {
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		s.logFailure("create appointment", err,
			zap.String("professional_id", req.ProfessionalID.String()),
			zap.Time("scheduled_at", at),
		)
		return nil, err
	}

	s.logger.Info("appointment reserved",
		zap.String("appointment_id", created.ID.String()),
		zap.String("professional_id", created.ProfessionalID.String()),
		zap.Time("scheduled_at", created.ScheduledAt),
	)
	s.notify(ctx, created.ID)
	return created, nil
}

// Reschedule moves an appointment to newAt, keeping its id. The new time is
// re-validated unless it equals the current one.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newAt time.Time) (*Appointment, error) {
	at, err := s.normalizeDateTime(newAt)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanReschedule(current.Status); err != nil {
		return nil, err
	}
	if current.ScheduledAt.Equal(at) && current.Status == StatusRescheduled {
		return current, nil
	}

	var updated *Appointment
	from := current.ScheduledAt

	err = s.withSlot(ctx, current.ProfessionalID, at, func(ctx context.Context, tx TxRepository) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// status may have moved since the unlocked read
		if err := CanReschedule(appt.Status); err != nil {
			return err
		}
		from = appt.ScheduledAt

		roomID := appt.RoomID
		if !appt.ScheduledAt.Equal(at) {
			avail, err := s.checker.WithOccupancy(tx).CheckAt(ctx, appt.ProfessionalID, at)
			if err != nil {
				return fmt.Errorf("re-check availability: %w", err)
			}
			if err := unavailable(avail, appt.ProfessionalID, at); err != nil {
				return err
			}
			roomID = *avail.RoomID
		}

		updated, err = tx.UpdateSchedule(ctx, id, at, roomID, StatusRescheduled, s.stamp())
		if err != nil {
			return err
		}

		return s.logEvent(ctx, tx, id, EventAppointmentRescheduled, map[string]any{
			"from":    from.Format(time.DateTime),
			"to":      at.Format(time.DateTime),
			"room_id": roomID,
		})
	})
	if err != nil {
		s.logFailure("reschedule appointment", err,
			zap.String("appointment_id", id.String()),
			zap.Time("scheduled_at", at),
		)
		return nil, err
	}

	s.logger.Info("appointment rescheduled",
		zap.String("appointment_id", id.String()),
		zap.Time("from", from),
		zap.Time("to", at),
	)
	s.notify(ctx, id)
	return updated, nil
}

// Cancel soft-cancels an appointment. The date-time is free again once this
// returns.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.changeStatus(ctx, id, StatusCancelled, nil)
}

// RegisterAttendance closes an appointment as completed or no_show and
// stores notes as the post-visit notes when given. Repeating the current
// outcome is a no-op and leaves the notes untouched.
func (s *Service) RegisterAttendance(ctx context.Context, id uuid.UUID, attended bool, notes *string) (*Appointment, error) {
	return s.changeStatus(ctx, id, AttendanceStatus(attended), notes)
}

func (s *Service) changeStatus(ctx context.Context, id uuid.UUID, to Status, notesPost *string) (*Appointment, error) {
	var (
		result  *Appointment
		effects Effects
	)

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		effects, err = Transition(appt.Status, to)
		if err != nil {
			return err
		}
		if effects.NoOp {
			result = appt
			return nil
		}

		result, err = tx.UpdateStatus(ctx, id, to, notesPost, s.stamp())
		if err != nil {
			return err
		}

		return s.logEvent(ctx, tx, id, statusEvents[to], map[string]any{
			"from": appt.Status,
			"to":   to,
		})
	})
	if err != nil {
		s.logFailure("change appointment status", err,
			zap.String("appointment_id", id.String()),
			zap.String("to", string(to)),
		)
		return nil, err
	}

	if !effects.NoOp {
		s.logger.Info("appointment status changed",
			zap.String("appointment_id", id.String()),
			zap.String("status", string(to)),
			zap.Bool("frees_slot", effects.FreesSlot),
		)
	}
	return result, nil
}

// Delete removes the appointment row. Only the administrative path uses it;
// ordinary cancellation goes through Cancel.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return s.logEvent(ctx, tx, id, EventAppointmentDeleted, map[string]any{
			"professional_id": appt.ProfessionalID,
			"scheduled_at":    appt.ScheduledAt.Format(time.DateTime),
			"status":          appt.Status,
		})
	})
	if err != nil {
		s.logFailure("delete appointment", err, zap.String("appointment_id", id.String()))
		return err
	}

	s.logger.Info("appointment deleted",
		zap.String("appointment_id", id.String()),
		zap.Bool("frees_slot", deleteEffects.FreesSlot),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListForDay returns every appointment of the professional on date's
// calendar day, in any status, ordered by time.
func (s *Service) ListForDay(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListForDay(ctx, professionalID, schedule.Date(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// withSlot runs fn in a transaction holding both the distributed slot lock
// and the database lock for (professionalID, at).
func (s *Service) withSlot(ctx context.Context, professionalID uuid.UUID, at time.Time, fn func(ctx context.Context, tx TxRepository) error) error {
	err := s.locker.WithSlotLock(ctx, professionalID, at, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.LockSlot(ctx, professionalID, at); err != nil {
				return err
			}
			return fn(ctx, tx)
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return apperr.Wrap(apperr.KindSlotUnavailable, err, "slot is being booked by another request")
	}
	return err
}

func unavailable(avail schedule.Availability, professionalID uuid.UUID, at time.Time) error {
	if avail.Available {
		return nil
	}
	if avail.Window == nil {
		return apperr.SlotUnavailable("professional %s has no availability window at %s", professionalID, at.Format("2006-01-02 15:04"))
	}
	return apperr.SlotUnavailable("professional %s is already booked at %s", professionalID, at.Format("2006-01-02 15:04"))
}

// normalizeDateTime reads t as clinic wall-clock time on a whole minute.
func (s *Service) normalizeDateTime(t time.Time) (time.Time, error) {
	if t.IsZero() {
		return time.Time{}, apperr.Validation("scheduled_at is required")
	}
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return time.Time{}, apperr.Validation("scheduled_at must be on a whole minute")
	}
	at := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	if at.Before(s.now()) {
		return time.Time{}, apperr.Validation("scheduled_at %s is in the past", at.Format("2006-01-02 15:04"))
	}
	return at, nil
}

func (s *Service) resolveDuration(ctx context.Context, serviceID *uuid.UUID) (int, error) {
	if serviceID == nil {
		return s.defaultDuration(), nil
	}
	info, err := s.services.GetServiceByID(ctx, *serviceID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("load service: %w", err)
	}
	if info.DurationMinutes <= 0 {
		return s.defaultDuration(), nil
	}
	return info.DurationMinutes, nil
}

func (s *Service) defaultDuration() int {
	if s.cfg.DefaultDurationMinutes > 0 {
		return s.cfg.DefaultDurationMinutes
	}
	return DefaultDurationMinutes
}

// logEvent writes the audit row inside the transaction, so a failure aborts
// the whole operation.
func (s *Service) logEvent(ctx context.Context, tx TxRepository, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.stamp(),
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return err
	}
	return nil
}

func (s *Service) notify(ctx context.Context, id uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyAppointmentBooked(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Warn("appointment notification failed",
			zap.String("appointment_id", id.String()),
			zap.Error(err),
		)
	}
}

// logFailure logs internal errors at error level and expected domain
// outcomes at debug.
func (s *Service) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if apperr.KindOf(err) == apperr.KindInternal {
		s.logger.Error(op+" failed", fields...)
		return
	}
	s.logger.Debug(op+" rejected", append(fields, zap.String("kind", string(apperr.KindOf(err))))...)
}
