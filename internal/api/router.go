package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type RouterConfig struct {
	Windows      *schedule.Store
	Slots        *schedule.SlotGenerator
	Checker      *schedule.Checker
	Appointments *appointment.Service
	SlotLength   int

	Postgres Pinger
	Redis    redis.Cmdable // nil when Redis is disabled
	Logger   *zap.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	slotLength := cfg.SlotLength
	if slotLength == 0 {
		slotLength = schedule.DefaultSlotLength
	}

	h := &handlers{
		windows:      cfg.Windows,
		slots:        cfg.Slots,
		checker:      cfg.Checker,
		appointments: cfg.Appointments,
		slotLength:   slotLength,
		logger:       logger,
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/professionals/{id}", func(r chi.Router) {
		r.Get("/windows", h.listWindows)
		r.Post("/windows", h.createWindow)
		r.Get("/slots", h.listSlots)
		r.Get("/availability", h.checkAvailability)
		r.Get("/appointments", h.listAppointments)
	})

	r.Route("/windows/{id}", func(r chi.Router) {
		r.Get("/", h.getWindow)
		r.Put("/", h.updateWindow)
		r.Patch("/", h.updateWindow)
		r.Delete("/", h.deleteWindow)
	})

	r.Post("/appointments", h.createAppointment)
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", h.getAppointment)
		r.Delete("/", h.deleteAppointment)
		r.Post("/reschedule", h.rescheduleAppointment)
		r.Post("/cancel", h.cancelAppointment)
		r.Post("/attendance", h.registerAttendance)
	})

	return r
}
