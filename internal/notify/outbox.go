package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const KindAppointmentBooked = "appointment_booked"

type Message struct {
	ID            int64
	AppointmentID uuid.UUID
	Kind          string
	Attempts      int
	CreatedAt     time.Time
}

// Store is a durable queue of pending notifications.
type Store interface {
	Enqueue(ctx context.Context, appointmentID uuid.UUID, kind string) error
	// ProcessPending claims up to limit due messages with fewer than
	// maxAttempts attempts and records the outcome of handle for each.
	// Claimed rows are invisible to concurrent callers until it returns.
	ProcessPending(ctx context.Context, limit, maxAttempts int, handle func(ctx context.Context, m Message) error) (Stats, error)
}

type Stats struct {
	Sent   int
	Failed int
}

// OutboxNotifier records booking notifications for asynchronous delivery.
type OutboxNotifier struct {
	store Store
}

func NewOutboxNotifier(store Store) *OutboxNotifier {
	return &OutboxNotifier{store: store}
}

func (n *OutboxNotifier) NotifyAppointmentBooked(ctx context.Context, appointmentID uuid.UUID) error {
	return n.store.Enqueue(ctx, appointmentID, KindAppointmentBooked)
}

// Backoff is the delay before retry number attempts (1-based), doubling from
// 30s and capped at one hour.
func Backoff(attempts int) time.Duration {
	d := 30 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= time.Hour {
			return time.Hour
		}
	}
	return d
}
