package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sender delivers one notification through an external channel.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender only logs. Delivery channels (email, SMS, push) live outside
// this service.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(_ context.Context, m Message) error {
	s.Logger.Info("notification dispatched",
		zap.Int64("outbox_id", m.ID),
		zap.String("appointment_id", m.AppointmentID.String()),
		zap.String("kind", m.Kind),
		zap.Int("attempt", m.Attempts+1),
	)
	return nil
}

type Dispatcher struct {
	store       Store
	sender      Sender
	batchSize   int
	maxAttempts int
	logger      *zap.Logger
}

const DefaultMaxAttempts = 5

func NewDispatcher(store Store, sender Sender, batchSize int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		sender:      sender,
		batchSize:   batchSize,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
	}
}

// RunOnce drains one batch.
func (d *Dispatcher) RunOnce(ctx context.Context) (Stats, error) {
	stats, err := d.store.ProcessPending(ctx, d.batchSize, d.maxAttempts, func(ctx context.Context, m Message) error {
		if err := d.sender.Send(ctx, m); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.Int64("outbox_id", m.ID),
				zap.String("appointment_id", m.AppointmentID.String()),
				zap.Int("attempt", m.Attempts+1),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("process outbox: %w", err)
	}
	return stats, nil
}

// Run polls every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("notify dispatcher started", zap.Duration("interval", interval), zap.Int("batch_size", d.batchSize))

	for {
		d.tick(ctx)

		select {
		case <-ctx.Done():
			d.logger.Info("notify dispatcher shutting down")
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	stats, err := d.RunOnce(runCtx)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("notify dispatcher run failed", zap.Error(err))
		}
		return
	}
	if stats.Sent > 0 || stats.Failed > 0 {
		d.logger.Info("notify dispatcher batch",
			zap.Int("sent", stats.Sent),
			zap.Int("failed", stats.Failed),
			zap.Duration("took", time.Since(start)),
		)
	}
}
