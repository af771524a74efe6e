package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/planhive/backend/internal/infrastructure/outbox"
)

// Sender is the push transport boundary: it delivers one due notification
// to its targets.
type Sender interface {
	Send(ctx context.Context, n outbox.Notification) error
}

// LogSender logs deliveries instead of pushing; the development transport.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(ctx context.Context, n outbox.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification delivered",
		zap.String("correlation_id", n.CorrelationID),
		zap.Strings("user_ids", n.UserIDs),
		zap.String("title", n.Title))
	return nil
}

// ConnectionHealth gates dispatch while upstream transports are down.
type ConnectionHealth interface {
	IsOnline() bool
}

// DispatcherConfig controls how frequently the outbox is drained.
type DispatcherConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// Dispatcher sweeps the outbox on a cron schedule and hands due
// notifications to the Sender. Failed deliveries are requeued until the
// retry cap, then dropped.
type Dispatcher struct {
	store   *outbox.Store
	sender  Sender
	monitor ConnectionHealth
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     DispatcherConfig
	now     func() time.Time
}

func NewDispatcher(store *outbox.Store, sender Sender, monitor ConnectionHealth, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		store:   store,
		sender:  sender,
		monitor: monitor,
		logger:  logger,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
		now:     time.Now,
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = d.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := d.Drain(ctx); err != nil {
			d.logger.Error("outbox drain failed", zap.Error(err))
		}
	})

	return d
}

// Start launches the cron scheduler.
func (d *Dispatcher) Start() {
	if d == nil || d.cron == nil {
		return
	}
	d.cron.Start()
	d.logger.Info("notification dispatcher started")
}

// Stop gracefully stops the scheduler.
func (d *Dispatcher) Stop(ctx context.Context) {
	if d == nil || d.cron == nil {
		return
	}
	stopCtx := d.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	d.logger.Info("notification dispatcher stopped")
}

// Drain delivers every due notification synchronously.
func (d *Dispatcher) Drain(ctx context.Context) error {
	if d == nil || d.store == nil {
		return nil
	}
	if d.monitor != nil && !d.monitor.IsOnline() {
		d.logger.Debug("skipping outbox drain (offline)")
		return nil
	}

	due, err := d.store.Due(d.now(), d.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, n := range due {
		if err := d.sender.Send(ctx, n); err != nil {
			d.logger.Error("notification delivery failed",
				zap.String("id", n.ID),
				zap.String("correlation_id", n.CorrelationID),
				zap.Error(err))

			n.Attempts++
			if n.Attempts >= d.cfg.MaxRetries {
				d.logger.Warn("dropping notification (max retries reached)", zap.String("id", n.ID))
				_ = d.store.Remove(n)
				continue
			}
			if err := d.store.Remove(n); err != nil {
				d.logger.Warn("failed to remove notification", zap.Error(err))
			}
			if err := d.store.Requeue(n); err != nil {
				d.logger.Error("failed to requeue notification", zap.Error(err))
			}
			continue
		}
		if err := d.store.Remove(n); err != nil {
			d.logger.Warn("failed to purge delivered notification", zap.Error(err))
		}
	}
	return nil
}
