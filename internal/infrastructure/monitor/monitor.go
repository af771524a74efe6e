// Package monitor tracks the health of the engine's external dependencies
// and gates background dispatch while they are unreachable.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/planhive/backend/internal/infrastructure/outbox"
)

// Pinger is implemented by storage backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is a point-in-time health snapshot.
type Status struct {
	Store      bool      `json:"store"`
	Outbox     bool      `json:"outbox"`
	OutboxSize int       `json:"outbox_size"`
	CheckedAt  time.Time `json:"checked_at"`
}

type Monitor struct {
	store  Pinger
	outbox *outbox.Store

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(store Pinger, out *outbox.Store, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		store:    store,
		outbox:   out,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether the primary store is reachable.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Store
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.refresh()
		}
	}
}

func (m *Monitor) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := Status{CheckedAt: time.Now().UTC()}

	if m.store != nil {
		if err := m.store.Ping(ctx); err != nil {
			m.logger.Warn("store unreachable", zap.Error(err))
		} else {
			status.Store = true
		}
	}
	if m.outbox != nil {
		if size, err := m.outbox.Size(); err == nil {
			status.Outbox = true
			status.OutboxSize = size
		}
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}
