package notify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planhive/backend/internal/infrastructure/outbox"
)

type recordingSender struct {
	sent    []outbox.Notification
	failErr error
}

func (s *recordingSender) Send(ctx context.Context, n outbox.Notification) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.sent = append(s.sent, n)
	return nil
}

type health bool

func (h health) IsOnline() bool { return bool(h) }

func openOutbox(t *testing.T) *outbox.Store {
	t.Helper()
	store, err := outbox.Open(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func enqueueDue(t *testing.T, store *outbox.Store, correlationID string) {
	t.Helper()
	require.NoError(t, store.Enqueue(outbox.Notification{
		CorrelationID: correlationID,
		UserIDs:       []string{"user-7"},
		Title:         "Reminder",
		FireAt:        time.Now().Add(-time.Minute),
	}))
}

func TestDrainDeliversAndPurges(t *testing.T) {
	store := openOutbox(t)
	enqueueDue(t, store, "ev1")

	sender := &recordingSender{}
	d := NewDispatcher(store, sender, health(true), nil, DispatcherConfig{})

	require.NoError(t, d.Drain(context.Background()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ev1", sender.sent[0].CorrelationID)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestDrainSkipsWhileOffline(t *testing.T) {
	store := openOutbox(t)
	enqueueDue(t, store, "ev1")

	sender := &recordingSender{}
	d := NewDispatcher(store, sender, health(false), nil, DispatcherConfig{})

	require.NoError(t, d.Drain(context.Background()))
	assert.Empty(t, sender.sent)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size, "undelivered notifications stay queued")
}

func TestDrainRequeuesFailedDeliveries(t *testing.T) {
	store := openOutbox(t)
	enqueueDue(t, store, "ev1")

	sender := &recordingSender{failErr: errors.New("push gateway down")}
	d := NewDispatcher(store, sender, health(true), nil, DispatcherConfig{MaxRetries: 3})

	require.NoError(t, d.Drain(context.Background()))

	due, err := store.Due(time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
}

func TestDrainDropsAfterMaxRetries(t *testing.T) {
	store := openOutbox(t)
	enqueueDue(t, store, "ev1")

	sender := &recordingSender{failErr: errors.New("push gateway down")}
	d := NewDispatcher(store, sender, health(true), nil, DispatcherConfig{MaxRetries: 2})

	require.NoError(t, d.Drain(context.Background()))
	require.NoError(t, d.Drain(context.Background()))

	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size, "notifications past the retry cap are dropped")
}

func TestDrainLeavesFutureNotifications(t *testing.T) {
	store := openOutbox(t)
	require.NoError(t, store.Enqueue(outbox.Notification{
		CorrelationID: "future",
		UserIDs:       []string{"user-7"},
		FireAt:        time.Now().Add(time.Hour),
	}))

	sender := &recordingSender{}
	d := NewDispatcher(store, sender, health(true), nil, DispatcherConfig{})

	require.NoError(t, d.Drain(context.Background()))
	assert.Empty(t, sender.sent)
}

func TestServiceCancelReportsDeletedCount(t *testing.T) {
	store := openOutbox(t)
	svc := NewService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.ScheduleAt(ctx, "user-7", "t", "b", "ev1", time.Now().Add(time.Hour), nil))
	require.NoError(t, svc.ScheduleBatchAt(ctx, []string{"a", "b"}, "t", "b", "ev1", time.Now().Add(2*time.Hour), nil))

	deleted, err := svc.CancelByCorrelationID(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
}

func TestServiceBatchWithNoTargetsIsNoOp(t *testing.T) {
	store := openOutbox(t)
	svc := NewService(store, nil)

	require.NoError(t, svc.ScheduleBatchAt(context.Background(), nil, "t", "b", "ev1", time.Now().Add(time.Hour), nil))
	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}
