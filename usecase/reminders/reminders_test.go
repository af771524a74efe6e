package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository/memory"
)

type call struct {
	op            string
	userIDs       []string
	correlationID string
	at            time.Time
}

type fakeNotifier struct {
	mu        sync.Mutex
	calls     []call
	pending   map[string]int
	failNext  error
	cancelErr error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{pending: make(map[string]int)}
}

func (f *fakeNotifier) ScheduleAt(ctx context.Context, userID, title, body, correlationID string, at time.Time, data map[string]string) error {
	return f.record(call{op: "schedule", userIDs: []string{userID}, correlationID: correlationID, at: at})
}

func (f *fakeNotifier) ScheduleBatchAt(ctx context.Context, userIDs []string, title, body, correlationID string, at time.Time, data map[string]string) error {
	return f.record(call{op: "batch", userIDs: userIDs, correlationID: correlationID, at: at})
}

func (f *fakeNotifier) CancelByCorrelationID(ctx context.Context, correlationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return 0, f.cancelErr
	}
	deleted := f.pending[correlationID]
	delete(f.pending, correlationID)
	f.calls = append(f.calls, call{op: "cancel", correlationID: correlationID})
	return deleted, nil
}

func (f *fakeNotifier) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.calls = append(f.calls, c)
	f.pending[c.correlationID]++
	return nil
}

func (f *fakeNotifier) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

var testNow = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func newScheduler(notifier *fakeNotifier, groups *memory.GroupDirectory) *Scheduler {
	if groups == nil {
		groups = memory.NewGroupDirectory()
	}
	s := New(notifier, groups, nil)
	s.now = func() time.Time { return testNow }
	return s
}

func intPtr(v int) *int { return &v }

func TestReconcileSchedulesRelativeReminder(t *testing.T) {
	notifier := newFakeNotifier()
	s := newScheduler(notifier, nil)

	ev := &domain.Event{
		ID:              "ev1",
		CalendarID:      "user-7",
		Title:           "Dentist",
		StartTime:       "2025-03-15T09:00:00",
		ReminderMinutes: intPtr(30),
	}

	res, err := s.ReconcileEvent(context.Background(), "user-7", ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)

	require.Len(t, notifier.calls, 1)
	c := notifier.calls[0]
	assert.Equal(t, "schedule", c.op)
	assert.Equal(t, []string{"user-7"}, c.userIDs)
	assert.Equal(t, "ev1", c.correlationID)
	assert.Equal(t, time.Date(2025, time.March, 15, 8, 30, 0, 0, time.UTC), c.at)
}

func TestReconcileSchedulesAbsoluteReminder(t *testing.T) {
	notifier := newFakeNotifier()
	s := newScheduler(notifier, nil)

	ev := &domain.Event{
		ID:           "ev1",
		CalendarID:   "user-7",
		Title:        "Conference",
		StartTime:    "2025-03-20",
		IsAllDay:     true,
		ReminderTime: "2025-03-19T18:00:00",
	}

	res, err := s.ReconcileEvent(context.Background(), "user-7", ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)
	assert.Equal(t, time.Date(2025, time.March, 19, 18, 0, 0, 0, time.UTC), notifier.calls[0].at)
}

func TestPastFireTimeIsSkippedSilently(t *testing.T) {
	notifier := newFakeNotifier()
	s := newScheduler(notifier, nil)

	ev := &domain.Event{
		ID:              "ev1",
		CalendarID:      "user-7",
		Title:           "Yesterday",
		StartTime:       "2025-02-28T09:00:00",
		ReminderMinutes: intPtr(30),
	}

	res, err := s.ReconcileEvent(context.Background(), "user-7", ev)
	require.NoError(t, err, "a past fire time is skipped, not an error")
	assert.Equal(t, 0, res.Scheduled)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, notifier.calls)
}

func TestReconcileCancelsBeforeScheduling(t *testing.T) {
	notifier := newFakeNotifier()
	s := newScheduler(notifier, nil)

	ev := &domain.Event{
		ID:              "ev1",
		CalendarID:      "user-7",
		Title:           "Dentist",
		StartTime:       "2025-03-15T09:00:00",
		ReminderMinutes: intPtr(30),
	}

	_, err := s.ReconcileEvent(context.Background(), "user-7", ev)
	require.NoError(t, err)

	ev.StartTime = "2025-03-16T09:00:00"
	res, err := s.ReconcileEvent(context.Background(), "user-7", ev)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Cancelled)
	assert.Equal(t, 1, res.Scheduled)
	assert.Equal(t, []string{"cancel", "schedule", "cancel", "schedule"}, notifier.ops())

	// Only the reschedule is pending; the identity never duplicates.
	assert.Equal(t, 1, notifier.pending["ev1"])
}

func TestCancelFailureDoesNotBlockReschedule(t *testing.T) {
	notifier := newFakeNotifier()
	notifier.cancelErr = errors.New("outbox unavailable")
	s := newScheduler(notifier, nil)

	ev := &domain.Event{
		ID:              "ev1",
		CalendarID:      "user-7",
		Title:           "Dentist",
		StartTime:       "2025-03-15T09:00:00",
		ReminderMinutes: intPtr(30),
	}

	res, err := s.ReconcileEvent(context.Background(), "user-7", ev)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Cancelled)
	assert.Equal(t, 1, res.Scheduled)
}

func TestGroupEventFansOutToOtherMembers(t *testing.T) {
	notifier := newFakeNotifier()
	groups := memory.NewGroupDirectory()
	groups.SetGroup("42", []string{"creator", "member-a", "member-b"}, []string{"creator"})
	s := newScheduler(notifier, groups)

	ev := &domain.Event{
		ID:              "ev-group",
		CalendarID:      "group-42",
		Title:           "Team offsite",
		StartTime:       "2025-03-15T09:00:00",
		ReminderMinutes: intPtr(60),
	}

	res, err := s.ReconcileEvent(context.Background(), "creator", ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)

	require.Len(t, notifier.calls, 1)
	c := notifier.calls[0]
	assert.Equal(t, "batch", c.op)
	assert.ElementsMatch(t, []string{"member-a", "member-b"}, c.userIDs, "the actor never notifies themselves")
}

func TestGroupWithOnlyActorSkips(t *testing.T) {
	notifier := newFakeNotifier()
	groups := memory.NewGroupDirectory()
	groups.SetGroup("42", []string{"creator"}, []string{"creator"})
	s := newScheduler(notifier, groups)

	ev := &domain.Event{
		ID:              "ev-group",
		CalendarID:      "group-42",
		Title:           "Solo",
		StartTime:       "2025-03-15T09:00:00",
		ReminderMinutes: intPtr(60),
	}

	res, err := s.ReconcileEvent(context.Background(), "creator", ev)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scheduled)
	assert.Equal(t, 1, res.Skipped)
}

func TestActivityReminderUsesCompositeIdentity(t *testing.T) {
	notifier := newFakeNotifier()
	s := newScheduler(notifier, nil)

	ev := &domain.Event{
		ID:         "ev1",
		CalendarID: "user-7",
		Title:      "Trip",
		StartTime:  "2025-03-15T09:00:00",
		Activities: []domain.Activity{{
			ID:              "act1",
			ActivityType:    domain.ActivityTypeChecklist,
			Name:            "Pack bags",
			ReminderMinutes: intPtr(120),
			Checklist:       &domain.ChecklistPayload{},
		}},
	}

	res, err := s.ReconcileEvent(context.Background(), "user-7", ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)
	assert.Equal(t, "ev1-checklist-act1", notifier.calls[0].correlationID)
}

func TestNotifyAdminActivityTargetsGroupAdmins(t *testing.T) {
	notifier := newFakeNotifier()
	groups := memory.NewGroupDirectory()
	groups.SetGroup("42", []string{"creator", "member-a", "admin-z"}, []string{"admin-z"})
	s := newScheduler(notifier, groups)

	ev := &domain.Event{
		ID:         "ev-group",
		CalendarID: "group-42",
		Title:      "Cleanup",
		StartTime:  "2025-03-15T09:00:00",
		Activities: []domain.Activity{{
			ID:              "act1",
			ActivityType:    domain.ActivityTypeChecklist,
			Name:            "Bring supplies",
			ReminderMinutes: intPtr(30),
			NotifyAdmin:     true,
			Checklist:       &domain.ChecklistPayload{},
		}},
	}

	res, err := s.ReconcileEvent(context.Background(), "creator", ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "batch", notifier.calls[0].op)
	assert.Equal(t, []string{"admin-z"}, notifier.calls[0].userIDs)
}

func TestScheduleFailureSurfacesAsError(t *testing.T) {
	notifier := newFakeNotifier()
	notifier.failNext = errors.New("queue full")
	s := newScheduler(notifier, nil)

	ev := &domain.Event{
		ID:              "ev1",
		CalendarID:      "user-7",
		Title:           "Dentist",
		StartTime:       "2025-03-15T09:00:00",
		ReminderMinutes: intPtr(30),
	}

	_, err := s.ReconcileEvent(context.Background(), "user-7", ev)
	require.Error(t, err)
}
