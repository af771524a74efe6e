package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
	"github.com/planhive/backend/repository/memory"
	"github.com/planhive/backend/usecase/reminders"
)

type notifierCall struct {
	userIDs       []string
	correlationID string
	at            time.Time
}

type captureNotifier struct {
	scheduled []notifierCall
	cancelled []string
	failErr   error
}

func (c *captureNotifier) ScheduleAt(ctx context.Context, userID, title, body, correlationID string, at time.Time, data map[string]string) error {
	if c.failErr != nil {
		return c.failErr
	}
	c.scheduled = append(c.scheduled, notifierCall{userIDs: []string{userID}, correlationID: correlationID, at: at})
	return nil
}

func (c *captureNotifier) ScheduleBatchAt(ctx context.Context, userIDs []string, title, body, correlationID string, at time.Time, data map[string]string) error {
	if c.failErr != nil {
		return c.failErr
	}
	c.scheduled = append(c.scheduled, notifierCall{userIDs: userIDs, correlationID: correlationID, at: at})
	return nil
}

func (c *captureNotifier) CancelByCorrelationID(ctx context.Context, correlationID string) (int, error) {
	c.cancelled = append(c.cancelled, correlationID)
	return 0, nil
}

type fakeProvider struct {
	externalID string
	createErr  error
	updated    int
	deleted    int
}

func (p *fakeProvider) CreateEvent(ctx context.Context, ev *domain.Event) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	return p.externalID, nil
}

func (p *fakeProvider) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	p.updated++
	return nil
}

func (p *fakeProvider) DeleteEvent(ctx context.Context, ev *domain.Event) error {
	p.deleted++
	return nil
}

type fixture struct {
	store    *memory.Store
	notifier *captureNotifier
	provider *fakeProvider
	uc       *UseCase
}

func newFixture() *fixture {
	store := memory.New()
	notifier := &captureNotifier{}
	provider := &fakeProvider{externalID: "g-ext-1"}
	providers := repository.ProviderRegistry{domain.SourceGoogle: provider}
	sched := reminders.New(notifier, memory.NewGroupDirectory(), nil)
	return &fixture{
		store:    store,
		notifier: notifier,
		provider: provider,
		uc:       New(store, providers, sched, nil),
	}
}

// Reminder derivation needs fire times in the future, so fixtures schedule
// into 2030.
func dentistEvent() *domain.Event {
	minutes := 30
	return &domain.Event{
		Title:           "Dentist",
		CalendarID:      "user-7",
		StartTime:       "2030-03-15T09:00:00",
		ReminderMinutes: &minutes,
	}
}

func personalTarget(ev *domain.Event) Target {
	return TargetFor("user-7", ev)
}

func TestCreateWritesEventToItsMonthShard(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()

	res, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.NoError(t, err)
	require.NotEmpty(t, res.Event.ID)
	assert.Nil(t, res.ReminderWarning)

	doc, err := f.store.Get(context.Background(), "activities/user-7/months/2030-03")
	require.NoError(t, err)
	raw, ok := doc[res.Event.ID].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Dentist", raw["title"])
	_, hasID := raw["id"]
	assert.False(t, hasID, "stored items carry no id field; the map key is the id")

	require.Len(t, f.notifier.scheduled, 1)
	c := f.notifier.scheduled[0]
	assert.Equal(t, res.Event.ID, c.correlationID)
	assert.Equal(t, time.Date(2030, time.March, 15, 8, 30, 0, 0, time.UTC), c.at)
	assert.Equal(t, []string{"user-7"}, c.userIDs)
}

func TestCreateRejectsInvalidPayload(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	ev.Title = ""

	_, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeValidation))
}

func TestCreateRejectsUnparseableStart(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	ev.StartTime = "next tuesday"

	_, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalidDate))
}

func TestCreateProviderFailureAbortsShardWrite(t *testing.T) {
	f := newFixture()
	f.provider.createErr = errors.New("rate limited")

	ev := dentistEvent()
	ev.Source = domain.SourceGoogle
	ev.CalendarID = "cal-1"

	_, err := f.uc.Create(context.Background(), "user-7", TargetFor("user-7", ev), ev)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeTransport))

	_, err = f.store.Get(context.Background(), "calendars/cal-1/events/2030-03")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestCreateProviderAssignsExternalID(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	ev.Source = domain.SourceGoogle
	ev.CalendarID = "cal-1"

	res, err := f.uc.Create(context.Background(), "user-7", TargetFor("user-7", ev), ev)
	require.NoError(t, err)
	assert.Equal(t, "g-ext-1", res.Event.ExternalID)
}

func TestReminderFailureDoesNotRollBackWrite(t *testing.T) {
	f := newFixture()
	f.notifier.failErr = errors.New("queue unavailable")

	ev := dentistEvent()
	res, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.NoError(t, err, "the data write stands even when reminders fail")
	require.NotNil(t, res.ReminderWarning)

	doc, err := f.store.Get(context.Background(), "activities/user-7/months/2030-03")
	require.NoError(t, err)
	assert.Contains(t, doc, res.Event.ID)
}

func TestUpdateMissingShardFails(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	ev.ID = "ev1"

	_, err := f.uc.Update(context.Background(), "user-7", personalTarget(ev), ev.StartTime, ev)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestUpdateMissingEventFails(t *testing.T) {
	f := newFixture()
	created := dentistEvent()
	_, err := f.uc.Create(context.Background(), "user-7", personalTarget(created), created)
	require.NoError(t, err)

	ghost := dentistEvent()
	ghost.ID = "no-such-event"
	_, err = f.uc.Update(context.Background(), "user-7", personalTarget(ghost), ghost.StartTime, ghost)
	require.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestUpdateSameMonthRewritesInPlace(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	res, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.NoError(t, err)

	updated := dentistEvent()
	updated.ID = res.Event.ID
	updated.Title = "Dentist (moved)"
	updated.StartTime = "2030-03-20T10:00:00"

	_, err = f.uc.Update(context.Background(), "user-7", personalTarget(updated), "2030-03-15T09:00:00", updated)
	require.NoError(t, err)

	doc, err := f.store.Get(context.Background(), "activities/user-7/months/2030-03")
	require.NoError(t, err)
	raw := doc[res.Event.ID].(map[string]any)
	assert.Equal(t, "Dentist (moved)", raw["title"])
}

func TestUpdateAcrossMonthsMovesShard(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	res, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.NoError(t, err)

	moved := dentistEvent()
	moved.ID = res.Event.ID
	moved.StartTime = "2030-04-02T09:00:00"

	_, err = f.uc.Update(context.Background(), "user-7", personalTarget(moved), "2030-03-15T09:00:00", moved)
	require.NoError(t, err)

	march, err := f.store.Get(context.Background(), "activities/user-7/months/2030-03")
	require.NoError(t, err)
	assert.NotContains(t, march, res.Event.ID, "item must leave the old shard")

	april, err := f.store.Get(context.Background(), "activities/user-7/months/2030-04")
	require.NoError(t, err)
	assert.Contains(t, april, res.Event.ID)
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	res, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.NoError(t, err)
	createdAt := res.Event.CreatedAt
	require.False(t, createdAt.IsZero())

	updated := dentistEvent()
	updated.ID = res.Event.ID
	updated.Title = "Renamed"
	out, err := f.uc.Update(context.Background(), "user-7", personalTarget(updated), updated.StartTime, updated)
	require.NoError(t, err)
	assert.Equal(t, createdAt.Unix(), out.Event.CreatedAt.Unix())
	assert.True(t, out.Event.UpdatedAt.After(createdAt) || out.Event.UpdatedAt.Equal(createdAt))
}

func TestUpdateActivitiesReplacesWholesale(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	ev.Activities = []domain.Activity{{
		ID:           "act-old",
		ActivityType: domain.ActivityTypeChecklist,
		Name:         "Old list",
		Checklist:    &domain.ChecklistPayload{Items: []domain.ChecklistItem{{ID: "i1", Text: "x"}}},
	}}
	res, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.NoError(t, err)

	replacement := []domain.Activity{{
		ID:           "act-new",
		ActivityType: domain.ActivityTypeChecklist,
		Name:         "New list",
		Checklist:    &domain.ChecklistPayload{Items: []domain.ChecklistItem{{ID: "i2", Text: "y"}}},
	}}

	out, err := f.uc.UpdateActivities(context.Background(), "user-7", personalTarget(ev), res.Event.ID, ev.StartTime, replacement)
	require.NoError(t, err)
	require.Len(t, out.Event.Activities, 1)
	assert.Equal(t, "act-new", out.Event.Activities[0].ID)
	assert.Equal(t, "Dentist", out.Event.Title, "unrelated fields survive the replacement")
}

func TestDeleteInternalRemovesItemAndCancelsReminders(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	res, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.NoError(t, err)

	err = f.uc.Delete(context.Background(), "user-7", personalTarget(ev), res.Event.ID, ev.StartTime)
	require.NoError(t, err)

	doc, err := f.store.Get(context.Background(), "activities/user-7/months/2030-03")
	require.NoError(t, err)
	assert.NotContains(t, doc, res.Event.ID)
	assert.Contains(t, f.notifier.cancelled, res.Event.ID)
}

func TestDeleteExternalSoftDeletes(t *testing.T) {
	f := newFixture()
	path := repository.Calendars.ShardPath("cal-1", "2030-03")
	require.NoError(t, f.store.SetMerge(context.Background(), path, repository.Document{
		"ext-ev": map[string]any{
			"title": "Synced", "calendarId": "cal-1",
			"startTime": "2030-03-10T08:00:00", "source": "ical",
		},
	}))

	target := Target{Collection: repository.Calendars, EntityID: "cal-1"}
	require.NoError(t, f.uc.Delete(context.Background(), "user-7", target, "ext-ev", "2030-03-10T08:00:00"))

	doc, err := f.store.Get(context.Background(), path)
	require.NoError(t, err)
	raw, ok := doc["ext-ev"].(map[string]any)
	require.True(t, ok, "external events are never physically removed")
	assert.Equal(t, true, raw["deleted"])
	assert.NotEmpty(t, raw["deletedAt"])
}

func TestDeleteMissingEventFails(t *testing.T) {
	f := newFixture()
	ev := dentistEvent()
	_, err := f.uc.Create(context.Background(), "user-7", personalTarget(ev), ev)
	require.NoError(t, err)

	err = f.uc.Delete(context.Background(), "user-7", personalTarget(ev), "ghost", ev.StartTime)
	require.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestTargetForRouting(t *testing.T) {
	personal := &domain.Event{CalendarID: "user-7"}
	assert.Equal(t, Target{Collection: repository.Activities, EntityID: "user-7"}, TargetFor("user-7", personal))

	group := &domain.Event{CalendarID: "group-42"}
	assert.Equal(t, Target{Collection: repository.Activities, EntityID: "group-42"}, TargetFor("user-7", group))

	external := &domain.Event{CalendarID: "cal-1", Source: domain.SourceGoogle}
	assert.Equal(t, Target{Collection: repository.Calendars, EntityID: "cal-1"}, TargetFor("user-7", external))
}
