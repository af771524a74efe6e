package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
	"github.com/planhive/backend/repository/memory"
)

func openSeededView(t *testing.T, shards map[string]map[string]repository.Document, entities []string, window []string) *View {
	t.Helper()
	store := memory.New()
	for entity, months := range shards {
		for month, items := range months {
			seedShard(t, store, entity, month, items)
		}
	}
	engine := NewEngine(store, repository.Activities, nil)
	view, err := engine.Open(context.Background(), entities, window)
	require.NoError(t, err)
	t.Cleanup(view.Close)
	for _, entity := range entities {
		for _, month := range window {
			waitLoaded(t, view, entity, month)
		}
	}
	return view
}

func item(title, start string, extra map[string]any) map[string]any {
	out := map[string]any{"title": title, "calendarId": "user-7", "startTime": start}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func TestEventsForDayBoundariesAreInclusive(t *testing.T) {
	view := openSeededView(t, map[string]map[string]repository.Document{
		"user-7": {"2025-03": repository.Document{
			"midnight":    item("Midnight", "2025-03-15T00:00:00", nil),
			"last-second": item("LastSecond", "2025-03-15T23:59:59", nil),
			"day-before":  item("DayBefore", "2025-03-14T23:59:59", nil),
			"day-after":   item("DayAfter", "2025-03-16T00:00:00", nil),
		}},
	}, []string{"user-7"}, []string{"2025-03"})

	day := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	events := view.EventsForDay([]string{"user-7"}, day)
	SortByStart(events)

	require.Len(t, events, 2)
	assert.Equal(t, "Midnight", events[0].Title)
	assert.Equal(t, "LastSecond", events[1].Title)
}

func TestEventsForDayUsesStartOnly(t *testing.T) {
	// An event spanning into the day but starting earlier does not belong.
	view := openSeededView(t, map[string]map[string]repository.Document{
		"user-7": {"2025-03": repository.Document{
			"overnight": item("Overnight", "2025-03-14T22:00:00",
				map[string]any{"endTime": "2025-03-15T02:00:00"}),
		}},
	}, []string{"user-7"}, []string{"2025-03"})

	day := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, view.EventsForDay([]string{"user-7"}, day))
}

func TestEventsForMonthUnionsEntitiesAndHidesDeleted(t *testing.T) {
	view := openSeededView(t, map[string]map[string]repository.Document{
		"user-7": {"2025-03": repository.Document{
			"mine":    item("Mine", "2025-03-10T08:00:00", nil),
			"removed": item("Removed", "2025-03-11T08:00:00", map[string]any{"deleted": true, "source": "ical"}),
		}},
		"group-42": {"2025-03": repository.Document{
			"shared": item("Shared", "2025-03-12T08:00:00", nil),
		}},
	}, []string{"user-7", "group-42"}, []string{"2025-03"})

	events := view.EventsForMonth([]string{"user-7", "group-42"}, "2025-03")
	require.Len(t, events, 2)
	titles := []string{events[0].Title, events[1].Title}
	assert.ElementsMatch(t, []string{"Mine", "Shared"}, titles)
}

func TestEventsForDayShowDeletedIncludesSoftDeleted(t *testing.T) {
	view := openSeededView(t, map[string]map[string]repository.Document{
		"user-7": {"2025-03": repository.Document{
			"removed": item("Removed", "2025-03-11T08:00:00", map[string]any{"deleted": true, "source": "ical"}),
		}},
	}, []string{"user-7"}, []string{"2025-03"})

	day := time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, view.EventsForDay([]string{"user-7"}, day))

	shown := view.EventsForDayShowDeleted([]string{"user-7"}, day)
	require.Len(t, shown, 1)
	assert.True(t, shown[0].Deleted)
}

func TestActivitiesForEntityScansEveryCachedShard(t *testing.T) {
	checklist := map[string]any{
		"activityType": "checklist",
		"checklist":    map[string]any{"items": []any{map[string]any{"id": "i1", "text": "Pack", "done": false}}},
	}
	view := openSeededView(t, map[string]map[string]repository.Document{
		"user-7": {
			"2025-03": repository.Document{
				"ev1": item("March", "2025-03-10T08:00:00", map[string]any{
					"activities": []any{mergeMaps(checklist, map[string]any{"id": "a1", "name": "Pack bags"})},
				}),
			},
			"2025-04": repository.Document{
				"ev2": item("April", "2025-04-10T08:00:00", map[string]any{
					"activities": []any{mergeMaps(checklist, map[string]any{"id": "a2", "name": "Buy tickets"})},
				}),
			},
		},
	}, []string{"user-7"}, []string{"2025-03", "2025-04"})

	refs := view.ActivitiesForEntity("user-7")
	require.Len(t, refs, 2)
	for _, ref := range refs {
		assert.NotEmpty(t, ref.EventID)
		assert.NotEmpty(t, ref.EventStart)
		assert.Equal(t, domain.ActivityTypeChecklist, ref.Activity.ActivityType)
	}
}

func TestActivitiesForMonthFlattensWithEventCoordinates(t *testing.T) {
	view := openSeededView(t, map[string]map[string]repository.Document{
		"user-7": {"2025-03": repository.Document{
			"ev1": item("Trip", "2025-03-20T08:00:00", map[string]any{
				"activities": []any{map[string]any{
					"id": "a1", "name": "Pack", "activityType": "checklist",
					"checklist": map[string]any{"items": []any{}},
				}},
			}),
		}},
	}, []string{"user-7"}, []string{"2025-03"})

	refs := view.ActivitiesForMonth([]string{"user-7"}, "2025-03")
	require.Len(t, refs, 1)
	assert.Equal(t, "ev1", refs[0].EventID)
	assert.Equal(t, "Trip", refs[0].EventTitle)
	assert.Equal(t, "Pack", refs[0].Activity.Name)
}

func TestSortByStartOrdersAscending(t *testing.T) {
	events := []domain.Event{
		{Title: "late", StartTime: "2025-03-20T10:00:00"},
		{Title: "early", StartTime: "2025-03-01T10:00:00"},
		{Title: "mid", StartTime: "2025-03-10"},
	}
	SortByStart(events)
	assert.Equal(t, []string{"early", "mid", "late"}, []string{events[0].Title, events[1].Title, events[2].Title})
}

func mergeMaps(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
