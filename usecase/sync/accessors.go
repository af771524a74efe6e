package sync

import (
	"sort"
	"time"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/internal/shard"
)

// ActivityRef is a flattened embedded activity together with its owning
// event's coordinates.
type ActivityRef struct {
	EventID    string          `json:"eventId"`
	EventTitle string          `json:"eventTitle"`
	EventStart string          `json:"eventStart"`
	CalendarID string          `json:"calendarId"`
	Activity   domain.Activity `json:"activity"`
}

// EventsForMonth unions the given shard key across all listed entities.
// Soft-deleted items are excluded. No sort order is guaranteed; callers
// sort explicitly (see SortByStart).
func (v *View) EventsForMonth(entities []string, shardKey string) []domain.Event {
	return v.collect(entities, []string{shardKey}, false, nil)
}

// EventsForDay returns events whose start timestamp falls within
// [startOfDay, endOfDay] inclusive. Only the start matters; an event
// spanning into the day does not belong to it.
func (v *View) EventsForDay(entities []string, day time.Time) []domain.Event {
	return v.eventsForDay(entities, day, false)
}

// EventsForDayShowDeleted is the show-deleted variant of EventsForDay; it
// includes soft-deleted externally-sourced events.
func (v *View) EventsForDayShowDeleted(entities []string, day time.Time) []domain.Event {
	return v.eventsForDay(entities, day, true)
}

func (v *View) eventsForDay(entities []string, day time.Time, showDeleted bool) []domain.Event {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)
	return v.collect(entities, []string{shard.Key(day)}, showDeleted, func(start time.Time) bool {
		return !start.Before(dayStart) && !start.After(dayEnd)
	})
}

// EventsForCalendar unions every loaded shard across the listed entities
// and keeps events owned by the given calendar.
func (v *View) EventsForCalendar(entities []string, calendarID string) []domain.Event {
	all := v.collect(entities, nil, false, nil)
	out := all[:0]
	for _, ev := range all {
		if ev.CalendarID == calendarID {
			out = append(out, ev)
		}
	}
	return out
}

// ActivitiesForEntity flattens embedded activities from every shard loaded
// so far for one entity. This is a full scan of the cache, not bounded to
// the navigation window.
func (v *View) ActivitiesForEntity(entity string) []ActivityRef {
	return flatten(v.collect([]string{entity}, nil, false, nil))
}

// ActivitiesForMonth flattens embedded activities from one month's union
// across the listed entities.
func (v *View) ActivitiesForMonth(entities []string, shardKey string) []ActivityRef {
	return flatten(v.collect(entities, []string{shardKey}, false, nil))
}

// ActivitiesForDay flattens embedded activities from events starting on the
// given day.
func (v *View) ActivitiesForDay(entities []string, day time.Time) []ActivityRef {
	return flatten(v.eventsForDay(entities, day, false))
}

// collect walks entity x shard cells. A nil shardKeys means every shard
// currently cached for the entity. startFilter, when set, gates items by
// parsed start time.
func (v *View) collect(entities []string, shardKeys []string, showDeleted bool, startFilter func(time.Time) bool) []domain.Event {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []domain.Event
	for _, entity := range entities {
		shards := v.cache[entity]
		keys := shardKeys
		if keys == nil {
			keys = make([]string, 0, len(shards))
			for key := range shards {
				keys = append(keys, key)
			}
		}
		for _, key := range keys {
			state, ok := shards[key]
			if !ok {
				continue
			}
			for _, ev := range state.Items {
				if ev.Deleted && !showDeleted {
					continue
				}
				if startFilter != nil {
					start, err := ev.Start()
					if err != nil || !startFilter(start) {
						continue
					}
				}
				out = append(out, ev)
			}
		}
	}
	return out
}

func flatten(events []domain.Event) []ActivityRef {
	var refs []ActivityRef
	for _, ev := range events {
		for _, act := range ev.Activities {
			refs = append(refs, ActivityRef{
				EventID:    ev.ID,
				EventTitle: ev.Title,
				EventStart: ev.StartTime,
				CalendarID: ev.CalendarID,
				Activity:   act,
			})
		}
	}
	return refs
}

// SortByStart orders events ascending by start time, in place. Display
// ordering is a caller responsibility, not a cache invariant.
func SortByStart(events []domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, errA := events[i].Start()
		b, errB := events[j].Start()
		if errA != nil || errB != nil {
			return errB != nil && errA == nil
		}
		return a.Before(b)
	})
}
