// Package viewhub keeps one live set of sync views per authenticated user
// across requests, so navigating between months expands an existing
// subscription set instead of rebuilding it. Personal and group entities
// live in the activities collection while provider-fed calendars live in
// the calendars collection, so every user is backed by one view per shard
// family and reads union the two.
package viewhub

import (
	"context"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/internal/shard"
	"github.com/planhive/backend/usecase/sync"
)

// Selection names the entities a request reads, split by shard family:
// the caller's own and group entities in the activities collection, and
// provider calendar ids in the calendars collection.
type Selection struct {
	Activities []string
	Calendars  []string
}

// Views pairs the two per-family views backing one user's reads.
type Views struct {
	Activities *sync.View
	Calendars  *sync.View
}

// Close releases both family views.
func (v Views) Close() {
	if v.Activities != nil {
		v.Activities.Close()
	}
	if v.Calendars != nil {
		v.Calendars.Close()
	}
}

// EventsForMonth unions the month shard across both families.
func (v Views) EventsForMonth(sel Selection, shardKey string) []domain.Event {
	events := v.Activities.EventsForMonth(sel.Activities, shardKey)
	return append(events, v.Calendars.EventsForMonth(sel.Calendars, shardKey)...)
}

// EventsForDay unions the day's events across both families. showDeleted
// includes soft-deleted provider events.
func (v Views) EventsForDay(sel Selection, day time.Time, showDeleted bool) []domain.Event {
	if showDeleted {
		events := v.Activities.EventsForDayShowDeleted(sel.Activities, day)
		return append(events, v.Calendars.EventsForDayShowDeleted(sel.Calendars, day)...)
	}
	events := v.Activities.EventsForDay(sel.Activities, day)
	return append(events, v.Calendars.EventsForDay(sel.Calendars, day)...)
}

// ActivitiesForMonth flattens embedded activities from the month union
// across both families.
func (v Views) ActivitiesForMonth(sel Selection, shardKey string) []sync.ActivityRef {
	refs := v.Activities.ActivitiesForMonth(sel.Activities, shardKey)
	return append(refs, v.Calendars.ActivitiesForMonth(sel.Calendars, shardKey)...)
}

// ActivitiesForDay flattens embedded activities from the day's events
// across both families.
func (v Views) ActivitiesForDay(sel Selection, day time.Time) []sync.ActivityRef {
	refs := v.Activities.ActivitiesForDay(sel.Activities, day)
	return append(refs, v.Calendars.ActivitiesForDay(sel.Calendars, day)...)
}

type entry struct {
	views  Views
	sel    Selection
	window map[string]bool
}

// Hub owns the per-user views created from the two family engines.
type Hub struct {
	activities *sync.Engine
	calendars  *sync.Engine
	windowSize int
	logger     *zap.Logger

	mu    stdsync.Mutex
	views map[string]*entry
}

func New(activities, calendars *sync.Engine, windowSize int, logger *zap.Logger) *Hub {
	if windowSize < 1 {
		windowSize = shard.DefaultWindowSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		activities: activities,
		calendars:  calendars,
		windowSize: windowSize,
		logger:     logger,
	}
}

// Ensure returns the user's views, subscribed to the navigation window
// around ref for the selected entities. Repeated calls with the same
// arguments are no-ops on the subscription set; new months and entities
// are added incrementally.
func (h *Hub) Ensure(ctx context.Context, userID string, sel Selection, ref time.Time) (Views, error) {
	window := shard.Window(ref, h.windowSize)

	h.mu.Lock()
	if h.views == nil {
		h.views = make(map[string]*entry)
	}
	e, ok := h.views[userID]
	h.mu.Unlock()

	if !ok {
		actView, err := h.activities.Open(ctx, sel.Activities, window)
		if err != nil {
			return Views{}, err
		}
		calView, err := h.calendars.Open(ctx, sel.Calendars, window)
		if err != nil {
			actView.Close()
			return Views{}, err
		}
		opened := Views{Activities: actView, Calendars: calView}

		h.mu.Lock()
		if existing, raced := h.views[userID]; raced {
			h.mu.Unlock()
			opened.Close()
			// Fall through to the merge path so the selection that lost the
			// race still lands in the surviving entry.
			e = existing
		} else {
			e = &entry{
				views: opened,
				sel: Selection{
					Activities: append([]string(nil), sel.Activities...),
					Calendars:  append([]string(nil), sel.Calendars...),
				},
				window: make(map[string]bool),
			}
			for _, key := range window {
				e.window[key] = true
			}
			h.views[userID] = e
			h.mu.Unlock()
			return e.views, nil
		}
	}

	h.mu.Lock()
	e.sel.Activities = mergeEntities(e.sel.Activities, sel.Activities)
	e.sel.Calendars = mergeEntities(e.sel.Calendars, sel.Calendars)
	for _, key := range window {
		e.window[key] = true
	}
	full := Selection{
		Activities: append([]string(nil), e.sel.Activities...),
		Calendars:  append([]string(nil), e.sel.Calendars...),
	}
	allWindow := make([]string, 0, len(e.window))
	for key := range e.window {
		allWindow = append(allWindow, key)
	}
	h.mu.Unlock()

	if err := e.views.Activities.Sync(ctx, full.Activities, allWindow); err != nil {
		return Views{}, err
	}
	if err := e.views.Calendars.Sync(ctx, full.Calendars, allWindow); err != nil {
		return Views{}, err
	}
	return e.views, nil
}

// WaitLoaded polls until every selected (entity, shard) cell in the window
// reports a loaded state in both families or the timeout elapses. Some
// backends deliver initial snapshots asynchronously; reads that need a
// settled view call this first.
func (h *Hub) WaitLoaded(ctx context.Context, views Views, sel Selection, window []string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		if allLoaded(views.Activities, sel.Activities, window) && allLoaded(views.Calendars, sel.Calendars, window) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Drop closes and forgets one user's views.
func (h *Hub) Drop(userID string) {
	h.mu.Lock()
	e, ok := h.views[userID]
	delete(h.views, userID)
	h.mu.Unlock()
	if ok {
		e.views.Close()
	}
}

// Close releases every view. Called on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	views := h.views
	h.views = nil
	h.mu.Unlock()
	for _, e := range views {
		e.views.Close()
	}
}

func allLoaded(view *sync.View, entities, window []string) bool {
	for _, entity := range entities {
		for _, key := range window {
			state, ok := view.Status(entity, key)
			if !ok || !state.Loaded {
				return false
			}
		}
	}
	return true
}

func mergeEntities(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	for _, e := range incoming {
		if !seen[e] {
			seen[e] = true
			existing = append(existing, e)
		}
	}
	return existing
}
