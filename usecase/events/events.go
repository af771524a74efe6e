// Package events implements the write path: every mutation is a
// read-modify-write on exactly one shard document per write. There is no
// optimistic concurrency check; the last writer wins on the whole shard
// map, and concurrent writers to the same shard can clobber each other's
// unrelated items unless callers serialize above this layer. That matches
// the persisted data contract and is accepted; UpdatedAt is refreshed on
// every write so a check-and-set layer can be added later without a data
// migration.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/internal/shard"
	"github.com/planhive/backend/repository"
	"github.com/planhive/backend/usecase/reminders"
)

// Target names the shard family and owning entity a mutation operates on.
type Target struct {
	Collection repository.Collection
	EntityID   string
}

// TargetFor resolves where an event lives: provider-sourced events in the
// calendars collection keyed by calendar id, group events in the activities
// collection keyed by the group calendar id, personal events keyed by their
// owner.
func TargetFor(ownerID string, ev *domain.Event) Target {
	switch {
	case ev.IsExternal():
		return Target{Collection: repository.Calendars, EntityID: ev.CalendarID}
	case ev.GroupID() != "":
		return Target{Collection: repository.Activities, EntityID: ev.CalendarID}
	default:
		return Target{Collection: repository.Activities, EntityID: ownerID}
	}
}

// UseCase is the event mutator service.
type UseCase struct {
	store     repository.DocumentStore
	providers repository.ProviderRegistry
	reminders *reminders.Scheduler
	logger    *zap.Logger
	now       func() time.Time
}

func New(store repository.DocumentStore, providers repository.ProviderRegistry, sched *reminders.Scheduler, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		store:     store,
		providers: providers,
		reminders: sched,
		logger:    logger,
		now:       time.Now,
	}
}

// SaveResult reports a committed mutation. ReminderWarning carries a
// non-fatal reminder scheduling failure: the data write has already
// succeeded and stands.
type SaveResult struct {
	Event           *domain.Event
	Reminder        reminders.Result
	ReminderWarning error
}

// Create inserts a new event into the shard determined by its start month.
// For provider-sourced events the remote create happens first; if it fails
// the shard is not written.
func (uc *UseCase) Create(ctx context.Context, actorID string, target Target, ev *domain.Event) (*SaveResult, error) {
	if ev == nil {
		return nil, domain.ErrInvalidPayload
	}
	if ev.Source == "" {
		ev.Source = domain.SourceInternal
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	ev.CreatedAt = uc.now().UTC()
	ev.UpdatedAt = ev.CreatedAt

	if provider := uc.providers.For(ev.Source); provider != nil {
		externalID, err := provider.CreateEvent(ctx, ev)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCodeTransport, "provider create failed", err)
		}
		ev.ExternalID = externalID
	}

	key, err := shard.KeyForTimestamp(ev.StartTime)
	if err != nil {
		return nil, err
	}
	path := target.Collection.ShardPath(target.EntityID, key)

	items, err := uc.readShard(ctx, path)
	if err != nil && !domain.IsDomainError(err, domain.ErrCodeNotFound) {
		return nil, err
	}
	if items == nil {
		items = make(repository.Document)
	}
	item, err := encodeItem(ev)
	if err != nil {
		return nil, err
	}
	items[ev.ID] = item
	if err := uc.store.SetMerge(ctx, path, items); err != nil {
		return nil, err
	}

	return uc.finish(ctx, actorID, ev), nil
}

// Update rewrites an existing event. prevStart is the start timestamp the
// event was last saved with; when the month changes, the item moves shards
// (removed from the old, written to the new) so it is never present in two
// shards.
func (uc *UseCase) Update(ctx context.Context, actorID string, target Target, prevStart string, ev *domain.Event) (*SaveResult, error) {
	if ev == nil || ev.ID == "" {
		return nil, domain.ErrInvalidPayload
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	oldKey, err := shard.KeyForTimestamp(prevStart)
	if err != nil {
		return nil, err
	}
	newKey, err := shard.KeyForTimestamp(ev.StartTime)
	if err != nil {
		return nil, err
	}

	oldPath := target.Collection.ShardPath(target.EntityID, oldKey)
	items, err := uc.readShard(ctx, oldPath)
	if err != nil {
		return nil, err
	}
	existing, ok := items[ev.ID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}

	prev, decodeErr := decodeItem(existing)
	if decodeErr == nil {
		ev.CreatedAt = prev.CreatedAt
		if ev.ExternalID == "" {
			ev.ExternalID = prev.ExternalID
		}
	}
	ev.UpdatedAt = uc.now().UTC()

	if provider := uc.providers.For(ev.Source); provider != nil {
		if err := provider.UpdateEvent(ctx, ev); err != nil {
			return nil, domain.WrapError(domain.ErrCodeTransport, "provider update failed", err)
		}
	}

	item, err := encodeItem(ev)
	if err != nil {
		return nil, err
	}

	if oldKey == newKey {
		items[ev.ID] = item
		if err := uc.store.SetMerge(ctx, oldPath, items); err != nil {
			return nil, err
		}
		return uc.finish(ctx, actorID, ev), nil
	}

	// Month move: write the new shard first, then drop the item from the
	// old one. A failure between the two leaves a duplicate rather than a
	// lost event.
	newPath := target.Collection.ShardPath(target.EntityID, newKey)
	newItems, err := uc.readShard(ctx, newPath)
	if err != nil && !domain.IsDomainError(err, domain.ErrCodeNotFound) {
		return nil, err
	}
	if newItems == nil {
		newItems = make(repository.Document)
	}
	newItems[ev.ID] = item
	if err := uc.store.SetMerge(ctx, newPath, newItems); err != nil {
		return nil, err
	}
	items[ev.ID] = nil
	if err := uc.store.SetMerge(ctx, oldPath, items); err != nil {
		return nil, err
	}
	return uc.finish(ctx, actorID, ev), nil
}

// UpdateActivities locates the event inside the shard keyed by startTime's
// month and fully replaces its embedded activities array.
func (uc *UseCase) UpdateActivities(ctx context.Context, actorID string, target Target, eventID, startTime string, acts []domain.Activity) (*SaveResult, error) {
	for i := range acts {
		if err := acts[i].Validate(); err != nil {
			return nil, err
		}
	}

	key, err := shard.KeyForTimestamp(startTime)
	if err != nil {
		return nil, err
	}
	path := target.Collection.ShardPath(target.EntityID, key)

	items, err := uc.readShard(ctx, path)
	if err != nil {
		return nil, err
	}
	existing, ok := items[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	ev, err := decodeItem(existing)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "corrupt shard item "+eventID, err)
	}
	ev.ID = eventID
	ev.Activities = acts
	ev.UpdatedAt = uc.now().UTC()

	item, err := encodeItem(&ev)
	if err != nil {
		return nil, err
	}
	items[eventID] = item
	if err := uc.store.SetMerge(ctx, path, items); err != nil {
		return nil, err
	}
	return uc.finish(ctx, actorID, &ev), nil
}

// Delete removes an internal event from its shard map; externally-sourced
// events are soft-deleted (deleted=true, deletedAt) and never physically
// removed. Pending reminders are cancelled either way.
func (uc *UseCase) Delete(ctx context.Context, actorID string, target Target, eventID, startTime string) error {
	key, err := shard.KeyForTimestamp(startTime)
	if err != nil {
		return err
	}
	path := target.Collection.ShardPath(target.EntityID, key)

	items, err := uc.readShard(ctx, path)
	if err != nil {
		return err
	}
	existing, ok := items[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	ev, err := decodeItem(existing)
	if err != nil {
		return domain.WrapError(domain.ErrCodeInternal, "corrupt shard item "+eventID, err)
	}
	ev.ID = eventID

	if provider := uc.providers.For(ev.Source); provider != nil {
		if err := provider.DeleteEvent(ctx, &ev); err != nil {
			return domain.WrapError(domain.ErrCodeTransport, "provider delete failed", err)
		}
	}

	if ev.IsExternal() {
		ev.Deleted = true
		ev.DeletedAt = uc.now().UTC().Format(time.RFC3339)
		ev.UpdatedAt = uc.now().UTC()
		item, err := encodeItem(&ev)
		if err != nil {
			return err
		}
		items[eventID] = item
	} else {
		items[eventID] = nil
	}
	if err := uc.store.SetMerge(ctx, path, items); err != nil {
		return err
	}

	uc.reminders.CancelEvent(ctx, &ev)
	return nil
}

// finish runs reminder reconciliation after a committed write. Reminder
// failures degrade to a warning on the result; the mutation stands.
func (uc *UseCase) finish(ctx context.Context, actorID string, ev *domain.Event) *SaveResult {
	res := &SaveResult{Event: ev}
	outcome, err := uc.reminders.ReconcileEvent(ctx, actorID, ev)
	res.Reminder = outcome
	if err != nil {
		uc.logger.Warn("reminder reconciliation failed after save",
			zap.String("event_id", ev.ID),
			zap.Error(err))
		res.ReminderWarning = err
	}
	return res
}

// readShard fetches one shard document. A transport failure aborts the
// whole mutation; only NOT_FOUND is special-cased by callers.
func (uc *UseCase) readShard(ctx context.Context, path string) (repository.Document, error) {
	doc, err := uc.store.Get(ctx, path)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, domain.ErrShardNotFound
		}
		return nil, domain.WrapError(domain.ErrCodeTransport, "shard read failed", err)
	}
	return doc, nil
}
