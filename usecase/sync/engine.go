// Package sync keeps a locally cached, incrementally expanding view of
// month-sharded documents live-synchronized across entities. An Engine
// opens Views; each View owns its subscriptions and aggregate cache and is
// independent of every other View, so multiple screens (or tests) can run
// concurrently.
package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"

	"go.uber.org/zap"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
)

// Engine creates Views over one sharded collection.
type Engine struct {
	store      repository.DocumentStore
	collection repository.Collection
	logger     *zap.Logger
}

func NewEngine(store repository.DocumentStore, collection repository.Collection, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		collection: collection,
		logger:     logger,
	}
}

// Open creates a View subscribed to every (entity, shard) pair in the
// window. A zero-entity open is valid and yields an empty view.
func (e *Engine) Open(ctx context.Context, entities []string, window []string) (*View, error) {
	v := &View{
		engine: e,
		subs:   make(map[subKey]repository.Unsubscribe),
		cache:  make(map[string]map[string]*ShardStatus),
	}
	if err := v.Sync(ctx, entities, window); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

type subKey struct {
	entity string
	shard  string
}

// ShardStatus is one shard's cached state. Loaded distinguishes "no events
// this month" from "still loading"; Err records an isolated subscription
// failure for this shard only.
type ShardStatus struct {
	Items  map[string]domain.Event
	Loaded bool
	Err    error
}

// View is a live, read-only aggregate over the subscribed shards. Writes to
// the cache come exclusively from inbound snapshots; mutators write to the
// store directly and the change flows back through the subscription.
type View struct {
	engine *Engine

	mu     stdsync.RWMutex
	subs   map[subKey]repository.Unsubscribe
	closed bool
	// cache is entity -> shard key -> state.
	cache map[string]map[string]*ShardStatus
}

// Sync expands the subscription set to cover entities x window. Already
// subscribed pairs are left untouched, shards outside the window stay
// subscribed while their entity remains relevant, and entities no longer
// listed are reconciled away. Sync does not block on snapshot arrival.
func (v *View) Sync(ctx context.Context, entities []string, window []string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return domain.NewError(domain.ErrCodeInternal, "view is closed")
	}

	keep := make(map[string]bool, len(entities))
	for _, entity := range entities {
		keep[entity] = true
	}

	// Reconcile removed entities first so their slots cannot be reused by
	// the additions below.
	var stale []repository.Unsubscribe
	for key, unsub := range v.subs {
		if !keep[key.entity] {
			stale = append(stale, unsub)
			delete(v.subs, key)
		}
	}
	for entity := range v.cache {
		if !keep[entity] {
			delete(v.cache, entity)
		}
	}

	var added []subKey
	for _, entity := range entities {
		for _, shardKey := range window {
			key := subKey{entity: entity, shard: shardKey}
			if _, ok := v.subs[key]; ok {
				continue
			}
			// Reserve the slot before releasing the lock so a concurrent
			// Sync cannot double-subscribe the same pair.
			v.subs[key] = func() {}
			added = append(added, key)
		}
	}
	v.mu.Unlock()

	for _, unsub := range stale {
		unsub()
	}

	for _, key := range added {
		key := key
		path := v.engine.collection.ShardPath(key.entity, key.shard)
		unsub, err := v.engine.store.Subscribe(ctx, path,
			func(snap repository.Snapshot) { v.applySnapshot(key, snap) },
			func(err error) { v.applyError(key, err) },
		)
		if err != nil {
			// Subscription setup failure is isolated to this shard, same as
			// a transport failure after setup.
			v.applyError(key, err)
			v.mu.Lock()
			delete(v.subs, key)
			v.mu.Unlock()
			continue
		}
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			unsub()
			return nil
		}
		v.subs[key] = unsub
		v.mu.Unlock()
	}
	return nil
}

// Close releases every open subscription exactly once. Safe to call
// multiple times.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	subs := make([]repository.Unsubscribe, 0, len(v.subs))
	for _, unsub := range v.subs {
		subs = append(subs, unsub)
	}
	v.subs = make(map[subKey]repository.Unsubscribe)
	v.cache = make(map[string]map[string]*ShardStatus)
	v.mu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
}

// Status returns a copy of one shard's state. ok is false while no
// snapshot or error has arrived yet; callers must treat that as "still
// loading", not as an empty month.
func (v *View) Status(entity, shardKey string) (ShardStatus, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	state, ok := v.cache[entity][shardKey]
	if !ok {
		return ShardStatus{}, false
	}
	copied := ShardStatus{
		Items:  make(map[string]domain.Event, len(state.Items)),
		Loaded: state.Loaded,
		Err:    state.Err,
	}
	for key, ev := range state.Items {
		copied.Items[key] = ev
	}
	return copied, true
}

// applySnapshot replaces the shard's item map with the inbound document.
// Snapshots for different shards may arrive in any order; state is keyed
// per (entity, shard) so arrival order cannot corrupt unrelated shards.
func (v *View) applySnapshot(key subKey, snap repository.Snapshot) {
	items := make(map[string]domain.Event, len(snap.Data))
	if snap.Exists {
		for itemKey, raw := range snap.Data {
			ev, err := decodeEvent(raw)
			if err != nil {
				v.engine.logger.Warn("skipping undecodable shard item",
					zap.String("entity", key.entity),
					zap.String("shard", key.shard),
					zap.String("item", itemKey),
					zap.Error(err))
				continue
			}
			// Key-to-id promotion: the map key is the authoritative id.
			ev.ID = itemKey
			items[itemKey] = ev
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.wantsLocked(key) {
		return
	}
	if v.cache[key.entity] == nil {
		v.cache[key.entity] = make(map[string]*ShardStatus)
	}
	v.cache[key.entity][key.shard] = &ShardStatus{Items: items, Loaded: true}
}

// wantsLocked reports whether the pair still has a live (or reserved)
// subscription. An in-flight snapshot racing a reconcile must not recreate
// an evicted entity's cache cell.
func (v *View) wantsLocked(key subKey) bool {
	if v.closed {
		return false
	}
	_, ok := v.subs[key]
	return ok
}

// applyError records a transport failure on this shard as empty-but-loaded
// with the error attached. Other shards are unaffected.
func (v *View) applyError(key subKey, err error) {
	v.engine.logger.Warn("shard subscription failed",
		zap.String("entity", key.entity),
		zap.String("shard", key.shard),
		zap.Error(err))

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.wantsLocked(key) {
		return
	}
	if v.cache[key.entity] == nil {
		v.cache[key.entity] = make(map[string]*ShardStatus)
	}
	v.cache[key.entity][key.shard] = &ShardStatus{
		Items:  make(map[string]domain.Event),
		Loaded: true,
		Err:    domain.WrapError(domain.ErrCodeTransport, "shard subscription failed", err),
	}
}

func decodeEvent(raw any) (domain.Event, error) {
	var ev domain.Event
	payload, err := json.Marshal(raw)
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, err
	}
	return ev, nil
}
