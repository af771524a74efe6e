// Package memory provides an in-process DocumentStore. It is the reference
// implementation of the store contract and backs tests and single-node
// development mode.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
)

type subscriber struct {
	onSnapshot func(repository.Snapshot)
	onError    func(error)
}

// Store keeps documents and live subscribers in memory. The initial
// snapshot for a new subscription is delivered before Subscribe returns,
// under the store lock, so a merge racing a fresh subscription cannot fan
// out first and then be shadowed by the stale initial state. Subsequent
// snapshots are pushed on every merge write to the path.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]repository.Document
	subs   map[string]map[int]*subscriber
	nextID int
}

var _ repository.DocumentStore = (*Store)(nil)

func New() *Store {
	return &Store{
		docs: make(map[string]repository.Document),
		subs: make(map[string]map[int]*subscriber),
	}
}

func (s *Store) Get(ctx context.Context, path string) (repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "document read aborted", err)
	}
	s.mu.RLock()
	doc, ok := s.docs[path]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrShardNotFound
	}
	return clone(doc), nil
}

func (s *Store) SetMerge(ctx context.Context, path string, partial repository.Document) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "document write aborted", err)
	}

	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		doc = make(repository.Document)
		s.docs[path] = doc
	}
	for key, value := range partial {
		if value == nil {
			delete(doc, key)
			continue
		}
		doc[key] = value
	}
	snapshot := repository.Snapshot{Data: clone(doc), Exists: true}
	targets := s.subscribersLocked(path)
	s.mu.Unlock()

	for _, sub := range targets {
		sub.onSnapshot(snapshot)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, path string, onSnapshot func(repository.Snapshot), onError func(error)) (repository.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "subscribe aborted", err)
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]*subscriber)
	}
	sub := &subscriber{onSnapshot: onSnapshot, onError: onError}
	s.subs[path][id] = sub

	doc, exists := s.docs[path]
	initial := repository.Snapshot{Exists: exists}
	if exists {
		initial.Data = clone(doc)
	}
	// Delivered under the lock: no merge can interleave between registration
	// and the initial snapshot. Callbacks must not call back into the store.
	onSnapshot(initial)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[path], id)
			s.mu.Unlock()
		})
	}, nil
}

// SubscriberCount reports open subscriptions on a path; used by tests to
// assert subscription lifecycle.
func (s *Store) SubscriberCount(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[path])
}

// Ping reports store health.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) subscribersLocked(path string) []*subscriber {
	targets := make([]*subscriber, 0, len(s.subs[path]))
	for _, sub := range s.subs[path] {
		targets = append(targets, sub)
	}
	return targets
}

// clone isolates callers from internal state via a JSON round trip, which
// also normalizes values to what a real wire store would return.
func clone(doc repository.Document) repository.Document {
	raw, err := json.Marshal(doc)
	if err != nil {
		return repository.Document{}
	}
	var out repository.Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return repository.Document{}
	}
	return out
}
