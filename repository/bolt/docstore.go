// Package bolt persists documents in a local BoltDB file. Subscriptions are
// served by an in-process hub, so live updates reach every subscriber in
// the same process; it is the single-node deployment backend.
package bolt

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
)

const documentsBucket = "documents"

type subscriber struct {
	onSnapshot func(repository.Snapshot)
	onError    func(error)
}

// Store wraps BoltDB as a path-addressable document store.
type Store struct {
	db     *bolt.DB
	bucket []byte

	mu     sync.Mutex
	subs   map[string]map[int]*subscriber
	nextID int
}

var _ repository.DocumentStore = (*Store)(nil)

// Open initializes the BoltDB file and ensures the documents bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(documentsBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:     db,
		bucket: []byte(documentsBucket),
		subs:   make(map[string]map[int]*subscriber),
	}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, path string) (repository.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "document read aborted", err)
	}
	var doc repository.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(path))
		if raw == nil {
			return domain.ErrShardNotFound
		}
		return json.Unmarshal(raw, &doc)
	})
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrCodeTransport, "document read failed", err)
	}
	return doc, nil
}

func (s *Store) SetMerge(ctx context.Context, path string, partial repository.Document) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "document write aborted", err)
	}

	var merged repository.Document
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		doc := make(repository.Document)
		if raw := bucket.Get([]byte(path)); raw != nil {
			if err := json.Unmarshal(raw, &doc); err != nil {
				return err
			}
		}
		for key, value := range partial {
			if value == nil {
				delete(doc, key)
				continue
			}
			doc[key] = value
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		merged = doc
		return bucket.Put([]byte(path), raw)
	})
	if err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "document write failed", err)
	}

	s.notify(path, repository.Snapshot{Data: merged, Exists: true})
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
	s.subs[path][id] = &subscriber{onSnapshot: onSnapshot, onError: onError}

	// Read and deliver the initial state while holding the hub lock. A merge
	// committing concurrently fans out through notify, which waits on the
	// same lock, so its newer snapshot always lands after this one.
	doc, err := s.Get(ctx, path)
	switch {
	case err == nil:
		onSnapshot(repository.Snapshot{Data: doc, Exists: true})
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		onSnapshot(repository.Snapshot{Exists: false})
	default:
		if onError != nil {
			onError(err)
		}
	}
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

// Ping verifies the database file is still usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucket) == nil {
			return bolt.ErrBucketNotFound
		}
		return nil
	})
}

func (s *Store) notify(path string, snapshot repository.Snapshot) {
	s.mu.Lock()
	targets := make([]*subscriber, 0, len(s.subs[path]))
	for _, sub := range s.subs[path] {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.onSnapshot(snapshot)
	}
}
