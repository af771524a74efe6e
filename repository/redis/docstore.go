// Package redis backs the document store with Redis: one hash per document
// keyed by item key, and a pub/sub channel per path carrying change
// notifications so subscribers re-read on every write.
package redis

import (
	"context"
	"encoding/json"
	"sync"

	redislib "github.com/redis/go-redis/v9"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
)

const (
	docPrefix     = "doc:"
	changeChannel = "docchange:"
)

// Store is a Redis-backed DocumentStore.
type Store struct {
	client *redislib.Client
}

var _ repository.DocumentStore = (*Store)(nil)

// NewStore wraps an existing Redis client.
func NewStore(client *redislib.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, path string) (repository.Document, error) {
	fields, err := s.client.HGetAll(ctx, docPrefix+path).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "document read failed", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrShardNotFound
	}
	doc := make(repository.Document, len(fields))
	for key, raw := range fields {
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, domain.WrapError(domain.ErrCodeTransport, "corrupt document field "+key, err)
		}
		doc[key] = value
	}
	return doc, nil
}

func (s *Store) SetMerge(ctx context.Context, path string, partial repository.Document) error {
	key := docPrefix + path

	var sets []any
	var dels []string
	for field, value := range partial {
		if value == nil {
			dels = append(dels, field)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return domain.WrapError(domain.ErrCodeValidation, "unencodable document field "+field, err)
		}
		sets = append(sets, field, string(raw))
	}

	pipe := s.client.TxPipeline()
	if len(sets) > 0 {
		pipe.HSet(ctx, key, sets...)
	}
	if len(dels) > 0 {
		pipe.HDel(ctx, key, dels...)
	}
	pipe.Publish(ctx, changeChannel+path, "1")
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "document write failed", err)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, path string, onSnapshot func(repository.Snapshot), onError func(error)) (repository.Unsubscribe, error) {
	pubsub := s.client.Subscribe(ctx, changeChannel+path)
	// Force the subscription onto the wire before the initial read so no
	// change between read and subscribe is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, domain.WrapError(domain.ErrCodeTransport, "subscribe failed", err)
	}

	done := make(chan struct{})
	go func() {
		s.deliver(ctx, path, onSnapshot, onError)
		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				s.deliver(ctx, path, onSnapshot, onError)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}, nil
}

// Ping reports connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) deliver(ctx context.Context, path string, onSnapshot func(repository.Snapshot), onError func(error)) {
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
}
