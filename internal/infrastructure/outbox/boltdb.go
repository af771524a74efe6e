// Package outbox persists scheduled notifications in BoltDB until their
// fire time, so pending reminders survive a process restart. Keys are
// ordered by fire time, which makes the due scan a prefix walk.
package outbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const keyTimeLayout = "20060102T150405.000000000Z"

// Store wraps BoltDB to persist scheduled notifications.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open initializes the BoltDB file and ensures the bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	bucket := []byte("outbox")
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, bucket: bucket}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enqueue stores a notification under a fire-time-ordered key.
func (s *Store) Enqueue(n Notification) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	n.normalize()
	n.bucketKey = []byte(buildKey(n))

	payload, err := json.Marshal(&n)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(n.bucketKey, payload)
	})
}

// Due returns up to limit notifications whose fire time has passed,
// earliest first, without removing them.
func (s *Store) Due(now time.Time, limit int) ([]Notification, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}
	cutoff := now.UTC().Format(keyTimeLayout)

	var due []Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil && len(due) < limit; k, v = c.Next() {
			if string(k[:len(cutoff)]) > cutoff {
				break
			}
			var n Notification
			if err := json.Unmarshal(v, &n); err != nil {
				continue
			}
			n.bucketKey = append([]byte(nil), k...)
			due = append(due, n)
		}
		return nil
	})
	return due, err
}

// Remove deletes one notification.
func (s *Store) Remove(n Notification) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if len(n.bucketKey) == 0 {
		n.bucketKey = []byte(buildKey(n))
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(n.bucketKey)
	})
}

// Requeue re-inserts a notification after a failed delivery attempt.
func (s *Store) Requeue(n Notification) error {
	n.bucketKey = nil
	return s.Enqueue(n)
}

// RemoveByCorrelationID deletes every pending notification scheduled under
// the correlation id and returns the count. This is the cancel path for
// reminder rescheduling.
func (s *Store) RemoveByCorrelationID(correlationID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		c := bucket.Cursor()
		var victims [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var n Notification
			if err := json.Unmarshal(v, &n); err != nil {
				continue
			}
			if n.CorrelationID == correlationID {
				victims = append(victims, append([]byte(nil), k...))
			}
		}
		for _, k := range victims {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Size returns the number of pending notifications.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	size := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		size = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return size, err
}

func buildKey(n Notification) string {
	return fmt.Sprintf("%s|%s", n.FireAt.UTC().Format(keyTimeLayout), n.ID)
}
