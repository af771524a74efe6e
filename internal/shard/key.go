// Package shard maps calendar dates onto coarse month partitions. A shard
// key is the "YYYY-MM" month an item's start time falls in; an item's shard
// is fully determined by that month at write time.
package shard

import (
	"time"

	"github.com/planhive/backend/domain"
)

// KeyLayout is the partition key format.
const KeyLayout = "2006-01"

// DefaultWindowSize is the navigation window: previous, current and next
// month around the reference date.
const DefaultWindowSize = 3

// Key returns the partition key for a point in time. The time is taken
// literally; no zone conversion happens here, so a date-only value
// partitions by its calendar date and a timestamp by the month of its ISO
// representation.
func Key(t time.Time) string {
	return t.Format(KeyLayout)
}

// KeyForTimestamp parses a wire timestamp and returns its partition key.
// Malformed input fails fast with the InvalidDate code.
func KeyForTimestamp(s string) (string, error) {
	t, err := domain.ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	return Key(t), nil
}

// Window returns size ordered partition keys centered on the reference
// date's month. Size is forced odd and at least one so the reference month
// is always included.
func Window(ref time.Time, size int) []string {
	if size < 1 {
		size = DefaultWindowSize
	}
	if size%2 == 0 {
		size++
	}
	first := monthStart(ref).AddDate(0, -(size / 2), 0)
	keys := make([]string, 0, size)
	for i := 0; i < size; i++ {
		keys = append(keys, Key(first.AddDate(0, i, 0)))
	}
	return keys
}

// Range returns every partition key from the month containing from through
// the month containing to, inclusive. Returns nil when to precedes from.
func Range(from, to time.Time) []string {
	start := monthStart(from)
	end := monthStart(to)
	if end.Before(start) {
		return nil
	}
	var keys []string
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 1, 0) {
		keys = append(keys, Key(cur))
	}
	return keys
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
