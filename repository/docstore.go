package repository

import (
	"context"
	"fmt"
)

// Document is a JSON document as stored remotely: a map from item key to
// item payload. The store is the sole authority for a document's contents;
// snapshots replace, never merge, the local view.
type Document map[string]any

// Snapshot is one inbound document state. Exists is false when the remote
// document does not exist, which callers must record as "empty and loaded",
// not "unknown".
type Snapshot struct {
	Data   Document
	Exists bool
}

// Unsubscribe releases a live subscription. Implementations must tolerate
// being called exactly once per Subscribe.
type Unsubscribe func()

// DocumentStore is the externally provided path-addressable store:
// whole-document reads, merge writes and live subscriptions that push the
// whole document on every change.
type DocumentStore interface {
	// Get returns the document at path, or a NOT_FOUND domain error when it
	// does not exist.
	Get(ctx context.Context, path string) (Document, error)

	// SetMerge merges partial into the document at path, creating it if
	// needed. Top-level keys replace existing keys wholesale; a nil
	// top-level value is a delete marker and removes the key. Nested item
	// payloads must be scrubbed of nils before calling; the store rejects
	// null-like placeholders below the top level.
	SetMerge(ctx context.Context, path string, partial Document) error

	// Subscribe opens a live subscription on path. The current state is
	// delivered as the first snapshot; every subsequent change pushes the
	// whole document again. Errors go to onError and are scoped to this
	// subscription only.
	Subscribe(ctx context.Context, path string, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error)
}

// Collection describes one sharded document family. Shards live at
// {root}/{entityID}/{partition}/{yearMonth}.
type Collection struct {
	Root      string
	Partition string
}

var (
	// Calendars holds provider-calendar events keyed by calendar id.
	Calendars = Collection{Root: "calendars", Partition: "events"}
	// Activities holds user- and group-owned events keyed by entity id.
	Activities = Collection{Root: "activities", Partition: "months"}
)

// ShardPath builds the document path for one entity's month shard.
func (c Collection) ShardPath(entityID, yearMonth string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.Root, entityID, c.Partition, yearMonth)
}

// TemplatesPath is the single per-user document holding reusable activity
// templates, keyed by template id.
func TemplatesPath(userID string) string {
	return fmt.Sprintf("templates/%s/defs/default", userID)
}
