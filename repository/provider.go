package repository

import (
	"context"

	"github.com/planhive/backend/domain"
)

// CalendarProvider writes through to an external calendar backend for
// events whose source is not internal. The provider call happens before the
// local shard write; when it fails the shard must not be written.
type CalendarProvider interface {
	// CreateEvent creates the event remotely and returns the provider's id
	// for it, stored as the event's ExternalID.
	CreateEvent(ctx context.Context, ev *domain.Event) (string, error)
	UpdateEvent(ctx context.Context, ev *domain.Event) error
	DeleteEvent(ctx context.Context, ev *domain.Event) error
}

// ProviderRegistry maps an event source to its write-through provider.
// Sources without an entry (notably ical feeds, which are import-only) get
// no write-through.
type ProviderRegistry map[domain.Source]CalendarProvider

// For returns the provider for a source, or nil when the source has none.
func (r ProviderRegistry) For(source domain.Source) CalendarProvider {
	if r == nil {
		return nil
	}
	return r[source]
}
