package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one scheduled push waiting for its fire time. A batch
// dispatch is a single record carrying every target user id.
type Notification struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id"`
	UserIDs       []string          `json:"user_ids"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	FireAt        time.Time         `json:"fire_at"`
	Data          map[string]string `json:"data,omitempty"`
	Attempts      int               `json:"attempts"`
	EnqueuedAt    time.Time         `json:"enqueued_at"`

	bucketKey []byte
}

func (n *Notification) normalize() {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.EnqueuedAt.IsZero() {
		n.EnqueuedAt = time.Now().UTC()
	}
	n.FireAt = n.FireAt.UTC()
}
