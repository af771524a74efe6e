package usecase

import (
	"context"
	"time"
)

// Notifier abstracts the push-notification collaborator so use cases stay
// transport-agnostic. Scheduling is keyed by a correlation id; cancel by
// that id is the only way to retract a pending notification.
type Notifier interface {
	// ScheduleAt queues a notification for one user at an absolute UTC
	// time.
	ScheduleAt(ctx context.Context, userID, title, body, correlationID string, at time.Time, data map[string]string) error

	// ScheduleBatchAt queues one notification for many users in a single
	// dispatch call.
	ScheduleBatchAt(ctx context.Context, userIDs []string, title, body, correlationID string, at time.Time, data map[string]string) error

	// CancelByCorrelationID removes every pending notification scheduled
	// under the id and returns how many were deleted.
	CancelByCorrelationID(ctx context.Context, correlationID string) (int, error)
}
