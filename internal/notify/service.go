// Package notify implements the notification dispatch contract on top of
// the persistent outbox: scheduling enqueues, cancelling deletes by
// correlation id, and a cron-driven dispatcher delivers due notifications
// to the push transport.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/internal/infrastructure/outbox"
	"github.com/planhive/backend/usecase"
)

// Service implements usecase.Notifier over the outbox store.
type Service struct {
	store  *outbox.Store
	logger *zap.Logger
}

var _ usecase.Notifier = (*Service)(nil)

func NewService(store *outbox.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

func (s *Service) ScheduleAt(ctx context.Context, userID, title, body, correlationID string, at time.Time, data map[string]string) error {
	return s.enqueue(ctx, []string{userID}, title, body, correlationID, at, data)
}

func (s *Service) ScheduleBatchAt(ctx context.Context, userIDs []string, title, body, correlationID string, at time.Time, data map[string]string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.enqueue(ctx, userIDs, title, body, correlationID, at, data)
}

func (s *Service) CancelByCorrelationID(ctx context.Context, correlationID string) (int, error) {
	deleted, err := s.store.RemoveByCorrelationID(correlationID)
	if err != nil {
		return 0, domain.WrapError(domain.ErrCodeTransport, "notification cancel failed", err)
	}
	return deleted, nil
}

func (s *Service) enqueue(ctx context.Context, userIDs []string, title, body, correlationID string, at time.Time, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "notification schedule aborted", err)
	}
	n := outbox.Notification{
		CorrelationID: correlationID,
		UserIDs:       userIDs,
		Title:         title,
		Body:          body,
		FireAt:        at,
		Data:          data,
	}
	if err := s.store.Enqueue(n); err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "notification schedule failed", err)
	}
	s.logger.Debug("notification scheduled",
		zap.String("correlation_id", correlationID),
		zap.Int("targets", len(userIDs)),
		zap.Time("fire_at", at))
	return nil
}
