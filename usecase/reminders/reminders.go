// Package reminders derives absolute fire times for event and activity
// reminders and reconciles them against the notification collaborator.
// Reconcile is always cancel-by-identity first, then schedule, so no two
// live reminders ever share an identity.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
	"github.com/planhive/backend/usecase"
)

// Scheduler reconciles reminder state after every mutator success. Failures
// here never roll back the committed data write; callers surface them as
// soft warnings.
type Scheduler struct {
	notifier usecase.Notifier
	groups   repository.GroupDirectory
	logger   *zap.Logger
	now      func() time.Time
}

func New(notifier usecase.Notifier, groups repository.GroupDirectory, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		notifier: notifier,
		groups:   groups,
		logger:   logger,
		now:      time.Now,
	}
}

// Result summarizes one reconcile pass.
type Result struct {
	Scheduled int
	Skipped   int
	Cancelled int
}

// ReconcileEvent cancels every reminder identity owned by the event, then
// re-derives and re-schedules from its current state. A fire time at or
// before now is skipped silently; that is the contract, not an error.
func (s *Scheduler) ReconcileEvent(ctx context.Context, actorID string, ev *domain.Event) (Result, error) {
	res := s.CancelEvent(ctx, ev)

	var errs []error
	if spec, ok := domain.EventReminderSpec(ev); ok {
		outcome, err := s.schedule(ctx, actorID, ev, spec, domain.EventReminderID(ev.ID), ev.Title, eventBody(ev))
		res.add(outcome)
		if err != nil {
			errs = append(errs, err)
		}
	}

	for i := range ev.Activities {
		act := &ev.Activities[i]
		spec, ok := domain.ActivityReminderSpec(act)
		if !ok {
			continue
		}
		identity := domain.ActivityReminderID(ev.ID, act.ActivityType, act.ID)
		outcome, err := s.scheduleActivity(ctx, actorID, ev, act, spec, identity)
		res.add(outcome)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

// CancelEvent retracts the event's reminder and every embedded activity's
// reminder by identity. Cancel failures are logged and swallowed; a failed
// cancel must not block the subsequent schedule attempt.
func (s *Scheduler) CancelEvent(ctx context.Context, ev *domain.Event) Result {
	var res Result
	res.Cancelled += s.cancel(ctx, domain.EventReminderID(ev.ID))
	for i := range ev.Activities {
		act := &ev.Activities[i]
		res.Cancelled += s.cancel(ctx, domain.ActivityReminderID(ev.ID, act.ActivityType, act.ID))
	}
	return res
}

func (s *Scheduler) cancel(ctx context.Context, identity string) int {
	deleted, err := s.notifier.CancelByCorrelationID(ctx, identity)
	if err != nil {
		s.logger.Warn("reminder cancel failed", zap.String("identity", identity), zap.Error(err))
		return 0
	}
	return deleted
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeScheduled
	outcomeSkipped
)

func (s *Scheduler) schedule(ctx context.Context, actorID string, ev *domain.Event, spec domain.ReminderSpec, identity, title, body string) (outcome, error) {
	fireAt, ok, err := s.fireTime(ev, spec, identity)
	if err != nil || !ok {
		return outcomeSkipped, err
	}

	data := map[string]string{
		"eventId":    ev.ID,
		"calendarId": ev.CalendarID,
	}

	if groupID := ev.GroupID(); groupID != "" {
		members, err := s.groups.Members(ctx, groupID)
		if err != nil {
			return outcomeNone, domain.WrapError(domain.ErrCodeTransport, "group member lookup failed", err)
		}
		targets := exclude(members, actorID)
		if len(targets) == 0 {
			return outcomeSkipped, nil
		}
		if err := s.notifier.ScheduleBatchAt(ctx, targets, title, body, identity, fireAt, data); err != nil {
			return outcomeNone, err
		}
		return outcomeScheduled, nil
	}

	if err := s.notifier.ScheduleAt(ctx, actorID, title, body, identity, fireAt, data); err != nil {
		return outcomeNone, err
	}
	return outcomeScheduled, nil
}

func (s *Scheduler) scheduleActivity(ctx context.Context, actorID string, ev *domain.Event, act *domain.Activity, spec domain.ReminderSpec, identity string) (outcome, error) {
	fireAt, ok, err := s.fireTime(ev, spec, identity)
	if err != nil || !ok {
		return outcomeSkipped, err
	}

	data := map[string]string{
		"eventId":    ev.ID,
		"activityId": act.ID,
		"calendarId": ev.CalendarID,
	}
	title := act.Name
	body := fmt.Sprintf("%s · %s", ev.Title, act.Name)

	if act.NotifyAdmin {
		if groupID := ev.GroupID(); groupID != "" {
			admins, err := s.groups.Admins(ctx, groupID)
			if err != nil {
				return outcomeNone, domain.WrapError(domain.ErrCodeTransport, "group admin lookup failed", err)
			}
			if len(admins) > 0 {
				if err := s.notifier.ScheduleBatchAt(ctx, admins, title, body, identity, fireAt, data); err != nil {
					return outcomeNone, err
				}
				return outcomeScheduled, nil
			}
		}
	}

	if err := s.notifier.ScheduleAt(ctx, actorID, title, body, identity, fireAt, data); err != nil {
		return outcomeNone, err
	}
	return outcomeScheduled, nil
}

// fireTime derives the absolute fire time and applies the future-only rule.
// ok is false when the reminder should be silently skipped.
func (s *Scheduler) fireTime(ev *domain.Event, spec domain.ReminderSpec, identity string) (time.Time, bool, error) {
	start, err := ev.Start()
	if err != nil {
		return time.Time{}, false, err
	}
	fireAt, err := spec.FireTime(start)
	if err != nil {
		return time.Time{}, false, err
	}
	if !fireAt.After(s.now()) {
		s.logger.Debug("skipping past reminder",
			zap.String("identity", identity),
			zap.Time("fireAt", fireAt))
		return time.Time{}, false, nil
	}
	return fireAt, true, nil
}

func (r *Result) add(o outcome) {
	switch o {
	case outcomeScheduled:
		r.Scheduled++
	case outcomeSkipped:
		r.Skipped++
	}
}

func eventBody(ev *domain.Event) string {
	if ev.IsAllDay {
		return ev.Title
	}
	if start, err := ev.Start(); err == nil {
		return fmt.Sprintf("%s · %s", ev.Title, start.Format("15:04"))
	}
	return ev.Title
}

func exclude(ids []string, skip string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
