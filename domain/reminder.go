package domain

import (
	"fmt"
	"time"
)

// EventReminderID is the correlation id used to cancel and reschedule an
// event-level reminder. It must stay stable across updates.
func EventReminderID(eventID string) string {
	return eventID
}

// ActivityReminderID is the correlation id for an embedded activity's
// reminder, e.g. "ev123-checklist-act456".
func ActivityReminderID(eventID string, activityType ActivityType, activityID string) string {
	return fmt.Sprintf("%s-%s-%s", eventID, activityType, activityID)
}

// ReminderSpec is the resolved reminder request for one event or activity.
// Exactly one of Minutes and At is set; the scheduler trusts whichever the
// caller populated.
type ReminderSpec struct {
	Minutes *int
	At      string
}

// EventReminderSpec extracts the reminder specification from an event, or
// ok=false when the event carries none.
func EventReminderSpec(ev *Event) (ReminderSpec, bool) {
	if ev == nil {
		return ReminderSpec{}, false
	}
	if ev.ReminderTime != "" {
		return ReminderSpec{At: ev.ReminderTime}, true
	}
	if ev.ReminderMinutes != nil {
		return ReminderSpec{Minutes: ev.ReminderMinutes}, true
	}
	return ReminderSpec{}, false
}

// ActivityReminderSpec extracts the reminder specification from an
// embedded activity.
func ActivityReminderSpec(act *Activity) (ReminderSpec, bool) {
	if act == nil {
		return ReminderSpec{}, false
	}
	if act.ReminderTime != "" {
		return ReminderSpec{At: act.ReminderTime}, true
	}
	if act.ReminderMinutes != nil {
		return ReminderSpec{Minutes: act.ReminderMinutes}, true
	}
	return ReminderSpec{}, false
}

// FireTime derives the absolute delivery time: the fixed timestamp when
// present, otherwise eventStart minus the relative offset.
func (s ReminderSpec) FireTime(eventStart time.Time) (time.Time, error) {
	if s.At != "" {
		return ParseTimestamp(s.At)
	}
	if s.Minutes != nil {
		return eventStart.Add(-time.Duration(*s.Minutes) * time.Minute), nil
	}
	return time.Time{}, WrapError(ErrCodeValidation, "reminder spec has neither offset nor timestamp", nil)
}
