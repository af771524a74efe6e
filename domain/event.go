package domain

import (
	"strings"
	"time"
)

// Source identifies where an event originates. Internal events are fully
// owned by this system; external sources are mirrored read-mostly and
// soft-deleted instead of removed.
type Source string

const (
	SourceInternal Source = "internal"
	SourceGoogle   Source = "google"
	SourceICal     Source = "ical"
)

// GroupCalendarPrefix marks calendar ids that belong to a shared group.
const GroupCalendarPrefix = "group-"

// Event is a single calendar entry. StartTime/EndTime are ISO-8601 strings
// on the wire: date-only ("2006-01-02") for all-day events, otherwise a
// full timestamp.
type Event struct {
	ID              string     `json:"id,omitempty"`
	CalendarID      string     `json:"calendarId"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	StartTime       string     `json:"startTime"`
	EndTime         string     `json:"endTime,omitempty"`
	IsAllDay        bool       `json:"isAllDay"`
	Source          Source     `json:"source,omitempty"`
	ReminderMinutes *int       `json:"reminderMinutes,omitempty"`
	ReminderTime    string     `json:"reminderTime,omitempty"`
	Activities      []Activity `json:"activities,omitempty"`
	Deleted         bool       `json:"deleted,omitempty"`
	DeletedAt       string     `json:"deletedAt,omitempty"`
	ExternalID      string     `json:"externalId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt,omitzero"`
	UpdatedAt       time.Time  `json:"updatedAt,omitzero"`
}

// Start parses the event's start timestamp.
func (e *Event) Start() (time.Time, error) {
	return ParseTimestamp(e.StartTime)
}

// IsExternal reports whether the event is mirrored from an outside provider.
func (e *Event) IsExternal() bool {
	return e.Source == SourceGoogle || e.Source == SourceICal
}

// GroupID returns the group id for group-calendar events, or "" for
// personal and provider calendars.
func (e *Event) GroupID() string {
	if strings.HasPrefix(e.CalendarID, GroupCalendarPrefix) {
		return strings.TrimPrefix(e.CalendarID, GroupCalendarPrefix)
	}
	return ""
}

// Validate checks the fields every persisted event must carry.
func (e *Event) Validate() error {
	if e == nil || e.Title == "" || e.StartTime == "" || e.CalendarID == "" {
		return ErrInvalidPayload
	}
	if _, err := ParseTimestamp(e.StartTime); err != nil {
		return err
	}
	if e.EndTime != "" {
		if _, err := ParseTimestamp(e.EndTime); err != nil {
			return err
		}
	}
	if e.ReminderMinutes != nil && e.ReminderTime != "" {
		return WrapError(ErrCodeValidation, "reminderMinutes and reminderTime are mutually exclusive", nil)
	}
	for i := range e.Activities {
		if err := e.Activities[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// timestampLayouts are the accepted wire formats, tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 wire timestamp. Date-only values parse
// to midnight. Unparseable input fails with the InvalidDate code; callers
// must not fall through to a zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, WrapError(ErrCodeInvalidDate, "unparseable date "+s, nil)
}
