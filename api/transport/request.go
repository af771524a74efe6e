package transport

import "github.com/planhive/backend/domain"

// EventRequest is the write payload for event create and update calls.
// Activities reuse the persisted wire shape directly.
type EventRequest struct {
	ID              string            `json:"id"`
	CalendarID      string            `json:"calendarId"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	StartTime       string            `json:"startTime"`
	EndTime         string            `json:"endTime"`
	IsAllDay        bool              `json:"isAllDay"`
	Source          string            `json:"source"`
	ReminderMinutes *int              `json:"reminderMinutes"`
	ReminderTime    string            `json:"reminderTime"`
	Activities      []domain.Activity `json:"activities"`

	// PrevStartTime is the start the event was last saved with; updates
	// need it to locate the current shard.
	PrevStartTime string `json:"prevStartTime"`
}

// ToDomain converts the request into a domain event.
func (r EventRequest) ToDomain() *domain.Event {
	return &domain.Event{
		ID:              r.ID,
		CalendarID:      r.CalendarID,
		Title:           r.Title,
		Description:     r.Description,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		IsAllDay:        r.IsAllDay,
		Source:          domain.Source(r.Source),
		ReminderMinutes: r.ReminderMinutes,
		ReminderTime:    r.ReminderTime,
		Activities:      r.Activities,
	}
}

// ActivitiesRequest replaces an event's embedded activities wholesale.
type ActivitiesRequest struct {
	StartTime  string            `json:"startTime"`
	Activities []domain.Activity `json:"activities"`
}

// TemplateRequest is the write payload for activity templates.
type TemplateRequest struct {
	ID                     string                 `json:"id"`
	Name                   string                 `json:"name"`
	ActivityType           string                 `json:"activityType"`
	Items                  []domain.ChecklistItem `json:"items"`
	DefaultReminderMinutes *int                   `json:"defaultReminderMinutes"`
	NotifyAdmin            bool                   `json:"notifyAdmin"`
}

// ToDomain converts the request into a domain template.
func (r TemplateRequest) ToDomain() *domain.Template {
	return &domain.Template{
		ID:                     r.ID,
		Name:                   r.Name,
		ActivityType:           domain.ActivityType(r.ActivityType),
		Items:                  r.Items,
		DefaultReminderMinutes: r.DefaultReminderMinutes,
		NotifyAdmin:            r.NotifyAdmin,
	}
}
