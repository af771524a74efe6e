package domain

import (
	"time"

	"github.com/google/uuid"
)

// Template is a standalone, user-owned reusable activity definition. It is
// decoupled from any event; applying it copies the definition into a fresh
// Activity with a new id and completion reset.
type Template struct {
	ID                     string          `json:"id,omitempty"`
	OwnerID                string          `json:"ownerId"`
	Name                   string          `json:"name"`
	ActivityType           ActivityType    `json:"activityType"`
	Items                  []ChecklistItem `json:"items,omitempty"`
	DefaultReminderMinutes *int            `json:"defaultReminderMinutes,omitempty"`
	NotifyAdmin            bool            `json:"notifyAdmin,omitempty"`
	CreatedAt              time.Time       `json:"createdAt,omitzero"`
	UpdatedAt              time.Time       `json:"updatedAt,omitzero"`
}

// Validate checks required template fields.
func (t *Template) Validate() error {
	if t == nil || t.Name == "" || t.OwnerID == "" {
		return ErrInvalidPayload
	}
	switch t.ActivityType {
	case ActivityTypeChecklist:
		return nil
	default:
		return WrapError(ErrCodeValidation, "unknown activity type "+string(t.ActivityType), nil)
	}
}

// Instantiate copies the template into a fresh activity: new ids, all
// completion state reset.
func (t *Template) Instantiate() Activity {
	items := make([]ChecklistItem, len(t.Items))
	for i, item := range t.Items {
		items[i] = ChecklistItem{
			ID:   uuid.NewString(),
			Text: item.Text,
			Done: false,
		}
	}
	return Activity{
		ID:              uuid.NewString(),
		ActivityType:    t.ActivityType,
		Name:            t.Name,
		ReminderMinutes: t.DefaultReminderMinutes,
		NotifyAdmin:     t.NotifyAdmin,
		Checklist:       &ChecklistPayload{Items: items},
	}
}
