package domain

// ActivityType tags the payload embedded in an Activity. Consumers switch
// on it exhaustively; adding a kind means adding a payload struct and a
// case in Validate.
type ActivityType string

const (
	ActivityTypeChecklist ActivityType = "checklist"
)

// Activity is always embedded inside an Event's Activities slice; it never
// has its own shard. Exactly one of ReminderMinutes and ReminderTime may be
// set, chosen by whether the parent event is all-day.
type Activity struct {
	ID              string       `json:"id"`
	ActivityType    ActivityType `json:"activityType"`
	Name            string       `json:"name"`
	ReminderMinutes *int         `json:"reminderMinutes,omitempty"`
	ReminderTime    string       `json:"reminderTime,omitempty"`
	NotifyAdmin     bool         `json:"notifyAdmin,omitempty"`

	// Payload, one field per ActivityType.
	Checklist *ChecklistPayload `json:"checklist,omitempty"`
}

// ChecklistPayload holds the checklist items for ActivityTypeChecklist.
type ChecklistPayload struct {
	Items []ChecklistItem `json:"items"`
}

// ChecklistItem is a single checkable entry.
type ChecklistItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// CompletedCount returns how many items are checked off.
func (p *ChecklistPayload) CompletedCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, item := range p.Items {
		if item.Done {
			n++
		}
	}
	return n
}

// Validate checks the tag, the reminder exclusivity rule and that the
// payload matches the declared type.
func (a *Activity) Validate() error {
	if a == nil || a.ID == "" || a.Name == "" {
		return ErrInvalidPayload
	}
	if a.ReminderMinutes != nil && a.ReminderTime != "" {
		return WrapError(ErrCodeValidation, "activity reminderMinutes and reminderTime are mutually exclusive", nil)
	}
	if a.ReminderTime != "" {
		if _, err := ParseTimestamp(a.ReminderTime); err != nil {
			return err
		}
	}
	switch a.ActivityType {
	case ActivityTypeChecklist:
		if a.Checklist == nil {
			return WrapError(ErrCodeValidation, "checklist activity missing checklist payload", nil)
		}
		return nil
	default:
		return WrapError(ErrCodeValidation, "unknown activity type "+string(a.ActivityType), nil)
	}
}
