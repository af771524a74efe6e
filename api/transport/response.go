package transport

import "encoding/json"

// Envelope is the wrapper every endpoint responds with, success or error.
type Envelope struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  any    `json:"error,omitempty"`
	Meta   any    `json:"meta,omitempty"`
}

// ReminderMeta is the meta block attached to successful event mutations:
// the reminder reconciliation counters plus an optional non-fatal
// scheduling warning. The data write has already committed when a warning
// is present.
type ReminderMeta struct {
	Scheduled int    `json:"scheduled"`
	Skipped   int    `json:"skipped"`
	Cancelled int    `json:"cancelled"`
	Warning   string `json:"warning,omitempty"`
}

// NewSuccess returns a success envelope.
func NewSuccess(data any, meta any) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewError returns an error envelope with optional metadata.
func NewError(code string, err any, meta any) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  err,
		Meta:   meta,
	}
}

// String renders the envelope as JSON, best effort, for log output.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}
