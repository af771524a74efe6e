package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderIdentities(t *testing.T) {
	assert.Equal(t, "ev123", EventReminderID("ev123"))
	assert.Equal(t, "ev123-checklist-act456", ActivityReminderID("ev123", ActivityTypeChecklist, "act456"))
}

func TestEventReminderSpecPrecedence(t *testing.T) {
	minutes := 30

	_, ok := EventReminderSpec(&Event{})
	assert.False(t, ok)

	spec, ok := EventReminderSpec(&Event{ReminderMinutes: &minutes})
	require.True(t, ok)
	assert.Equal(t, &minutes, spec.Minutes)

	// A fixed timestamp wins over a relative offset.
	spec, ok = EventReminderSpec(&Event{ReminderMinutes: &minutes, ReminderTime: "2025-03-15T08:00:00"})
	require.True(t, ok)
	assert.Equal(t, "2025-03-15T08:00:00", spec.At)
	assert.Nil(t, spec.Minutes)
}

func TestFireTimeRelative(t *testing.T) {
	minutes := 45
	spec := ReminderSpec{Minutes: &minutes}
	start := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	fireAt, err := spec.FireTime(start)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 15, 8, 15, 0, 0, time.UTC), fireAt)
}

func TestFireTimeAbsolute(t *testing.T) {
	spec := ReminderSpec{At: "2025-03-14T18:00:00"}
	fireAt, err := spec.FireTime(time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC), fireAt)
}

func TestFireTimeEmptySpec(t *testing.T) {
	_, err := ReminderSpec{}.FireTime(time.Now())
	require.Error(t, err)
}

func TestFireTimeRoundTripsThroughWireFormat(t *testing.T) {
	// minutes -> absolute -> same instant regardless of which form is stored
	minutes := 30
	start := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	relative, err := ReminderSpec{Minutes: &minutes}.FireTime(start)
	require.NoError(t, err)

	absolute, err := ReminderSpec{At: relative.Format("2006-01-02T15:04:05")}.FireTime(start)
	require.NoError(t, err)
	assert.True(t, relative.Equal(absolute))
}
