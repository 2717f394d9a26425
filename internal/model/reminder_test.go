package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderScheduleUnmarshalLegacyString(t *testing.T) {
	var s ReminderSchedule
	require.NoError(t, json.Unmarshal([]byte(`"on_due_date"`), &s))
	assert.Equal(t, ReminderSchedule{RemindOnDueDate}, s)
}

func TestReminderScheduleUnmarshalArray(t *testing.T) {
	var s ReminderSchedule
	require.NoError(t, json.Unmarshal([]byte(`["7_days_before","on_due_date"]`), &s))
	assert.Equal(t, ReminderSchedule{RemindWeekBefore, RemindOnDueDate}, s)
}

func TestReminderScheduleNormalizesCase(t *testing.T) {
	var s ReminderSchedule
	require.NoError(t, json.Unmarshal([]byte(`" ON_DUE_DATE "`), &s))
	assert.Equal(t, ReminderSchedule{RemindOnDueDate}, s)
}

func TestReminderScheduleRejectsUnknownInterval(t *testing.T) {
	var s ReminderSchedule
	assert.Error(t, json.Unmarshal([]byte(`"next_tuesday"`), &s))
	assert.Error(t, json.Unmarshal([]byte(`["on_due_date","next_tuesday"]`), &s))
	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}

func TestReminderScheduleMarshalAlwaysArray(t *testing.T) {
	// A legacy single value read back in is written out as an array.
	var s ReminderSchedule
	require.NoError(t, json.Unmarshal([]byte(`"3_days_before"`), &s))

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["3_days_before"]`, string(out))
}

func TestReminderScheduleMarshalNil(t *testing.T) {
	out, err := json.Marshal(ReminderSchedule(nil))
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(out))
}
