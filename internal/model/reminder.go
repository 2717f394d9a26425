package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReminderInterval says when a payment reminder goes out relative to the
// due date.
type ReminderInterval string

const (
	RemindOnDueDate       ReminderInterval = "on_due_date"
	RemindThreeDaysBefore ReminderInterval = "3_days_before"
	RemindWeekBefore      ReminderInterval = "7_days_before"
	RemindTwoWeeksBefore  ReminderInterval = "14_days_before"
)

var knownIntervals = map[ReminderInterval]bool{
	RemindOnDueDate:       true,
	RemindThreeDaysBefore: true,
	RemindWeekBefore:      true,
	RemindTwoWeeksBefore:  true,
}

// ReminderSchedule is an ordered list of reminder intervals.
//
// Stored records come in two shapes: legacy rows hold a single bare string,
// newer rows hold a JSON array. Both are accepted on read; the schedule is
// always written back as an array. Legacy rows are not migrated in place.
type ReminderSchedule []ReminderInterval

// UnmarshalJSON accepts either a single legacy string or an array of
// interval strings and normalizes to the array form.
func (s *ReminderSchedule) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		iv, err := parseInterval(single)
		if err != nil {
			return err
		}
		*s = ReminderSchedule{iv}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("reminder schedule must be a string or array of strings: %w", err)
	}

	out := make(ReminderSchedule, 0, len(many))
	for _, raw := range many {
		iv, err := parseInterval(raw)
		if err != nil {
			return err
		}
		out = append(out, iv)
	}
	*s = out
	return nil
}

// MarshalJSON always writes the normalized array form, never the legacy
// single string.
func (s ReminderSchedule) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]ReminderInterval(s))
}

func parseInterval(raw string) (ReminderInterval, error) {
	iv := ReminderInterval(strings.TrimSpace(strings.ToLower(raw)))
	if !knownIntervals[iv] {
		return "", fmt.Errorf("unknown reminder interval %q", raw)
	}
	return iv, nil
}
