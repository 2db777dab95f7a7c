// Package types defines core data structures for the stride task client.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Task represents a single task item, standalone or one instance of a
// recurring group.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	DueDate      *time.Time `json:"due_date,omitempty"` // calendar date, always midnight UTC
	Completed    bool       `json:"completed"`
	Subtasks     []Subtask  `json:"subtasks,omitempty"`
	Tags         []string   `json:"tags,omitempty"` // lowercase, insertion order
	CreatedAt    time.Time  `json:"created_at"`
	LastModified time.Time  `json:"last_modified"`

	// Recurrence fields. Recurrence and RecurrenceGroupID are set together:
	// a task is either standalone or a member of a generated series.
	Recurrence           Recurrence      `json:"recurrence,omitempty"`
	RecurrenceGroupID    string          `json:"recurrence_group_id,omitempty"`
	RecurrenceMultiplier int             `json:"recurrence_multiplier,omitempty"` // every N periods; 0 means 1
	CustomFrequency      CustomFrequency `json:"custom_frequency,omitempty"`      // sub-kind when Recurrence == RecurrenceCustom
	IsLastInstance       bool            `json:"is_last_instance,omitempty"`
	AutoRenew            bool            `json:"auto_renew,omitempty"`
}

// Subtask is one checklist item inside a task.
type Subtask struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Recurrence identifies the cadence of a recurring group.
type Recurrence string

// Recurrence constants
const (
	RecurrenceNone      Recurrence = ""
	RecurrenceDaily     Recurrence = "daily"
	RecurrenceWeekly    Recurrence = "weekly"
	RecurrenceMonthly   Recurrence = "monthly"
	RecurrenceQuarterly Recurrence = "quarterly"
	RecurrenceYearly    Recurrence = "yearly"
	RecurrenceCustom    Recurrence = "custom"
)

// IsValid checks if the recurrence value is one of the known cadences.
// The empty value (no recurrence) is valid.
func (r Recurrence) IsValid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly,
		RecurrenceQuarterly, RecurrenceYearly, RecurrenceCustom:
		return true
	}
	return false
}

// CustomFrequency is the sub-kind used when Recurrence == RecurrenceCustom,
// combined with RecurrenceMultiplier (e.g. custom/weeks x3 = every 3 weeks).
type CustomFrequency string

// Custom frequency constants
const (
	FrequencyDays   CustomFrequency = "days"
	FrequencyWeeks  CustomFrequency = "weeks"
	FrequencyMonths CustomFrequency = "months"
	FrequencyYears  CustomFrequency = "years"
)

// IsValid checks if the custom frequency is a known unit. Empty is valid
// (only meaningful when recurrence is custom).
func (f CustomFrequency) IsValid() bool {
	switch f {
	case "", FrequencyDays, FrequencyWeeks, FrequencyMonths, FrequencyYears:
		return true
	}
	return false
}

// IsRecurring returns true if the task belongs to a recurring group.
func (t *Task) IsRecurring() bool {
	return t.RecurrenceGroupID != ""
}

// Multiplier returns the effective interval multiplier (minimum 1).
func (t *Task) Multiplier() int {
	if t.RecurrenceMultiplier < 1 {
		return 1
	}
	return t.RecurrenceMultiplier
}

// HasIncompleteSubtasks returns true if any subtask is not completed.
func (t *Task) HasIncompleteSubtasks() bool {
	for _, s := range t.Subtasks {
		if !s.Completed {
			return true
		}
	}
	return false
}

// IsOverdue returns true if the task is incomplete with a due date before
// the calendar day of now.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.Completed || t.DueDate == nil {
		return false
	}
	return t.DueDate.Before(DateOf(now))
}

// Clone returns a deep copy of the task. Mutating the copy never affects
// the original; callers rely on this for snapshot/rollback.
func (t *Task) Clone() *Task {
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.Subtasks != nil {
		c.Subtasks = make([]Subtask, len(t.Subtasks))
		copy(c.Subtasks, t.Subtasks)
	}
	if t.Tags != nil {
		c.Tags = make([]string, len(t.Tags))
		copy(c.Tags, t.Tags)
	}
	return &c
}

// CloneTasks deep-copies a slice of tasks.
func CloneTasks(tasks []*Task) []*Task {
	if tasks == nil {
		return nil
	}
	out := make([]*Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// Validate checks the task's field values and the recurrence invariant
// (recurrence is present iff the group id is present).
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if !t.Recurrence.IsValid() {
		return fmt.Errorf("invalid recurrence: %s", t.Recurrence)
	}
	if !t.CustomFrequency.IsValid() {
		return fmt.Errorf("invalid custom frequency: %s", t.CustomFrequency)
	}
	if (t.Recurrence == RecurrenceNone) != (t.RecurrenceGroupID == "") {
		return fmt.Errorf("recurrence and recurrence_group_id must be set together")
	}
	if t.Recurrence == RecurrenceCustom && t.CustomFrequency == "" {
		return fmt.Errorf("custom recurrence requires a custom frequency")
	}
	if t.RecurrenceMultiplier < 0 {
		return fmt.Errorf("recurrence multiplier cannot be negative")
	}
	if t.DueDate != nil && !t.DueDate.Equal(DateOf(*t.DueDate)) {
		return fmt.Errorf("due date must be a calendar date (midnight UTC)")
	}
	return nil
}

// SetDefaults applies default values for fields omitted by callers:
// timestamps default to now, tags are normalized, due dates truncated
// to calendar dates.
func (t *Task) SetDefaults(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.LastModified.IsZero() {
		t.LastModified = now
	}
	if t.DueDate != nil {
		d := DateOf(*t.DueDate)
		t.DueDate = &d
	}
	t.Tags = NormalizeTags(t.Tags)
}

// DateOf truncates a timestamp to its calendar date at midnight UTC.
// Task due dates carry no time component.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay returns true if both timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// NormalizeTags lowercases and trims tags, dropping empties and duplicates
// while preserving insertion order. Tags are always normalized before
// storage.
func NormalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		norm := strings.ToLower(strings.TrimSpace(tag))
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}

// EqualTags compares two normalized tag slices for equality (order matters;
// order is insertion order).
func EqualTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EqualSubtasks compares two subtask slices by text and completion state.
func EqualSubtasks(a, b []Subtask) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
