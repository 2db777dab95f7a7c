package types

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"lowercases", []string{"Work", "HOME"}, []string{"work", "home"}},
		{"trims whitespace", []string{"  gym ", "work"}, []string{"gym", "work"}},
		{"drops empties", []string{"", "  ", "a"}, []string{"a"}},
		{"dedupes preserving first", []string{"a", "B", "A", "b"}, []string{"a", "b"}},
		{"nil stays nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.in)
			if !EqualTags(got, tt.want) {
				t.Errorf("NormalizeTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"plain task", Task{Title: "Gym"}, false},
		{"empty title", Task{Title: "  "}, true},
		{"recurring with group", Task{Title: "Gym", Recurrence: RecurrenceWeekly, RecurrenceGroupID: "g1"}, false},
		{"recurrence without group", Task{Title: "Gym", Recurrence: RecurrenceWeekly}, true},
		{"group without recurrence", Task{Title: "Gym", RecurrenceGroupID: "g1"}, true},
		{"custom without frequency", Task{Title: "Gym", Recurrence: RecurrenceCustom, RecurrenceGroupID: "g1"}, true},
		{"custom with frequency", Task{Title: "Gym", Recurrence: RecurrenceCustom, RecurrenceGroupID: "g1", CustomFrequency: FrequencyWeeks}, false},
		{"bad recurrence", Task{Title: "Gym", Recurrence: "fortnightly", RecurrenceGroupID: "g1"}, true},
		{"negative multiplier", Task{Title: "Gym", RecurrenceMultiplier: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRejectsNonMidnightDueDate(t *testing.T) {
	due := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	task := Task{Title: "Gym", DueDate: &due}
	if err := task.Validate(); err == nil {
		t.Error("expected validation error for due date with a time component")
	}
}

func TestSetDefaults(t *testing.T) {
	now := time.Date(2025, 3, 1, 14, 22, 0, 0, time.UTC)
	due := time.Date(2025, 3, 5, 18, 0, 0, 0, time.UTC)
	task := Task{Title: "Gym", DueDate: &due, Tags: []string{"Work", "work"}}
	task.SetDefaults(now)

	if !task.CreatedAt.Equal(now) || !task.LastModified.Equal(now) {
		t.Errorf("timestamps not defaulted: created=%v modified=%v", task.CreatedAt, task.LastModified)
	}
	if !task.DueDate.Equal(date(2025, 3, 5)) {
		t.Errorf("due date not truncated to calendar date: %v", task.DueDate)
	}
	if !EqualTags(task.Tags, []string{"work"}) {
		t.Errorf("tags not normalized: %v", task.Tags)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Task{
		ID:       "t1",
		Title:    "Gym",
		DueDate:  datePtr(2025, 1, 1),
		Subtasks: []Subtask{{Text: "stretch"}},
		Tags:     []string{"health"},
	}
	c := orig.Clone()
	c.Title = "Changed"
	c.Subtasks[0].Completed = true
	c.Tags[0] = "other"
	*c.DueDate = date(2030, 1, 1)

	if orig.Title != "Gym" || orig.Subtasks[0].Completed || orig.Tags[0] != "health" {
		t.Errorf("mutating clone leaked into original: %+v", orig)
	}
	if !orig.DueDate.Equal(date(2025, 1, 1)) {
		t.Errorf("clone shares due date pointer with original")
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"past due incomplete", Task{DueDate: datePtr(2025, 6, 14)}, true},
		{"due today", Task{DueDate: datePtr(2025, 6, 15)}, false},
		{"future", Task{DueDate: datePtr(2025, 6, 16)}, false},
		{"completed past due", Task{DueDate: datePtr(2025, 6, 14), Completed: true}, false},
		{"no due date", Task{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.IsOverdue(now); got != tt.want {
				t.Errorf("IsOverdue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortByDueDate(t *testing.T) {
	tasks := []*Task{
		{ID: "c"},
		{ID: "b", DueDate: datePtr(2025, 2, 1)},
		{ID: "a", DueDate: datePtr(2025, 1, 1)},
		{ID: "d", DueDate: datePtr(2025, 1, 1), CreatedAt: date(2020, 1, 1)},
	}
	// "a" has zero CreatedAt which sorts before "d"'s 2020 timestamp.
	SortByDueDate(tasks)

	gotIDs := make([]string, len(tasks))
	for i, task := range tasks {
		gotIDs[i] = task.ID
	}
	wantIDs := []string{"a", "d", "b", "c"}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Fatalf("sort order = %v, want %v", gotIDs, wantIDs)
		}
	}
}

func TestFilter(t *testing.T) {
	now := date(2025, 6, 15)
	done := true
	open := false
	tasks := []*Task{
		{ID: "1", Tags: []string{"work"}},
		{ID: "2", Tags: []string{"home"}, Completed: true},
		{ID: "3", RecurrenceGroupID: "g1", DueDate: datePtr(2025, 6, 1)},
	}

	if got := Filter(tasks, TaskFilter{Tag: "work"}, now); len(got) != 1 || got[0].ID != "1" {
		t.Errorf("tag filter: got %d results", len(got))
	}
	if got := Filter(tasks, TaskFilter{Completed: &done}, now); len(got) != 1 || got[0].ID != "2" {
		t.Errorf("completed filter: got %d results", len(got))
	}
	if got := Filter(tasks, TaskFilter{GroupID: "g1"}, now); len(got) != 1 || got[0].ID != "3" {
		t.Errorf("group filter: got %d results", len(got))
	}
	if got := Filter(tasks, TaskFilter{Overdue: true, Completed: &open}, now); len(got) != 1 || got[0].ID != "3" {
		t.Errorf("overdue filter: got %d results", len(got))
	}
}
