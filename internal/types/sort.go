package types

import (
	"sort"
	"time"
)

// SortByDueDate stable-sorts tasks by due date ascending. Tasks without a
// due date sort last. Ties break on CreatedAt, then ID, so ordering is
// deterministic for equal dates.
func SortByDueDate(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return lessByDueDate(tasks[i], tasks[j])
	})
}

func lessByDueDate(a, b *Task) bool {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		// fall through to tie-break
	case a.DueDate == nil:
		return false
	case b.DueDate == nil:
		return true
	case !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Before(*b.DueDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// TaskFilter selects a subset of tasks for listing.
type TaskFilter struct {
	Tag       string // match tasks carrying this tag (normalized)
	Completed *bool  // nil = any
	GroupID   string // match members of this recurring group
	Overdue   bool   // only incomplete tasks past their due date
}

// Matches reports whether the task passes the filter. now is only consulted
// for the Overdue criterion.
func (f TaskFilter) Matches(t *Task, now time.Time) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.GroupID != "" && t.RecurrenceGroupID != f.GroupID {
		return false
	}
	if f.Overdue && !t.IsOverdue(now) {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range t.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Filter returns the tasks matching f, preserving input order.
func Filter(tasks []*Task, f TaskFilter, now time.Time) []*Task {
	var out []*Task
	for _, t := range tasks {
		if f.Matches(t, now) {
			out = append(out, t)
		}
	}
	return out
}
