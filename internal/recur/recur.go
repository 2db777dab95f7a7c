// Package recur implements the recurring-task generation engine.
//
// Recurring tasks are materialized eagerly as concrete instances rather
// than computed lazily at render time, so per-instance completion, edits,
// and deletion stay simple row operations. The tradeoff is a periodic
// extend operation to avoid unbounded generation.
//
// Everything here is pure: callers pass "now" and an id source explicitly,
// and no function mutates its inputs.
package recur

import (
	"time"

	"github.com/mbaren/stride/internal/types"
)

// DefaultBatchSize is the number of instances generated when the caller
// does not specify a count.
const DefaultBatchSize = 50

// CreateInstances expands a recurrence rule into count concrete instances.
//
// Each instance is a copy of template with the due date advanced by the
// rule's period times the template's multiplier, starting at start.
// Generated instances share groupID, are incomplete with incomplete
// subtasks, preserve the template's CreatedAt (or take now if unset), and
// stamp LastModified with now. The chronologically last instance is marked
// IsLastInstance.
//
// newID must return a fresh collision-free id per call (the gateway's
// GenerateID). count <= 0 falls back to DefaultBatchSize.
func CreateInstances(template *types.Task, start time.Time, count int, groupID string, newID func() string, now time.Time) []*types.Task {
	if count <= 0 {
		count = DefaultBatchSize
	}
	start = types.DateOf(start)
	createdAt := template.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	instances := make([]*types.Task, 0, count)
	for i := 0; i < count; i++ {
		inst := template.Clone()
		inst.ID = newID()
		inst.RecurrenceGroupID = groupID
		due := advance(start, template, i)
		inst.DueDate = &due
		inst.Completed = false
		for j := range inst.Subtasks {
			inst.Subtasks[j].Completed = false
		}
		inst.Tags = types.NormalizeTags(inst.Tags)
		inst.CreatedAt = createdAt
		inst.LastModified = now
		inst.IsLastInstance = i == count-1
		instances = append(instances, inst)
	}
	return instances
}

// ExtendInstances generates the next batch continuing immediately after the
// group's current last due date, reusing the same group id. Returns nil if
// task is not part of a recurring group. The caller is responsible for
// clearing the previous last instance's IsLastInstance flag once the new
// batch is committed.
func ExtendInstances(task *types.Task, all []*types.Task, count int, newID func() string, now time.Time) []*types.Task {
	if !task.IsRecurring() {
		return nil
	}
	last := FindLastInstance(all, task.RecurrenceGroupID)
	if last == nil || last.DueDate == nil {
		return nil
	}
	// One period past the current last due date is the new start.
	start := advance(*last.DueDate, last, 1)
	return CreateInstances(last, start, count, task.RecurrenceGroupID, newID, now)
}

// FindFirstInstance returns the group member with the minimum due date.
// Ties break on lowest CreatedAt, then lowest id, so the result is stable.
// Returns nil if the group has no members.
func FindFirstInstance(tasks []*types.Task, groupID string) *types.Task {
	return findExtreme(tasks, groupID, func(cand, best *types.Task) bool {
		return instanceLess(cand, best)
	})
}

// FindLastInstance returns the group member with the maximum due date,
// with the analogous tie-break.
func FindLastInstance(tasks []*types.Task, groupID string) *types.Task {
	return findExtreme(tasks, groupID, func(cand, best *types.Task) bool {
		return instanceLess(best, cand)
	})
}

// TasksToRemoveForRegeneration returns every member of the group. Full
// regeneration always discards the entire existing series; callers that
// keep past completed instances filter the result first.
func TasksToRemoveForRegeneration(tasks []*types.Task, groupID string) []*types.Task {
	if groupID == "" {
		return nil
	}
	var out []*types.Task
	for _, t := range tasks {
		if t.RecurrenceGroupID == groupID {
			out = append(out, t)
		}
	}
	return out
}

// advance returns the due date steps periods after start for the task's
// recurrence rule, multiplied by the task's interval multiplier.
//
// Month-based units are computed from start each time (not iterated), so a
// day-of-month anchor like the 31st clamps per month instead of drifting.
func advance(start time.Time, task *types.Task, steps int) time.Time {
	start = types.DateOf(start)
	n := steps * task.Multiplier()
	switch task.Recurrence {
	case types.RecurrenceDaily:
		return start.AddDate(0, 0, n)
	case types.RecurrenceWeekly:
		return start.AddDate(0, 0, 7*n)
	case types.RecurrenceMonthly:
		return addMonthsClamped(start, n)
	case types.RecurrenceQuarterly:
		return addMonthsClamped(start, 3*n)
	case types.RecurrenceYearly:
		return addMonthsClamped(start, 12*n)
	case types.RecurrenceCustom:
		switch task.CustomFrequency {
		case types.FrequencyDays:
			return start.AddDate(0, 0, n)
		case types.FrequencyWeeks:
			return start.AddDate(0, 0, 7*n)
		case types.FrequencyMonths:
			return addMonthsClamped(start, n)
		case types.FrequencyYears:
			return addMonthsClamped(start, 12*n)
		}
	}
	return start
}

// addMonthsClamped adds months keeping the day-of-month, clamped to the
// last valid day of the target month (Jan 31 + 1 month = Feb 28/29).
func addMonthsClamped(start time.Time, months int) time.Time {
	y, m, d := start.Date()
	target := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysInMonth(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func findExtreme(tasks []*types.Task, groupID string, better func(cand, best *types.Task) bool) *types.Task {
	if groupID == "" {
		return nil
	}
	var best *types.Task
	for _, t := range tasks {
		if t.RecurrenceGroupID != groupID {
			continue
		}
		if best == nil || better(t, best) {
			best = t
		}
	}
	return best
}

// instanceLess orders instances by due date (nil last), then CreatedAt,
// then id.
func instanceLess(a, b *types.Task) bool {
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
