package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mbaren/stride/internal/types"
)

// RenderTaskLine formats a single task as one display line:
// status icon, id, title, recurrence marker, due date, tags.
func RenderTaskLine(t *types.Task, now time.Time) string {
	var b strings.Builder

	if t.Completed {
		b.WriteString(RenderPass(IconDone))
	} else {
		b.WriteString(RenderMuted(IconOpen))
	}
	b.WriteString(" ")
	b.WriteString(RenderMuted(shortID(t.ID)))
	b.WriteString("  ")

	if t.Completed {
		b.WriteString(RenderMuted(t.Title))
	} else {
		b.WriteString(t.Title)
	}

	if t.IsRecurring() {
		b.WriteString(" ")
		b.WriteString(RenderAccent(IconRepeat + " " + recurrenceLabel(t)))
	}

	if t.DueDate != nil {
		b.WriteString("  ")
		b.WriteString(renderDueDate(*t.DueDate, t.Completed, now))
	}

	if len(t.Tags) > 0 {
		b.WriteString("  ")
		b.WriteString(RenderMuted("#" + strings.Join(t.Tags, " #")))
	}

	return b.String()
}

// RenderTask formats a task with its subtasks indented beneath it.
func RenderTask(t *types.Task, now time.Time) string {
	var b strings.Builder
	b.WriteString(RenderTaskLine(t, now))
	for _, st := range t.Subtasks {
		b.WriteString("\n  ")
		b.WriteString(RenderMuted(IconSubtask))
		if st.Completed {
			b.WriteString(RenderMuted(IconDone + " " + st.Text))
		} else {
			b.WriteString(st.Text)
		}
	}
	return b.String()
}

// RenderTaskList formats tasks one per line, subtasks indented.
func RenderTaskList(tasks []*types.Task, now time.Time) string {
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, RenderTask(t, now))
	}
	return strings.Join(lines, "\n")
}

// Stats summarizes the visible task list for the stats command.
type Stats struct {
	Open      int
	Overdue   int
	DueToday  int
	Recurring int
	Completed int
}

// CollectStats computes summary counts over the given tasks.
func CollectStats(tasks []*types.Task, now time.Time) Stats {
	var s Stats
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
			continue
		}
		s.Open++
		if t.IsOverdue(now) {
			s.Overdue++
		} else if t.DueDate != nil && types.SameDay(*t.DueDate, now) {
			s.DueToday++
		}
		if t.IsRecurring() {
			s.Recurring++
		}
	}
	return s
}

// RenderStats formats the stats summary block.
func RenderStats(s Stats) string {
	var b strings.Builder
	b.WriteString(RenderCategory("tasks"))
	b.WriteString("\n")
	b.WriteString(RenderSeparator())
	b.WriteString("\n")
	fmt.Fprintf(&b, "  open       %d\n", s.Open)
	if s.Overdue > 0 {
		fmt.Fprintf(&b, "  overdue    %s\n", RenderFail(fmt.Sprintf("%d", s.Overdue)))
	} else {
		fmt.Fprintf(&b, "  overdue    %d\n", s.Overdue)
	}
	fmt.Fprintf(&b, "  due today  %d\n", s.DueToday)
	fmt.Fprintf(&b, "  recurring  %d\n", s.Recurring)
	fmt.Fprintf(&b, "  completed  %d", s.Completed)
	return b.String()
}

func renderDueDate(due time.Time, completed bool, now time.Time) string {
	label := due.Format("Jan 2")
	if due.Year() != now.Year() {
		label = due.Format("Jan 2 2006")
	}
	switch {
	case completed:
		return RenderMuted(label)
	case due.Before(types.DateOf(now)):
		return RenderFail(label + " (overdue)")
	case types.SameDay(due, now):
		return RenderWarn("today")
	default:
		return RenderMuted(label)
	}
}

func recurrenceLabel(t *types.Task) string {
	if t.Recurrence == types.RecurrenceCustom {
		freq := string(t.CustomFrequency) // already plural: days, weeks, ...
		if t.RecurrenceMultiplier > 1 {
			return fmt.Sprintf("every %d %s", t.RecurrenceMultiplier, freq)
		}
		return "every " + strings.TrimSuffix(freq, "s")
	}
	if t.RecurrenceMultiplier > 1 {
		return fmt.Sprintf("every %d %s", t.RecurrenceMultiplier, string(t.Recurrence))
	}
	return string(t.Recurrence)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
