package reconcile

import (
	"context"
	"time"

	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/types"
)

// UpdateOptions carries edit flags that affect routing but are not task
// fields themselves.
type UpdateOptions struct {
	// DragMove marks a due-date-only move (drag and drop). Drag moves
	// never regenerate a group and never propagate: only the single
	// instance's due date changes.
	DragMove bool

	// SuppressSubtaskPropagation stops subtask edits from being copied to
	// sibling instances even when the subtasks changed.
	SuppressSubtaskPropagation bool
}

// RecurrenceSettingsChanged reports whether the updates alter any
// recurrence-defining field of the task (rule, multiplier, or custom
// frequency). A key merely present with the current value does not count.
func RecurrenceSettingsChanged(task *types.Task, updates map[string]interface{}) bool {
	if v, ok := updates["recurrence"]; ok {
		if asRecurrence(v) != task.Recurrence {
			return true
		}
	}
	if v, ok := updates["recurrence_multiplier"]; ok {
		if asInt(v) != task.RecurrenceMultiplier {
			return true
		}
	}
	if v, ok := updates["custom_frequency"]; ok {
		if asFrequency(v) != task.CustomFrequency {
			return true
		}
	}
	return false
}

// Update merges updates into a single task: the plain, non-recurring edit
// path. The task is marked recently-updated, LastModified is stamped, and
// tags are normalized. Editing a vanished task is a silent no-op (a
// recoverable UI race, not an error). On persistence failure the task
// reverts to its pre-update snapshot.
func (e *Engine) Update(ctx context.Context, id string, updates map[string]interface{}) (*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateLocked(ctx, id, updates)
}

func (e *Engine) updateLocked(ctx context.Context, id string, updates map[string]interface{}) (*types.Task, error) {
	task := e.find(id)
	if task == nil {
		debug.Logf("reconcile: update: task %s vanished, ignoring\n", id)
		return nil, nil
	}

	now := e.opts.Clock()
	snapshot := task.Clone()
	e.markUpdated(id, now)
	applyUpdates(task, updates, now)

	if err := e.persist(ctx, "update", id); err != nil {
		*task = *snapshot
		return nil, err
	}
	return task.Clone(), nil
}

// applyUpdates merges the update map into the task. Keys mirror the JSON
// field names. Unknown keys are ignored.
func applyUpdates(t *types.Task, updates map[string]interface{}, now time.Time) {
	for key, value := range updates {
		switch key {
		case "title":
			if s, ok := value.(string); ok {
				t.Title = s
			}
		case "due_date":
			switch v := value.(type) {
			case nil:
				t.DueDate = nil
			case time.Time:
				d := types.DateOf(v)
				t.DueDate = &d
			case *time.Time:
				if v == nil {
					t.DueDate = nil
				} else {
					d := types.DateOf(*v)
					t.DueDate = &d
				}
			}
		case "completed":
			if b, ok := value.(bool); ok {
				t.Completed = b
			}
		case "subtasks":
			if subs, ok := value.([]types.Subtask); ok {
				t.Subtasks = make([]types.Subtask, len(subs))
				copy(t.Subtasks, subs)
			}
		case "tags":
			if tags, ok := value.([]string); ok {
				t.Tags = types.NormalizeTags(tags)
			}
		case "recurrence":
			t.Recurrence = asRecurrence(value)
		case "recurrence_multiplier":
			t.RecurrenceMultiplier = asInt(value)
		case "custom_frequency":
			t.CustomFrequency = asFrequency(value)
		case "auto_renew":
			if b, ok := value.(bool); ok {
				t.AutoRenew = b
			}
		}
	}
	t.LastModified = now
}

func asRecurrence(v interface{}) types.Recurrence {
	switch r := v.(type) {
	case types.Recurrence:
		return r
	case string:
		return types.Recurrence(r)
	}
	return types.RecurrenceNone
}

func asFrequency(v interface{}) types.CustomFrequency {
	switch f := v.(type) {
	case types.CustomFrequency:
		return f
	case string:
		return types.CustomFrequency(f)
	}
	return ""
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
