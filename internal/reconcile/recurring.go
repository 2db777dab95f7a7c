package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/recur"
	"github.com/mbaren/stride/internal/types"
)

// Scope selects how far a recurrence-settings edit reaches.
type Scope string

// Regeneration scopes
const (
	// ScopeAll discards and regenerates the entire series.
	ScopeAll Scope = "all"
	// ScopeFollowing regenerates only future-eligible instances, keeping
	// past completed ones.
	ScopeFollowing Scope = "following"
)

// RegenerateGroup replaces a recurring group's instances after its rule
// changed. The edited task's group is discarded per the scope and a fresh
// batch is generated from the new rule, preserving the series CreatedAt
// and the group id. Kept instances (ScopeFollowing) have IsLastInstance
// cleared so the invariant holds for the new batch.
//
// Editing a vanished task is a silent no-op. Persistence failure restores
// the exact pre-regeneration list.
func (e *Engine) RegenerateGroup(ctx context.Context, id string, updates map[string]interface{}, scope Scope) ([]*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.find(id)
	if task == nil {
		debug.Logf("reconcile: regenerate: task %s vanished, ignoring\n", id)
		return nil, nil
	}
	if !task.IsRecurring() {
		return nil, fmt.Errorf("regenerate: task %s is not recurring", id)
	}

	now := e.opts.Clock()
	groupID := task.RecurrenceGroupID
	members := recur.TasksToRemoveForRegeneration(e.tasks, groupID)
	first := recur.FindFirstInstance(e.tasks, groupID)

	remove := members
	if scope == ScopeFollowing {
		remove = remove[:0:0]
		for _, m := range members {
			if e.opts.Policy.Eligible(m, now) {
				remove = append(remove, m)
			}
		}
	}
	if len(remove) == 0 {
		debug.Logf("reconcile: regenerate: group %s has no eligible instances, ignoring\n", groupID)
		return nil, nil
	}

	// Template: the edited instance with the new rule applied. The series
	// CreatedAt comes from the first instance so regeneration does not
	// reset the group's age.
	template := task.Clone()
	applyUpdates(template, updates, now)
	if first != nil {
		template.CreatedAt = first.CreatedAt
	}
	if err := template.Validate(); err != nil {
		return nil, fmt.Errorf("regenerate: %w", err)
	}

	start := regenerationStart(remove, task, now)
	instances := recur.CreateInstances(template, start, e.opts.BatchSize, groupID, e.store.GenerateID, now)

	snapshot := types.CloneTasks(e.tasks)
	removeIDs := make(map[string]bool, len(remove))
	ids := make([]string, 0, len(remove))
	for _, m := range remove {
		removeIDs[m.ID] = true
		ids = append(ids, m.ID)
	}

	kept := e.tasks[:0:0]
	for _, t := range e.tasks {
		if removeIDs[t.ID] {
			continue
		}
		if t.RecurrenceGroupID == groupID {
			t.IsLastInstance = false
		}
		kept = append(kept, t)
	}
	e.tasks = append(kept, instances...)
	for _, inst := range instances {
		e.markUpdated(inst.ID, now)
	}

	if err := e.store.Delete(ctx, ids); err != nil {
		e.tasks = snapshot
		debug.Logf("reconcile: regenerate: delete failed for group %s: %v\n", groupID, err)
		return nil, fmt.Errorf("regenerate: delete: %w", err)
	}
	if err := e.persist(ctx, "regenerate", groupID); err != nil {
		e.tasks = snapshot
		return nil, err
	}
	return types.CloneTasks(instances), nil
}

// regenerationStart picks the due date the new batch starts from: the
// earliest due date among the discarded instances, falling back to the
// edited task's date, then today.
func regenerationStart(removed []*types.Task, edited *types.Task, now time.Time) time.Time {
	var start *time.Time
	for _, t := range removed {
		if t.DueDate == nil {
			continue
		}
		if start == nil || t.DueDate.Before(*start) {
			start = t.DueDate
		}
	}
	if start != nil {
		return *start
	}
	if edited.DueDate != nil {
		return *edited.DueDate
	}
	return types.DateOf(now)
}

// PropagateUpdate applies a recurring edit that does not change the rule:
// the edited instance receives the full update; every other future-eligible
// sibling receives the propagating subset (title always, normalized tags
// always, subtasks only when they changed on the edited instance and
// propagation was not suppressed). Propagated subtasks reset to incomplete.
func (e *Engine) PropagateUpdate(ctx context.Context, id string, updates map[string]interface{}, opts UpdateOptions) (*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.find(id)
	if task == nil {
		debug.Logf("reconcile: propagate: task %s vanished, ignoring\n", id)
		return nil, nil
	}

	now := e.opts.Clock()
	snapshot := types.CloneTasks(e.tasks)
	before := task.Clone()
	e.markUpdated(id, now)
	applyUpdates(task, updates, now)

	_, titleChanged := updates["title"]
	_, tagsChanged := updates["tags"]
	subtasksChanged := false
	if _, ok := updates["subtasks"]; ok {
		subtasksChanged = !types.EqualSubtasks(before.Subtasks, task.Subtasks) &&
			!opts.SuppressSubtaskPropagation
	}

	for _, sibling := range e.tasks {
		if sibling.ID == task.ID || sibling.RecurrenceGroupID != task.RecurrenceGroupID {
			continue
		}
		if !e.opts.Policy.Eligible(sibling, now) {
			continue
		}
		if titleChanged {
			sibling.Title = task.Title
		}
		if tagsChanged {
			sibling.Tags = types.NormalizeTags(task.Tags)
		}
		if subtasksChanged {
			sibling.Subtasks = make([]types.Subtask, len(task.Subtasks))
			for i, s := range task.Subtasks {
				sibling.Subtasks[i] = types.Subtask{Text: s.Text}
			}
		}
		if titleChanged || tagsChanged || subtasksChanged {
			sibling.LastModified = now
			e.markUpdated(sibling.ID, now)
		}
	}

	if err := e.persist(ctx, "propagate", id); err != nil {
		e.tasks = snapshot
		return nil, err
	}
	return task.Clone(), nil
}

// ExtendGroup appends the next instance batch to the group the task
// belongs to and moves the IsLastInstance marker onto the new batch's
// final instance.
func (e *Engine) ExtendGroup(ctx context.Context, id string) ([]*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.find(id)
	if task == nil {
		debug.Logf("reconcile: extend: task %s vanished, ignoring\n", id)
		return nil, nil
	}

	now := e.opts.Clock()
	batch := recur.ExtendInstances(task, e.tasks, e.opts.BatchSize, e.store.GenerateID, now)
	if len(batch) == 0 {
		return nil, nil
	}

	snapshot := types.CloneTasks(e.tasks)
	prevLast := recur.FindLastInstance(e.tasks, task.RecurrenceGroupID)
	if prevLast != nil {
		prevLast.IsLastInstance = false
		prevLast.LastModified = now
	}
	e.tasks = append(e.tasks, batch...)
	for _, inst := range batch {
		e.markUpdated(inst.ID, now)
	}

	if err := e.persist(ctx, "extend", task.RecurrenceGroupID); err != nil {
		e.tasks = snapshot
		return nil, err
	}
	return types.CloneTasks(batch), nil
}

// MakeRecurring converts a standalone task into a recurring series: the
// task is replaced by a generated batch whose template is the task with
// the updates (carrying the new rule) applied. The series starts at the
// task's due date, or today if it has none.
func (e *Engine) MakeRecurring(ctx context.Context, id string, updates map[string]interface{}) ([]*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.find(id)
	if task == nil {
		debug.Logf("reconcile: make-recurring: task %s vanished, ignoring\n", id)
		return nil, nil
	}
	if task.IsRecurring() {
		return nil, fmt.Errorf("make-recurring: task %s already belongs to a group", id)
	}

	now := e.opts.Clock()
	template := task.Clone()
	applyUpdates(template, updates, now)
	if template.Recurrence == types.RecurrenceNone {
		return nil, fmt.Errorf("make-recurring: updates carry no recurrence rule")
	}

	start := types.DateOf(now)
	if template.DueDate != nil {
		start = *template.DueDate
	}
	groupID := e.store.GenerateID()
	template.RecurrenceGroupID = groupID
	if err := template.Validate(); err != nil {
		return nil, fmt.Errorf("make-recurring: %w", err)
	}
	instances := recur.CreateInstances(template, start, e.opts.BatchSize, groupID, e.store.GenerateID, now)

	snapshot := types.CloneTasks(e.tasks)
	kept := e.tasks[:0:0]
	for _, t := range e.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	e.tasks = append(kept, instances...)
	for _, inst := range instances {
		e.markUpdated(inst.ID, now)
	}

	if err := e.store.Delete(ctx, []string{id}); err != nil {
		e.tasks = snapshot
		return nil, fmt.Errorf("make-recurring: delete: %w", err)
	}
	if err := e.persist(ctx, "make-recurring", groupID); err != nil {
		e.tasks = snapshot
		return nil, err
	}
	return types.CloneTasks(instances), nil
}

// StopRecurrence clears a task's recurrence: the edited instance survives
// as a standalone task with the updates applied, and its siblings are
// removed per the scope (ScopeFollowing keeps past completed ones).
func (e *Engine) StopRecurrence(ctx context.Context, id string, updates map[string]interface{}, scope Scope) (*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.find(id)
	if task == nil {
		debug.Logf("reconcile: stop-recurrence: task %s vanished, ignoring\n", id)
		return nil, nil
	}
	if !task.IsRecurring() {
		return nil, fmt.Errorf("stop-recurrence: task %s is not recurring", id)
	}

	now := e.opts.Clock()
	groupID := task.RecurrenceGroupID
	var removeIDs []string
	for _, m := range recur.TasksToRemoveForRegeneration(e.tasks, groupID) {
		if m.ID == id {
			continue
		}
		if scope == ScopeFollowing && !e.opts.Policy.Eligible(m, now) {
			continue
		}
		removeIDs = append(removeIDs, m.ID)
	}

	snapshot := types.CloneTasks(e.tasks)
	removeSet := make(map[string]bool, len(removeIDs))
	for _, rid := range removeIDs {
		removeSet[rid] = true
	}
	kept := e.tasks[:0:0]
	for _, t := range e.tasks {
		if removeSet[t.ID] {
			continue
		}
		if t.RecurrenceGroupID == groupID {
			t.IsLastInstance = false
		}
		kept = append(kept, t)
	}
	e.tasks = kept

	applyUpdates(task, updates, now)
	task.Recurrence = types.RecurrenceNone
	task.RecurrenceGroupID = ""
	task.RecurrenceMultiplier = 0
	task.CustomFrequency = ""
	task.IsLastInstance = false
	task.AutoRenew = false
	if err := task.Validate(); err != nil {
		e.tasks = snapshot
		return nil, fmt.Errorf("stop-recurrence: %w", err)
	}
	e.markUpdated(id, now)

	// Surviving past members still form a (finished) group; restore the
	// single last-instance marker among them.
	if remaining := recur.FindLastInstance(e.tasks, groupID); remaining != nil {
		remaining.IsLastInstance = true
	}

	if len(removeIDs) > 0 {
		if err := e.store.Delete(ctx, removeIDs); err != nil {
			e.tasks = snapshot
			return nil, fmt.Errorf("stop-recurrence: delete: %w", err)
		}
	}
	if err := e.persist(ctx, "stop-recurrence", id); err != nil {
		e.tasks = snapshot
		return nil, err
	}
	return task.Clone(), nil
}

// autoRenew generates a fresh batch when the last instance of an
// auto-renewing group is completed. The new series starts the day after
// the completed due date and lives under a new group id; reusing the old
// id would make the finished series and its successor indistinguishable.
// Caller holds the lock. Returns the new instances (appended to the list
// but not yet persisted).
func (e *Engine) autoRenew(task *types.Task, now time.Time) []*types.Task {
	if !task.IsLastInstance || !task.AutoRenew || task.DueDate == nil {
		return nil
	}
	start := task.DueDate.AddDate(0, 0, 1)
	template := task.Clone()
	template.CreatedAt = time.Time{} // new series, new age
	newGroupID := e.store.GenerateID()
	template.RecurrenceGroupID = newGroupID
	instances := recur.CreateInstances(template, start, e.opts.BatchSize, newGroupID, e.store.GenerateID, now)

	e.tasks = append(e.tasks, instances...)
	for _, inst := range instances {
		e.markUpdated(inst.ID, now)
	}
	debug.Logf("reconcile: auto-renew: group %s -> %s (%d instances)\n",
		task.RecurrenceGroupID, newGroupID, len(instances))
	return instances
}
