package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/types"
)

// GroupDeleteMode selects which members a group delete removes.
type GroupDeleteMode string

// Group delete modes
const (
	// GroupDeleteFuture removes incomplete instances due on or after the
	// date of the instance acted on.
	GroupDeleteFuture GroupDeleteMode = "future"
	// GroupDeleteOpen removes every incomplete instance regardless of date.
	GroupDeleteOpen GroupDeleteMode = "open"
)

// deleteUndo holds the exact removed set so a single undo can restore it.
type deleteUndo struct {
	representative string
	tasks          []*types.Task
	expiry         time.Time
}

// completeUndo holds the pre-completion state of one task. Unlike the
// delete buffer it is not time-limited: it lives until explicitly
// dismissed or replaced by the next completion.
type completeUndo struct {
	taskID     string
	previous   *types.Task
	renewedIDs []string // auto-renewal batch created by this completion
}

// Delete optimistically removes the given tasks, then attempts the remote
// delete. On failure the list is restored from a snapshot captured before
// any mutation — never from the now-stale working slice. On success the
// removed set is kept in a single-shot undo buffer until it expires.
//
// Unknown ids are ignored; deleting nothing is a silent no-op.
func (e *Engine) Delete(ctx context.Context, ids []string, representative string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteLocked(ctx, ids, representative)
}

func (e *Engine) deleteLocked(ctx context.Context, ids []string, representative string) error {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	// Snapshot before any mutation; the rollback target must not alias
	// the list we are about to modify.
	snapshot := types.CloneTasks(e.tasks)

	var removed []*types.Task
	kept := e.tasks[:0:0]
	for _, t := range e.tasks {
		if idSet[t.ID] {
			removed = append(removed, t.Clone())
		} else {
			kept = append(kept, t)
		}
	}
	if len(removed) == 0 {
		debug.Logf("reconcile: delete: nothing to delete (ids=%v)\n", ids)
		return nil
	}
	e.tasks = kept

	removedIDs := make([]string, len(removed))
	for i, t := range removed {
		removedIDs[i] = t.ID
	}
	if err := e.store.Delete(ctx, removedIDs); err != nil {
		e.tasks = snapshot
		debug.Logf("reconcile: delete: remote delete failed for %v: %v\n", removedIDs, err)
		return fmt.Errorf("delete: %w", err)
	}

	e.deleteUndo = &deleteUndo{
		representative: representative,
		tasks:          removed,
		expiry:         e.opts.Clock().Add(e.opts.UndoExpiry),
	}
	return nil
}

// DeleteGroup removes members of a recurring group. Completed instances
// are never deleted by either mode. An empty selection (or an unknown
// group) is a silent no-op.
func (e *Engine) DeleteGroup(ctx context.Context, groupID string, mode GroupDeleteMode, anchorID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	anchor := e.find(anchorID)
	var ids []string
	for _, t := range e.tasks {
		if t.RecurrenceGroupID != groupID || t.Completed {
			continue
		}
		if mode == GroupDeleteFuture {
			if anchor == nil || anchor.DueDate == nil || t.DueDate == nil || t.DueDate.Before(*anchor.DueDate) {
				continue
			}
		}
		ids = append(ids, t.ID)
	}
	return e.deleteLocked(ctx, ids, anchorID)
}

// Undo restores the last deleted set if the buffer has not expired. The
// restored tasks are persisted; if that persistence fails the local
// restore is reverted. Undo is single-shot: once consumed or expired the
// buffer is gone.
func (e *Engine) Undo(ctx context.Context) ([]*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	undo := e.deleteUndo
	now := e.opts.Clock()
	if undo == nil || now.After(undo.expiry) {
		e.deleteUndo = nil
		return nil, ErrNothingToUndo
	}
	e.deleteUndo = nil

	restored := types.CloneTasks(undo.tasks)
	snapshot := types.CloneTasks(e.tasks)
	e.tasks = append(e.tasks, restored...)
	for _, t := range restored {
		e.markUpdated(t.ID, now)
	}

	if err := e.store.Save(ctx, restored); err != nil {
		e.tasks = snapshot
		debug.Logf("reconcile: undo: save failed for %s: %v\n", undo.representative, err)
		return nil, fmt.Errorf("undo: persist: %w", err)
	}
	// The list changed outside persist's snapshot tracking.
	e.lastPersisted = ""
	return types.CloneTasks(restored), nil
}

// ToggleComplete flips a task's completion state.
//
// Completing a task with incomplete subtasks requires confirmed=true;
// without it the toggle aborts with ErrConfirmSubtasks and state is
// unchanged. Confirmed completion marks all subtasks completed. Completing
// the last instance of an auto-renewing group generates the successor
// batch. Completion stores an undo record; un-completing clears any
// pending record for the task.
//
// Toggling a vanished task is a silent no-op.
func (e *Engine) ToggleComplete(ctx context.Context, id string, confirmed bool) (*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task := e.find(id)
	if task == nil {
		debug.Logf("reconcile: toggle: task %s vanished, ignoring\n", id)
		return nil, nil
	}

	now := e.opts.Clock()
	if task.Completed {
		return e.uncompleteLocked(ctx, task, now)
	}

	if task.HasIncompleteSubtasks() && !confirmed {
		return nil, ErrConfirmSubtasks
	}

	snapshot := types.CloneTasks(e.tasks)
	previous := task.Clone()
	task.Completed = true
	for i := range task.Subtasks {
		task.Subtasks[i].Completed = true
	}
	task.LastModified = now
	e.markUpdated(id, now)

	renewed := e.autoRenew(task, now)
	renewedIDs := make([]string, len(renewed))
	for i, t := range renewed {
		renewedIDs[i] = t.ID
	}

	if err := e.persist(ctx, "complete", id); err != nil {
		e.tasks = snapshot
		return nil, err
	}

	e.completeUndo = &completeUndo{taskID: id, previous: previous, renewedIDs: renewedIDs}
	return task.Clone(), nil
}

func (e *Engine) uncompleteLocked(ctx context.Context, task *types.Task, now time.Time) (*types.Task, error) {
	snapshot := task.Clone()
	task.Completed = false
	task.LastModified = now
	e.markUpdated(task.ID, now)

	if e.completeUndo != nil && e.completeUndo.taskID == task.ID {
		e.completeUndo = nil
	}

	if err := e.persist(ctx, "uncomplete", task.ID); err != nil {
		*task = *snapshot
		return nil, err
	}
	return task.Clone(), nil
}

// UndoComplete reverts the most recent completion, restoring the task's
// previous state and discarding any auto-renewal batch that completion
// created.
func (e *Engine) UndoComplete(ctx context.Context) (*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	undo := e.completeUndo
	if undo == nil {
		return nil, ErrNothingToUndo
	}
	e.completeUndo = nil

	now := e.opts.Clock()
	snapshot := types.CloneTasks(e.tasks)

	task := e.find(undo.taskID)
	if task == nil {
		debug.Logf("reconcile: undo-complete: task %s vanished, ignoring\n", undo.taskID)
		return nil, nil
	}
	*task = *undo.previous.Clone()
	task.LastModified = now
	e.markUpdated(task.ID, now)

	if len(undo.renewedIDs) > 0 {
		renewedSet := make(map[string]bool, len(undo.renewedIDs))
		for _, rid := range undo.renewedIDs {
			renewedSet[rid] = true
		}
		kept := e.tasks[:0:0]
		for _, t := range e.tasks {
			if !renewedSet[t.ID] {
				kept = append(kept, t)
			}
		}
		e.tasks = kept
		if err := e.store.Delete(ctx, undo.renewedIDs); err != nil {
			e.tasks = snapshot
			return nil, fmt.Errorf("undo-complete: delete renewal batch: %w", err)
		}
	}

	if err := e.persist(ctx, "undo-complete", undo.taskID); err != nil {
		e.tasks = snapshot
		return nil, err
	}
	return task.Clone(), nil
}

// DismissCompleteUndo drops the pending completion-undo record, if any.
func (e *Engine) DismissCompleteUndo() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completeUndo = nil
}
