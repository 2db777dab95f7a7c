// Package session is the orchestration layer between the UI (CLI commands)
// and the reconcile/recur engines.
//
// It classifies each edit — plain task edit, shared-field propagation, or
// recurrence regeneration — and owns the pending-choice state machine for
// recurrence edits on non-first instances: the operation suspends until the
// user picks a scope, and no mutation happens until then.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/recur"
	"github.com/mbaren/stride/internal/reconcile"
	"github.com/mbaren/stride/internal/storage"
	"github.com/mbaren/stride/internal/types"
)

// ErrChoiceRequired is returned when a recurrence-settings edit on a
// non-first instance needs the user to pick a scope. The session holds the
// proposed edit; call Resolve with the choice or Cancel to drop it.
var ErrChoiceRequired = errors.New("recurrence edit needs a scope choice")

// ErrNoPendingChoice is returned by Resolve when nothing is suspended.
var ErrNoPendingChoice = errors.New("no pending recurrence edit")

// pendingKind tags the state of the suspended-edit machine.
type pendingKind int

const (
	noPending pendingKind = iota
	awaitingChoice
)

// pendingEdit is the AwaitingChoice payload: the exact edit to re-issue
// once the scope is known.
type pendingEdit struct {
	kind    pendingKind
	taskID  string
	updates map[string]interface{}
	opts    reconcile.UpdateOptions
}

// Session wires the engines to a store and routes edits.
type Session struct {
	mu      sync.Mutex
	engine  *reconcile.Engine
	store   storage.Gateway
	pending pendingEdit
}

// New creates a session over an engine and its gateway.
func New(engine *reconcile.Engine, store storage.Gateway) *Session {
	return &Session{engine: engine, store: store}
}

// Engine exposes the underlying reconcile engine for read access and the
// operations the session does not mediate (add, delete, undo).
func (s *Session) Engine() *reconcile.Engine { return s.engine }

// Update classifies and dispatches an edit request.
//
// Drag moves bypass everything: only the instance's due date changes.
// Recurrence-settings changes on the first instance (or a standalone task)
// regenerate immediately with ScopeAll; on a non-first instance with no
// pre-selected scope the edit suspends with ErrChoiceRequired. Recurring
// edits without settings changes propagate shared fields to future-eligible
// siblings. Everything else is a plain update.
//
// scope is the pre-selected regeneration scope, or empty when the caller
// has not chosen one.
func (s *Session) Update(ctx context.Context, id string, updates map[string]interface{}, opts reconcile.UpdateOptions, scope reconcile.Scope) (*types.Task, error) {
	task := s.engine.Get(id)
	if task == nil {
		debug.Logf("session: update: task %s vanished, ignoring\n", id)
		return nil, nil
	}

	if opts.DragMove {
		move := map[string]interface{}{}
		if v, ok := updates["due_date"]; ok {
			move["due_date"] = v
		}
		return s.engine.Update(ctx, id, move)
	}

	settingsChanged := reconcile.RecurrenceSettingsChanged(task, updates)
	if !settingsChanged {
		if task.IsRecurring() {
			return s.engine.PropagateUpdate(ctx, id, updates, opts)
		}
		return s.engine.Update(ctx, id, updates)
	}

	if task.IsRecurring() && scope == "" && !s.isFirstInstance(task) {
		s.mu.Lock()
		s.pending = pendingEdit{kind: awaitingChoice, taskID: id, updates: updates, opts: opts}
		s.mu.Unlock()
		return nil, ErrChoiceRequired
	}
	if scope == "" {
		scope = reconcile.ScopeAll
	}
	return s.applySettingsChange(ctx, task, id, updates, scope)
}

// Resolve re-issues the suspended edit with the chosen scope.
func (s *Session) Resolve(ctx context.Context, scope reconcile.Scope) (*types.Task, error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = pendingEdit{}
	s.mu.Unlock()

	if pending.kind != awaitingChoice {
		return nil, ErrNoPendingChoice
	}
	return s.Update(ctx, pending.taskID, pending.updates, pending.opts, scope)
}

// Cancel drops any suspended edit without mutating anything.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.pending = pendingEdit{}
	s.mu.Unlock()
}

// Pending returns the suspended task id, or "" when nothing is awaiting a
// choice.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.kind != awaitingChoice {
		return ""
	}
	return s.pending.taskID
}

// ToggleComplete flips completion via the engine. The incomplete-subtasks
// confirmation gate surfaces as reconcile.ErrConfirmSubtasks.
func (s *Session) ToggleComplete(ctx context.Context, id string, confirmed bool) (*types.Task, error) {
	return s.engine.ToggleComplete(ctx, id, confirmed)
}

func (s *Session) applySettingsChange(ctx context.Context, task *types.Task, id string, updates map[string]interface{}, scope reconcile.Scope) (*types.Task, error) {
	newRule := task.Recurrence
	if v, ok := updates["recurrence"]; ok {
		if r, ok := v.(types.Recurrence); ok {
			newRule = r
		} else if str, ok := v.(string); ok {
			newRule = types.Recurrence(str)
		}
	}

	switch {
	case !task.IsRecurring():
		instances, err := s.engine.MakeRecurring(ctx, id, updates)
		if err != nil || len(instances) == 0 {
			return nil, err
		}
		return instances[0], nil
	case newRule == types.RecurrenceNone:
		return s.engine.StopRecurrence(ctx, id, updates, scope)
	default:
		instances, err := s.engine.RegenerateGroup(ctx, id, updates, scope)
		if err != nil || len(instances) == 0 {
			return nil, err
		}
		return instances[0], nil
	}
}

func (s *Session) isFirstInstance(task *types.Task) bool {
	first := recur.FindFirstInstance(s.engine.Tasks(), task.RecurrenceGroupID)
	return first != nil && first.ID == task.ID
}
