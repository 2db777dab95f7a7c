// Package reconcile implements the client-side task reconciliation engine.
//
// The Engine exclusively owns the authoritative in-memory task list for the
// lifetime of a session. Local edits apply synchronously and optimistically;
// persistence is attempted afterwards and rolled back to a pre-operation
// snapshot on failure. A short "recently updated" guard window protects
// fresh local edits from being clobbered by a background reload that
// started before the edit but resolved after it. This is a heuristic, not
// a lock: it trades a small staleness window for simplicity over a full
// versioning protocol.
//
// All mutations of the list go through Engine entry points; no other
// component touches it.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/recur"
	"github.com/mbaren/stride/internal/storage"
	"github.com/mbaren/stride/internal/types"
)

// ErrUpdateConflict is returned by recurring-edit entry points when the
// caller must first resolve the regeneration scope (see internal/session).
var ErrUpdateConflict = errors.New("recurrence edit requires a scope choice")

// ErrConfirmSubtasks is returned when completing a task with incomplete
// subtasks without explicit confirmation. The caller re-issues the toggle
// with confirmation; declining simply aborts.
var ErrConfirmSubtasks = errors.New("task has incomplete subtasks")

// ErrNothingToUndo is returned when no undo buffer is pending or it has
// expired.
var ErrNothingToUndo = errors.New("nothing to undo")

// Defaults for the engine's timing knobs.
const (
	DefaultGuardWindow = 2 * time.Second
	DefaultUndoExpiry  = 3 * time.Second
)

// Options tunes the engine. Zero values take the defaults above.
type Options struct {
	GuardWindow time.Duration           // recently-updated protection window
	UndoExpiry  time.Duration           // delete-undo lifetime
	BatchSize   int                     // recurring generation batch size
	Policy      recur.EligibilityPolicy // future-eligible predicate
	Clock       func() time.Time        // test hook; defaults to time.Now
}

// Engine owns the authoritative task list and reconciles it against the
// remote store.
type Engine struct {
	mu    sync.Mutex
	store storage.Gateway
	opts  Options

	tasks           []*types.Task
	recentlyUpdated map[string]time.Time
	deleteUndo      *deleteUndo
	completeUndo    *completeUndo

	// saving guards against reacting to our own in-flight writes when a
	// realtime event arrives mid-save. Atomic so it is readable while
	// persist holds mu across the store call.
	saving atomic.Bool

	// lastPersisted is the serialized form of the last successfully saved
	// list, used to skip no-op persistence.
	lastPersisted string
}

// New creates an engine over the given gateway.
func New(store storage.Gateway, opts Options) *Engine {
	if opts.GuardWindow <= 0 {
		opts.GuardWindow = DefaultGuardWindow
	}
	if opts.UndoExpiry <= 0 {
		opts.UndoExpiry = DefaultUndoExpiry
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = recur.DefaultBatchSize
	}
	if !opts.Policy.IsValid() {
		opts.Policy = recur.DueTodayOrIncomplete
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		store:           store,
		opts:            opts,
		recentlyUpdated: make(map[string]time.Time),
	}
}

// Tasks returns a deep copy of the authoritative list. Callers never see
// or mutate the engine's own structures.
func (e *Engine) Tasks() []*types.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.CloneTasks(e.tasks)
}

// Get returns a copy of the task with the given id, or nil if absent.
func (e *Engine) Get(id string) *types.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t := e.find(id); t != nil {
		return t.Clone()
	}
	return nil
}

// Saving reports whether a persistence call is in flight. The realtime
// handler uses this to ignore the engine's own writes, so it must not
// take the engine lock: the save holds it.
func (e *Engine) Saving() bool {
	return e.saving.Load()
}

// Add creates a single non-recurring task: fresh id, defaults, normalized
// tags, appended to the list, then persisted. On persistence failure the
// task is removed again and the error returned.
func (e *Engine) Add(ctx context.Context, task *types.Task) (*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.opts.Clock()
	t := task.Clone()
	t.ID = e.store.GenerateID()
	t.Recurrence = types.RecurrenceNone
	t.RecurrenceGroupID = ""
	t.IsLastInstance = false
	t.SetDefaults(now)
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}

	e.tasks = append(e.tasks, t)
	e.markUpdated(t.ID, now)

	if err := e.persist(ctx, "add", t.ID); err != nil {
		e.tasks = e.tasks[:len(e.tasks)-1]
		return nil, err
	}
	return t.Clone(), nil
}

// AddRecurring generates a full instance batch from the template and
// appends it. The template carries the recurrence rule; the group id is
// freshly generated. Returns the created instances.
func (e *Engine) AddRecurring(ctx context.Context, template *types.Task, start time.Time) ([]*types.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if template.Recurrence == types.RecurrenceNone {
		return nil, fmt.Errorf("add recurring: template has no recurrence rule")
	}
	now := e.opts.Clock()
	groupID := e.store.GenerateID()
	tpl := template.Clone()
	tpl.RecurrenceGroupID = groupID
	tpl.SetDefaults(now)
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("add recurring: %w", err)
	}
	instances := recur.CreateInstances(tpl, start, e.opts.BatchSize, groupID, e.store.GenerateID, now)

	snapshot := e.tasks
	e.tasks = append(e.tasks, instances...)
	for _, inst := range instances {
		e.markUpdated(inst.ID, now)
	}

	if err := e.persist(ctx, "add-recurring", groupID); err != nil {
		e.tasks = snapshot
		return nil, err
	}
	return types.CloneTasks(instances), nil
}

// find returns the engine's own task for id. Caller holds the lock.
func (e *Engine) find(id string) *types.Task {
	for _, t := range e.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// markUpdated records a local edit and sweeps expired guard entries.
// Eviction happens on every touch rather than on a timer so the guard
// stays a pure function of now. Caller holds the lock.
func (e *Engine) markUpdated(id string, now time.Time) {
	for k, ts := range e.recentlyUpdated {
		if now.Sub(ts) > e.opts.GuardWindow {
			delete(e.recentlyUpdated, k)
		}
	}
	e.recentlyUpdated[id] = now
}

// guarded reports whether the id has a live recently-updated entry,
// sweeping expired entries first. Caller holds the lock.
func (e *Engine) guarded(id string, now time.Time) bool {
	ts, ok := e.recentlyUpdated[id]
	if !ok {
		return false
	}
	if now.Sub(ts) > e.opts.GuardWindow {
		delete(e.recentlyUpdated, id)
		return false
	}
	return true
}

// persist upserts the full list. A serialized snapshot of the last
// successful save lets us skip byte-identical no-op saves. Auth errors
// degrade to a logged no-op per the error taxonomy; everything else is
// returned for the caller to roll back. Caller holds the lock.
func (e *Engine) persist(ctx context.Context, op string, ids ...string) error {
	serialized := serializeTasks(e.tasks)
	if serialized == e.lastPersisted {
		return nil
	}

	e.saving.Store(true)
	err := e.store.Save(ctx, e.tasks)
	e.saving.Store(false)

	if err != nil {
		if errors.Is(err, storage.ErrUnauthenticated) {
			debug.Logf("reconcile: %s: skipped save, no session (ids=%v)\n", op, ids)
			return nil
		}
		debug.Logf("reconcile: %s: save failed for %v: %v\n", op, ids, err)
		return fmt.Errorf("%s: persist: %w", op, err)
	}
	e.lastPersisted = serialized
	return nil
}

func serializeTasks(tasks []*types.Task) string {
	b, err := json.Marshal(tasks)
	if err != nil {
		// Tasks contain only marshalable fields; treat failure as "changed".
		return ""
	}
	return string(b)
}
