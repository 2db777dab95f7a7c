package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/reconcile"
	"github.com/mbaren/stride/internal/storage"
	"github.com/mbaren/stride/internal/types"
)

// Reload timing defaults.
const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultLoadTimeout = 30 * time.Second
)

// ReloadOptions tunes the reload scheduler. Zero values take the defaults.
type ReloadOptions struct {
	Debounce    time.Duration
	LoadTimeout time.Duration
}

// Reloader folds remote state back into the engine. Triggers (realtime
// push, focus/wake) are debounced into a single reload; a full initial
// load in progress suppresses incremental reloads, and an in-flight
// incremental reload is never re-entered (singleflight).
type Reloader struct {
	engine *reconcile.Engine
	store  storage.Gateway
	opts   ReloadOptions

	group       singleflight.Group
	fullLoading atomic.Bool

	mu         sync.Mutex
	timer      *time.Timer
	pendingIDs map[string]bool // task ids touched by realtime events
}

// NewReloader creates a reload scheduler over the engine's gateway.
func NewReloader(engine *reconcile.Engine, store storage.Gateway, opts ReloadOptions) *Reloader {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	return &Reloader{
		engine:     engine,
		store:      store,
		opts:       opts,
		pendingIDs: make(map[string]bool),
	}
}

// InitialLoad performs the full load that seeds the engine. A timeout
// leaves the engine in a degraded but functional state (whatever list it
// already holds, usually empty) rather than blocking or alarming: the next
// reload may self-resolve. Other failures are returned.
func (r *Reloader) InitialLoad(ctx context.Context) error {
	r.fullLoading.Store(true)
	defer r.fullLoading.Store(false)

	ctx, cancel := context.WithTimeout(ctx, r.opts.LoadTimeout)
	defer cancel()

	tasks, err := r.store.LoadIncomplete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			debug.Logf("session: initial load timed out, continuing degraded\n")
			return nil
		}
		if errors.Is(err, storage.ErrUnauthenticated) {
			debug.Logf("session: initial load skipped, no session\n")
			return nil
		}
		return err
	}
	r.engine.ReplaceAll(tasks)
	return nil
}

// Trigger schedules a debounced incremental reload. Bursts of triggers
// (visibility change, focus, realtime push) collapse into one reload.
func (r *Reloader) Trigger(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	debug.Logf("session: reload trigger: %s\n", reason)
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.opts.Debounce, func() {
		r.ReloadNow(context.Background())
	})
}

// HandleChange processes one realtime change event. Events from other
// owners are ignored, as are events observed while our own save is in
// flight (we must not react to our own writes).
func (r *Reloader) HandleChange(event storage.ChangeEvent) {
	if !event.OwnerMatches {
		return
	}
	if r.engine.Saving() {
		debug.Logf("session: ignoring change event during own save (%s)\n", event.TaskID)
		return
	}
	if event.TaskID != "" {
		r.mu.Lock()
		r.pendingIDs[event.TaskID] = true
		r.mu.Unlock()
	}
	r.Trigger("realtime:" + string(event.Kind))
}

// Run subscribes to the notifier until ctx is cancelled. Blocking; run it
// in its own goroutine.
func (r *Reloader) Run(ctx context.Context, notifier storage.Notifier) error {
	return notifier.Subscribe(ctx, r.HandleChange)
}

// ReloadNow performs an incremental reload immediately. Concurrent calls
// coalesce; a full load in progress suppresses the reload entirely.
func (r *Reloader) ReloadNow(ctx context.Context) {
	if r.fullLoading.Load() {
		debug.Logf("session: reload suppressed, full load in progress\n")
		return
	}
	_, _, _ = r.group.Do("reload", func() (interface{}, error) {
		r.reload(ctx)
		return nil, nil
	})
}

func (r *Reloader) reload(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.LoadTimeout)
	defer cancel()

	reloaded, err := r.store.LoadIncomplete(ctx)
	if err != nil {
		// Every load failure degrades quietly: the current list stays
		// usable and the next trigger retries.
		debug.Logf("session: reload failed: %v\n", err)
		return
	}

	r.mu.Lock()
	ids := make([]string, 0, len(r.pendingIDs))
	for id := range r.pendingIDs {
		ids = append(ids, id)
	}
	r.pendingIDs = make(map[string]bool)
	r.mu.Unlock()

	var remoteModified []*types.Task
	if len(ids) > 0 {
		remoteModified, err = r.store.LoadByIDs(ctx, ids)
		if err != nil {
			debug.Logf("session: by-id reload failed for %v: %v\n", ids, err)
			remoteModified = nil
		}
	}

	r.engine.MergeReload(ctx, reloaded, remoteModified)
}
