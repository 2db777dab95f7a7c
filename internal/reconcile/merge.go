package reconcile

import (
	"context"

	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/types"
)

// MergeReload folds a background reload into the authoritative list.
//
// reloaded is the store's current incomplete set; remoteModified holds
// tasks fetched by id after realtime events (may include tasks completed
// on another device).
//
// Rules, in order:
//   - A reloaded task whose id sits in the recently-updated guard keeps
//     the local copy: the local edit raced the reload and wins.
//   - Other reloaded tasks are adopted as-is.
//   - A locally-known incomplete task absent from the reload but guarded
//     is kept (protects an optimistic add/edit the backend read replica
//     has not caught up with).
//   - An unguarded incomplete task absent from the reload is assumed
//     completed or deleted elsewhere and dropped, unless a supplemental
//     by-id fetch shows it still exists; the fetched copy is then adopted.
//   - Locally-held completed tasks untouched by the reload or the
//     remote-modified set are preserved as-is (completed tasks paginate
//     separately).
//   - Remote-modified tasks, including newly remotely-completed ones, are
//     merged in.
func (e *Engine) MergeReload(ctx context.Context, reloaded, remoteModified []*types.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.opts.Clock()
	reloadedByID := make(map[string]*types.Task, len(reloaded))
	for _, t := range reloaded {
		reloadedByID[t.ID] = t
	}
	modifiedByID := make(map[string]*types.Task, len(remoteModified))
	for _, t := range remoteModified {
		modifiedByID[t.ID] = t
	}

	var next []*types.Task
	var verifyIDs []string
	seen := make(map[string]bool, len(e.tasks))

	for _, local := range e.tasks {
		seen[local.ID] = true

		if local.Completed {
			if remote, ok := modifiedByID[local.ID]; ok && !e.guarded(local.ID, now) {
				next = append(next, remote.Clone())
			} else {
				next = append(next, local)
			}
			continue
		}

		if _, ok := reloadedByID[local.ID]; ok {
			if e.guarded(local.ID, now) {
				next = append(next, local) // local edit wins over the racing reload
			} else {
				next = append(next, reloadedByID[local.ID].Clone())
			}
			continue
		}

		// Incomplete locally but missing from the reload.
		if e.guarded(local.ID, now) {
			next = append(next, local)
			continue
		}
		if remote, ok := modifiedByID[local.ID]; ok {
			next = append(next, remote.Clone())
			continue
		}
		verifyIDs = append(verifyIDs, local.ID)
		next = append(next, local) // provisionally kept; dropped below if gone
	}

	// Supplemental by-id check for tasks that silently disappeared from
	// the incomplete set.
	if len(verifyIDs) > 0 {
		verified, err := e.store.LoadByIDs(ctx, verifyIDs)
		if err != nil {
			debug.Logf("reconcile: merge: by-id verify failed for %v: %v\n", verifyIDs, err)
			// Leave the provisional copies in place; the next reload retries.
		} else {
			verifiedByID := make(map[string]*types.Task, len(verified))
			for _, t := range verified {
				verifiedByID[t.ID] = t
			}
			kept := next[:0:0]
			for _, t := range next {
				inVerify := false
				for _, id := range verifyIDs {
					if t.ID == id {
						inVerify = true
						break
					}
				}
				if !inVerify {
					kept = append(kept, t)
					continue
				}
				if remote, ok := verifiedByID[t.ID]; ok {
					// Adopted even if it came back completed, matching
					// how remotely-completed tasks merge in above.
					kept = append(kept, remote.Clone())
				} else {
					debug.Logf("reconcile: merge: task %s gone remotely, dropping\n", t.ID)
				}
			}
			next = kept
		}
	}

	// Tasks new to this client: reloaded or remotely modified elsewhere.
	for _, t := range reloaded {
		if !seen[t.ID] {
			seen[t.ID] = true
			next = append(next, t.Clone())
		}
	}
	for _, t := range remoteModified {
		if !seen[t.ID] {
			seen[t.ID] = true
			next = append(next, t.Clone())
		}
	}

	e.tasks = next
}

// ReplaceAll swaps in a freshly loaded task list wholesale. Used for the
// initial full load, before any local edits exist.
func (e *Engine) ReplaceAll(tasks []*types.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = types.CloneTasks(tasks)
	e.lastPersisted = serializeTasks(e.tasks)
}
