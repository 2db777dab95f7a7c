// Package storage defines the remote store gateway for task persistence.
//
// The concrete network-backed implementation lives in the postgres
// sub-package; the memory sub-package provides an in-process backend for
// tests. This package holds the interface and value types referenced by
// both the backends and their consumers (internal/reconcile, cmd/stride).
package storage

import (
	"context"
	"errors"

	"github.com/mbaren/stride/internal/types"
)

// ErrNotFound is returned when a requested task does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrUnauthenticated is returned when no authenticated session is available.
// Callers treat this as a no-op condition, not a fault (the operation is
// logged and skipped).
var ErrUnauthenticated = errors.New("no authenticated session")

// ErrTimeout is returned when a load exceeds its deadline. Distinct from
// generic network failure: timeouts degrade quietly since they may
// self-resolve on the next reload.
var ErrTimeout = errors.New("store operation timed out")

// Gateway is the interface satisfied by *postgres.Store.
// Consumers depend on this interface rather than on the concrete type so
// that alternative implementations (memory backend, mocks) can be
// substituted.
//
// Save is an upsert keyed by task id and must treat an empty input as a
// safe no-op, never as "delete everything". All operations are idempotent,
// so replays after a reconnect are safe.
type Gateway interface {
	// LoadIncomplete returns every incomplete task for the current session.
	LoadIncomplete(ctx context.Context) ([]*types.Task, error)

	// LoadCompleted returns one page of completed tasks, newest first,
	// plus the total count of completed tasks.
	LoadCompleted(ctx context.Context, limit, offset int) ([]*types.Task, int, error)

	// LoadByIDs fetches specific tasks by id. Missing ids are simply
	// absent from the result, not an error.
	LoadByIDs(ctx context.Context, ids []string) ([]*types.Task, error)

	// Save upserts the given tasks by id. An empty slice is a no-op.
	Save(ctx context.Context, tasks []*types.Task) error

	// Delete removes the tasks with the given ids. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// GenerateID returns a new collision-free task identifier.
	GenerateID() string

	// Lifecycle
	Close() error
}
