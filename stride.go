// Package stride provides a minimal public API for embedding the task
// engine in other Go programs.
//
// Most integrations only need a Gateway, an Engine, and a Session: open a
// store, seed the engine with a reload, and drive edits through the
// session. The cmd/stride CLI is a thin layer over exactly this surface.
package stride

import (
	"context"

	"github.com/mbaren/stride/internal/reconcile"
	"github.com/mbaren/stride/internal/session"
	"github.com/mbaren/stride/internal/storage"
	"github.com/mbaren/stride/internal/storage/postgres"
	"github.com/mbaren/stride/internal/types"
)

// Core types for working with tasks
type (
	Task       = types.Task
	Subtask    = types.Subtask
	Recurrence = types.Recurrence
	TaskFilter = types.TaskFilter
)

// Recurrence constants
const (
	RecurrenceNone      = types.RecurrenceNone
	RecurrenceDaily     = types.RecurrenceDaily
	RecurrenceWeekly    = types.RecurrenceWeekly
	RecurrenceMonthly   = types.RecurrenceMonthly
	RecurrenceQuarterly = types.RecurrenceQuarterly
	RecurrenceYearly    = types.RecurrenceYearly
	RecurrenceCustom    = types.RecurrenceCustom
)

// Reconciliation surface
type (
	Engine  = reconcile.Engine
	Session = session.Session
	Gateway = storage.Gateway
)

// StoreOptions configure OpenStore.
type StoreOptions = postgres.Options

// OpenStore connects to a hosted Postgres store.
func OpenStore(ctx context.Context, dsn string, opts StoreOptions) (Gateway, error) {
	return postgres.Open(ctx, dsn, opts)
}

// NewEngine creates a reconciliation engine with default tuning.
func NewEngine(store Gateway) *Engine {
	return reconcile.New(store, reconcile.Options{})
}

// NewSession wraps an engine with edit classification and pending-choice
// handling.
func NewSession(engine *Engine, store Gateway) *Session {
	return session.New(engine, store)
}
