package storage

import "context"

// ChangeKind identifies a realtime change event delivered by the store.
type ChangeKind string

// Change kinds
const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is one realtime notification from the store. Consumers must
// ignore events whose owner does not match the current session.
type ChangeEvent struct {
	Kind         ChangeKind `json:"kind"`
	TaskID       string     `json:"task_id,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	OwnerMatches bool       `json:"-"` // resolved against the session by the notifier
}

// Notifier delivers realtime change events. Subscribe blocks until ctx is
// cancelled, invoking fn for each event; transient connection failures are
// retried internally.
type Notifier interface {
	Subscribe(ctx context.Context, fn func(ChangeEvent)) error
}
