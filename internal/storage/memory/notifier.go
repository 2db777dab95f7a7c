package memory

import (
	"context"
	"sync"

	"github.com/mbaren/stride/internal/storage"
)

// Notifier is a loopback realtime channel for tests: events published with
// Publish are delivered to every active Subscribe loop.
type Notifier struct {
	mu   sync.Mutex
	subs []chan storage.ChangeEvent
}

var _ storage.Notifier = (*Notifier)(nil)

// NewNotifier creates an empty loopback notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Publish delivers an event to all subscribers. Non-blocking: events for
// slow subscribers are dropped, mirroring a realtime channel's at-most-once
// delivery.
func (n *Notifier) Publish(event storage.ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe blocks until ctx is cancelled, invoking fn for each event.
func (n *Notifier) Subscribe(ctx context.Context, fn func(storage.ChangeEvent)) error {
	ch := make(chan storage.ChangeEvent, 16)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		for i, c := range n.subs {
			if c == ch {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
		n.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-ch:
			fn(event)
		}
	}
}
