package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"

	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/storage"
)

// Notifier delivers realtime change events over a dedicated LISTEN
// connection. The connection is separate from the pool: LISTEN ties the
// subscription to one session, and pooled connections get recycled.
type Notifier struct {
	dsn     string
	owner   string
	channel string
}

var _ storage.Notifier = (*Notifier)(nil)

// NewNotifier returns a notifier for the store's channel and owner.
func (s *Store) NewNotifier() *Notifier {
	return &Notifier{dsn: s.dsn, owner: s.owner, channel: s.channel}
}

// Subscribe listens for change events until ctx is cancelled, invoking fn
// for each one. Connection drops are retried with exponential backoff; the
// backoff resets after each successfully delivered notification.
func (n *Notifier) Subscribe(ctx context.Context, fn func(storage.ChangeEvent)) error {
	bo := backoff.WithContext(newListenBackoff(), ctx)

	for {
		err := n.listen(ctx, fn, bo)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		debug.Logf("notifier: connection lost: %v", err)

		next := bo.NextBackOff()
		if next == backoff.Stop {
			return fmt.Errorf("postgres: notifier: giving up: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next):
		}
	}
}

func (n *Notifier) listen(ctx context.Context, fn func(storage.ChangeEvent), bo backoff.BackOff) error {
	conn, err := pgx.Connect(ctx, n.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", n.channel, err)
	}
	debug.Logf("notifier: listening on %s", n.channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		bo.Reset()

		var event storage.ChangeEvent
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			debug.Warnf("notifier: bad payload %q: %v", notification.Payload, err)
			continue
		}
		event.OwnerMatches = event.Owner == n.owner
		fn(event)
	}
}

func newListenBackoff() backoff.BackOff {
	// No MaxElapsedTime: the daemon should keep trying to reconnect for as
	// long as it runs.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	return bo
}
