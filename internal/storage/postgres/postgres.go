// Package postgres provides the Postgres-backed task store.
//
// Tasks live in a single table keyed by id and scoped by owner. A trigger
// publishes change notifications on the configured channel so that other
// devices logged into the same account can reconcile in near-realtime.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/storage"
	"github.com/mbaren/stride/internal/types"
)

const (
	tasksTable     = "tasks"
	defaultChannel = "stride_changes"
)

// Store implements storage.Gateway backed by Postgres.
type Store struct {
	pool    *pgxpool.Pool
	dsn     string
	owner   string
	channel string
}

var _ storage.Gateway = (*Store)(nil)

// Options configure a Store.
type Options struct {
	// Owner scopes every query; required.
	Owner string
	// Channel is the LISTEN/NOTIFY channel name.
	Channel string
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if opts.Owner == "" {
		return nil, storage.ErrUnauthenticated
	}
	if opts.Channel == "" {
		opts.Channel = defaultChannel
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	s := &Store{pool: pool, dsn: dsn, owner: opts.Owner, channel: opts.Channel}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tasks table and its notify trigger if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tasksTable + ` (
    id                    TEXT PRIMARY KEY,
    owner                 TEXT NOT NULL,
    title                 TEXT NOT NULL DEFAULT '',
    due_date              DATE,
    completed             BOOLEAN NOT NULL DEFAULT FALSE,
    subtasks              JSONB,
    tags                  JSONB,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_modified         TIMESTAMPTZ NOT NULL DEFAULT now(),
    recurrence            TEXT NOT NULL DEFAULT '',
    recurrence_group_id   TEXT NOT NULL DEFAULT '',
    recurrence_multiplier INTEGER NOT NULL DEFAULT 0,
    custom_frequency      TEXT NOT NULL DEFAULT '',
    is_last_instance      BOOLEAN NOT NULL DEFAULT FALSE,
    auto_renew            BOOLEAN NOT NULL DEFAULT FALSE
)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner_completed ON ` + tasksTable + ` (owner, completed)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_group ON ` + tasksTable + ` (recurrence_group_id) WHERE recurrence_group_id <> ''`,

		`CREATE OR REPLACE FUNCTION ` + tasksTable + `_notify() RETURNS trigger AS $fn$
DECLARE
    rec RECORD;
    kind TEXT;
BEGIN
    IF TG_OP = 'DELETE' THEN
        rec := OLD;
        kind := 'delete';
    ELSIF TG_OP = 'INSERT' THEN
        rec := NEW;
        kind := 'insert';
    ELSE
        rec := NEW;
        kind := 'update';
    END IF;
    PERFORM pg_notify('` + s.channel + `',
        json_build_object('kind', kind, 'task_id', rec.id, 'owner', rec.owner)::text);
    RETURN rec;
END;
$fn$ LANGUAGE plpgsql`,

		`DROP TRIGGER IF EXISTS ` + tasksTable + `_notify_trigger ON ` + tasksTable,
		`CREATE TRIGGER ` + tasksTable + `_notify_trigger
    AFTER INSERT OR UPDATE OR DELETE ON ` + tasksTable + `
    FOR EACH ROW EXECUTE FUNCTION ` + tasksTable + `_notify()`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

// LoadIncomplete returns every incomplete task for the owner.
func (s *Store) LoadIncomplete(ctx context.Context) ([]*types.Task, error) {
	rows, err := s.pool.Query(ctx, selectColumns()+`
FROM `+tasksTable+` WHERE owner = $1 AND NOT completed
ORDER BY due_date NULLS LAST, created_at`, s.owner)
	if err != nil {
		return nil, wrapErr("load incomplete", err)
	}
	return collectTasks(rows)
}

// LoadCompleted returns one page of completed tasks, newest first, and the
// total completed count.
func (s *Store) LoadCompleted(ctx context.Context, limit, offset int) ([]*types.Task, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+tasksTable+` WHERE owner = $1 AND completed`, s.owner).Scan(&total)
	if err != nil {
		return nil, 0, wrapErr("count completed", err)
	}

	rows, err := s.pool.Query(ctx, selectColumns()+`
FROM `+tasksTable+` WHERE owner = $1 AND completed
ORDER BY last_modified DESC LIMIT $2 OFFSET $3`, s.owner, limit, offset)
	if err != nil {
		return nil, 0, wrapErr("load completed", err)
	}

	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// LoadByIDs fetches specific tasks. Missing ids are absent from the result.
func (s *Store) LoadByIDs(ctx context.Context, ids []string) ([]*types.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, selectColumns()+`
FROM `+tasksTable+` WHERE owner = $1 AND id = ANY($2)`, s.owner, ids)
	if err != nil {
		return nil, wrapErr("load by ids", err)
	}
	return collectTasks(rows)
}

// Save upserts the given tasks by id. An empty slice is a no-op.
func (s *Store) Save(ctx context.Context, tasks []*types.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range tasks {
		subtasksJSON, err := json.Marshal(t.Subtasks)
		if err != nil {
			return fmt.Errorf("postgres: marshal subtasks for %s: %w", t.ID, err)
		}
		tagsJSON, err := json.Marshal(t.Tags)
		if err != nil {
			return fmt.Errorf("postgres: marshal tags for %s: %w", t.ID, err)
		}
		batch.Queue(`
INSERT INTO `+tasksTable+` (
    id, owner, title, due_date, completed, subtasks, tags,
    created_at, last_modified,
    recurrence, recurrence_group_id, recurrence_multiplier, custom_frequency,
    is_last_instance, auto_renew
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    due_date = EXCLUDED.due_date,
    completed = EXCLUDED.completed,
    subtasks = EXCLUDED.subtasks,
    tags = EXCLUDED.tags,
    last_modified = EXCLUDED.last_modified,
    recurrence = EXCLUDED.recurrence,
    recurrence_group_id = EXCLUDED.recurrence_group_id,
    recurrence_multiplier = EXCLUDED.recurrence_multiplier,
    custom_frequency = EXCLUDED.custom_frequency,
    is_last_instance = EXCLUDED.is_last_instance,
    auto_renew = EXCLUDED.auto_renew`,
			t.ID, s.owner, t.Title, t.DueDate, t.Completed, subtasksJSON, tagsJSON,
			t.CreatedAt, t.LastModified,
			string(t.Recurrence), t.RecurrenceGroupID, t.RecurrenceMultiplier, string(t.CustomFrequency),
			t.IsLastInstance, t.AutoRenew)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range tasks {
		if _, err := results.Exec(); err != nil {
			return wrapErr("save", err)
		}
	}
	return nil
}

// Delete removes the tasks with the given ids. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM `+tasksTable+` WHERE owner = $1 AND id = ANY($2)`, s.owner, ids)
	if err != nil {
		return wrapErr("delete", err)
	}
	return nil
}

// GenerateID returns a new random task identifier.
func (s *Store) GenerateID() string {
	return uuid.NewString()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// SaveWithRetry saves tasks, retrying transient failures with exponential
// backoff until ctx is cancelled or the backoff gives up.
func (s *Store) SaveWithRetry(ctx context.Context, tasks []*types.Task) error {
	bo := backoff.WithContext(newSaveBackoff(), ctx)
	return backoff.Retry(func() error {
		err := s.Save(ctx, tasks)
		if errors.Is(err, storage.ErrUnauthenticated) {
			return backoff.Permanent(err)
		}
		if err != nil {
			debug.Logf("save retry: %v", err)
		}
		return err
	}, bo)
}

const saveRetryMaxElapsed = 15 * time.Second

func newSaveBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = saveRetryMaxElapsed
	return bo
}

func wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("postgres: %s: %w", op, storage.ErrTimeout)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

func selectColumns() string {
	return `SELECT id, title, due_date, completed, subtasks, tags,
       created_at, last_modified,
       recurrence, recurrence_group_id, recurrence_multiplier, custom_frequency,
       is_last_instance, auto_renew`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var (
		t            types.Task
		due          *time.Time
		subtasksJSON []byte
		tagsJSON     []byte
		recurrence   string
		frequency    string
	)

	err := row.Scan(
		&t.ID, &t.Title, &due, &t.Completed, &subtasksJSON, &tagsJSON,
		&t.CreatedAt, &t.LastModified,
		&recurrence, &t.RecurrenceGroupID, &t.RecurrenceMultiplier, &frequency,
		&t.IsLastInstance, &t.AutoRenew,
	)
	if err != nil {
		return nil, err
	}

	if due != nil {
		d := types.DateOf(*due)
		t.DueDate = &d
	}
	t.Recurrence = types.Recurrence(recurrence)
	t.CustomFrequency = types.CustomFrequency(frequency)

	if len(subtasksJSON) > 0 {
		if err := json.Unmarshal(subtasksJSON, &t.Subtasks); err != nil {
			return nil, fmt.Errorf("unmarshal subtasks for %s: %w", t.ID, err)
		}
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &t.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags for %s: %w", t.ID, err)
		}
	}

	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*types.Task, error) {
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
