// Package memory provides an in-process Gateway backend.
//
// It backs the engine unit tests and the offline mode. Fault injection
// hooks (FailNextSave, FailNextDelete, FailNextLoad) let tests exercise the
// rollback paths without a network.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mbaren/stride/internal/storage"
	"github.com/mbaren/stride/internal/types"
)

// Store is an in-memory Gateway implementation. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	tasks  map[string]*types.Task
	nextID int

	failSave   error
	failDelete error
	failLoad   error

	saveCount   int
	deleteCount int
}

var _ storage.Gateway = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tasks: make(map[string]*types.Task)}
}

// Seed inserts tasks directly, bypassing Save bookkeeping. Test setup only.
func (s *Store) Seed(tasks ...*types.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
	}
}

// FailNextSave makes the next Save call return err.
func (s *Store) FailNextSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSave = err
}

// FailNextDelete makes the next Delete call return err.
func (s *Store) FailNextDelete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = err
}

// FailNextLoad makes the next load call return err.
func (s *Store) FailNextLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLoad = err
}

// SaveCount returns how many successful Save calls have been made.
func (s *Store) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCount
}

// LoadIncomplete returns every incomplete task sorted by due date.
func (s *Store) LoadIncomplete(ctx context.Context) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeLoadErr(); err != nil {
		return nil, err
	}
	var out []*types.Task
	for _, t := range s.tasks {
		if !t.Completed {
			out = append(out, t.Clone())
		}
	}
	types.SortByDueDate(out)
	return out, nil
}

// LoadCompleted returns one page of completed tasks, most recently
// modified first, plus the total completed count.
func (s *Store) LoadCompleted(ctx context.Context, limit, offset int) ([]*types.Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeLoadErr(); err != nil {
		return nil, 0, err
	}
	var all []*types.Task
	for _, t := range s.tasks {
		if t.Completed {
			all = append(all, t.Clone())
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].LastModified.Equal(all[j].LastModified) {
			return all[i].LastModified.After(all[j].LastModified)
		}
		return all[i].ID < all[j].ID
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// LoadByIDs fetches tasks by id; missing ids are absent from the result.
func (s *Store) LoadByIDs(ctx context.Context, ids []string) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeLoadErr(); err != nil {
		return nil, err
	}
	var out []*types.Task
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// Save upserts tasks by id. An empty slice is a safe no-op.
func (s *Store) Save(ctx context.Context, tasks []*types.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failSave; err != nil {
		s.failSave = nil
		return err
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
	}
	s.saveCount++
	return nil
}

// Delete removes tasks by id. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failDelete; err != nil {
		s.failDelete = nil
		return err
	}
	for _, id := range ids {
		delete(s.tasks, id)
	}
	s.deleteCount++
	return nil
}

// GenerateID returns a deterministic sequential id (mem-1, mem-2, ...).
func (s *Store) GenerateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("mem-%d", s.nextID)
}

// Close is a no-op for the memory backend.
func (s *Store) Close() error { return nil }

// takeLoadErr consumes a pending injected load error. Caller holds the lock.
func (s *Store) takeLoadErr() error {
	err := s.failLoad
	s.failLoad = nil
	return err
}
