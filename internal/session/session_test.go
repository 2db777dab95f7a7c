package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mbaren/stride/internal/reconcile"
	"github.com/mbaren/stride/internal/recur"
	"github.com/mbaren/stride/internal/storage/memory"
	"github.com/mbaren/stride/internal/types"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestSession(t *testing.T) (*Session, *memory.Store) {
	t.Helper()
	store := memory.New()
	engine := reconcile.New(store, reconcile.Options{
		BatchSize: 5,
		Clock:     func() time.Time { return testNow },
	})
	return New(engine, store), store
}

// seedWeekly loads a 3-instance weekly group g1 starting 6/1.
func seedWeekly(t *testing.T, s *Session) {
	t.Helper()
	n := 0
	template := &types.Task{Title: "Gym", Recurrence: types.RecurrenceWeekly}
	instances := recur.CreateInstances(template, date(2025, 6, 1), 3, "g1", func() string {
		n++
		return fmt.Sprintf("g1-%d", n)
	}, testNow)
	s.Engine().ReplaceAll(instances)
}

func TestUpdateVanishedTaskIsNoOp(t *testing.T) {
	s, _ := newTestSession(t)
	got, err := s.Update(context.Background(), "ghost", map[string]interface{}{"title": "x"},
		reconcile.UpdateOptions{}, "")
	if got != nil || err != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", got, err)
	}
}

func TestPlainEditOnStandaloneTask(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	added, err := s.Engine().Add(ctx, &types.Task{Title: "Old"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Update(ctx, added.ID, map[string]interface{}{"title": "New"},
		reconcile.UpdateOptions{}, "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "New" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestSettingsChangeOnNonFirstInstanceSuspends(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	seedWeekly(t, s)
	before := s.Engine().Tasks()

	_, err := s.Update(ctx, "g1-2", map[string]interface{}{"recurrence": types.RecurrenceMonthly},
		reconcile.UpdateOptions{}, "")
	if !errors.Is(err, ErrChoiceRequired) {
		t.Fatalf("got %v, want ErrChoiceRequired", err)
	}
	if s.Pending() != "g1-2" {
		t.Errorf("pending = %q, want g1-2", s.Pending())
	}
	// No mutation until resolved.
	after := s.Engine().Tasks()
	if len(after) != len(before) {
		t.Fatalf("suspended edit mutated the list")
	}
	for i := range before {
		if after[i].Recurrence != before[i].Recurrence {
			t.Errorf("suspended edit changed task %s", after[i].ID)
		}
	}
}

func TestResolveAppliesSuspendedEdit(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	seedWeekly(t, s)

	if _, err := s.Update(ctx, "g1-2", map[string]interface{}{"recurrence": types.RecurrenceMonthly},
		reconcile.UpdateOptions{}, ""); !errors.Is(err, ErrChoiceRequired) {
		t.Fatalf("got %v, want ErrChoiceRequired", err)
	}
	if _, err := s.Resolve(ctx, reconcile.ScopeAll); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Pending() != "" {
		t.Error("pending edit not consumed")
	}
	for _, task := range s.Engine().Tasks() {
		if task.Recurrence != types.RecurrenceMonthly {
			t.Errorf("task %s not regenerated: %s", task.ID, task.Recurrence)
		}
	}
}

func TestCancelDropsSuspendedEdit(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	seedWeekly(t, s)

	_, _ = s.Update(ctx, "g1-2", map[string]interface{}{"recurrence": types.RecurrenceDaily},
		reconcile.UpdateOptions{}, "")
	s.Cancel()
	if s.Pending() != "" {
		t.Error("Cancel left a pending edit")
	}
	if _, err := s.Resolve(ctx, reconcile.ScopeAll); !errors.Is(err, ErrNoPendingChoice) {
		t.Errorf("Resolve after Cancel: got %v, want ErrNoPendingChoice", err)
	}
}

func TestSettingsChangeOnFirstInstanceRegeneratesImmediately(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	seedWeekly(t, s)

	if _, err := s.Update(ctx, "g1-1", map[string]interface{}{"recurrence": types.RecurrenceMonthly},
		reconcile.UpdateOptions{}, ""); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for _, task := range s.Engine().Tasks() {
		if task.Recurrence != types.RecurrenceMonthly {
			t.Errorf("first-instance settings change did not regenerate: %s", task.ID)
		}
	}
}

func TestDragMoveOnlyChangesDueDate(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	seedWeekly(t, s)

	moved := date(2025, 6, 20)
	got, err := s.Update(ctx, "g1-2", map[string]interface{}{
		"due_date": moved,
		"title":    "Should not apply",
	}, reconcile.UpdateOptions{DragMove: true}, "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.DueDate.Equal(moved) {
		t.Errorf("due date not moved: %v", got.DueDate)
	}
	if got.Title != "Gym" {
		t.Errorf("drag move applied non-date field: %q", got.Title)
	}
	// Siblings untouched: no propagation, no regeneration.
	for _, task := range s.Engine().Tasks() {
		if task.ID != "g1-2" && task.Title != "Gym" {
			t.Errorf("drag move propagated to sibling %s", task.ID)
		}
	}
	if n := len(s.Engine().Tasks()); n != 3 {
		t.Errorf("drag move regenerated the group: %d tasks", n)
	}
}

func TestSharedFieldEditPropagates(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	seedWeekly(t, s)

	if _, err := s.Update(ctx, "g1-1", map[string]interface{}{"title": "Gym v2"},
		reconcile.UpdateOptions{}, ""); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for _, task := range s.Engine().Tasks() {
		if task.Title != "Gym v2" {
			t.Errorf("title edit did not propagate to %s", task.ID)
		}
	}
}

func TestAddRecurrenceToStandaloneTask(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	due := date(2025, 7, 1)
	added, err := s.Engine().Add(ctx, &types.Task{Title: "Water plants", DueDate: &due})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := s.Update(ctx, added.ID, map[string]interface{}{"recurrence": types.RecurrenceDaily},
		reconcile.UpdateOptions{}, ""); err != nil {
		t.Fatalf("Update: %v", err)
	}

	tasks := s.Engine().Tasks()
	if len(tasks) != 5 {
		t.Fatalf("expected a 5-instance series, got %d tasks", len(tasks))
	}
	types.SortByDueDate(tasks)
	if !tasks[0].DueDate.Equal(due) {
		t.Errorf("series starts %v, want the task's due date", tasks[0].DueDate)
	}
	if s.Engine().Get(added.ID) != nil {
		t.Error("original standalone task not replaced")
	}
}

func TestClearRecurrenceDetachesInstance(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	seedWeekly(t, s)

	got, err := s.Update(ctx, "g1-1", map[string]interface{}{"recurrence": types.RecurrenceNone},
		reconcile.UpdateOptions{}, "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.IsRecurring() {
		t.Errorf("task still recurring: %+v", got)
	}
	if n := len(s.Engine().Tasks()); n != 1 {
		t.Errorf("expected siblings removed, got %d tasks", n)
	}
}
