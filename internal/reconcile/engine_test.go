package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mbaren/stride/internal/recur"
	"github.com/mbaren/stride/internal/storage/memory"
	"github.com/mbaren/stride/internal/types"
)

var errNetwork = errors.New("network down")

// testClock is a manually advanced clock shared by a test's engine.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func newTestEngine(t *testing.T, batchSize int) (*Engine, *memory.Store, *testClock) {
	t.Helper()
	store := memory.New()
	clock := &testClock{now: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)}
	eng := New(store, Options{BatchSize: batchSize, Clock: clock.Now})
	return eng, store, clock
}

// seedGroup creates a weekly group of n instances starting at start and
// loads it into the engine.
func seedGroup(t *testing.T, eng *Engine, n int, start time.Time) []*types.Task {
	t.Helper()
	ids := 0
	template := &types.Task{
		Title:      "Gym",
		Recurrence: types.RecurrenceWeekly,
		Tags:       []string{"health"},
		CreatedAt:  date(2025, 1, 1),
	}
	instances := recur.CreateInstances(template, start, n, "g1", func() string {
		ids++
		return fmt.Sprintf("g1-%d", ids)
	}, date(2025, 1, 1))
	eng.ReplaceAll(instances)
	return instances
}

func taskIDs(tasks []*types.Task) map[string]bool {
	out := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		out[t.ID] = true
	}
	return out
}

func TestAddAssignsIDAndPersists(t *testing.T) {
	eng, store, _ := newTestEngine(t, 5)
	ctx := context.Background()

	added, err := eng.Add(ctx, &types.Task{Title: "Buy milk", Tags: []string{"Errands"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ID == "" {
		t.Fatal("Add did not assign an id")
	}
	if !types.EqualTags(added.Tags, []string{"errands"}) {
		t.Errorf("tags not normalized: %v", added.Tags)
	}
	if store.SaveCount() != 1 {
		t.Errorf("expected 1 save, got %d", store.SaveCount())
	}
	if len(eng.Tasks()) != 1 {
		t.Errorf("expected 1 task in list")
	}
}

func TestAddRollsBackOnPersistFailure(t *testing.T) {
	eng, store, _ := newTestEngine(t, 5)
	store.FailNextSave(errNetwork)

	if _, err := eng.Add(context.Background(), &types.Task{Title: "Buy milk"}); err == nil {
		t.Fatal("expected error from failed save")
	}
	if len(eng.Tasks()) != 0 {
		t.Errorf("failed add left task in list")
	}
}

func TestUpdateVanishedTaskIsNoOp(t *testing.T) {
	eng, _, _ := newTestEngine(t, 5)
	got, err := eng.Update(context.Background(), "ghost", map[string]interface{}{"title": "x"})
	if err != nil || got != nil {
		t.Errorf("update of vanished task: got (%v, %v), want (nil, nil)", got, err)
	}
}

func TestUpdateRollsBackOnPersistFailure(t *testing.T) {
	eng, store, _ := newTestEngine(t, 5)
	ctx := context.Background()
	added, err := eng.Add(ctx, &types.Task{Title: "Original"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	store.FailNextSave(errNetwork)
	if _, err := eng.Update(ctx, added.ID, map[string]interface{}{"title": "Changed"}); err == nil {
		t.Fatal("expected error from failed save")
	}
	if got := eng.Get(added.ID); got.Title != "Original" {
		t.Errorf("task not rolled back: title = %q", got.Title)
	}
}

func TestDeleteThenUndoRestoresState(t *testing.T) {
	eng, _, _ := newTestEngine(t, 5)
	ctx := context.Background()
	seedGroup(t, eng, 3, date(2025, 6, 1))
	before := eng.Tasks()

	if err := eng.Delete(ctx, []string{"g1-1", "g1-2"}, "g1-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(eng.Tasks()) != 1 {
		t.Fatalf("expected 1 task after delete, got %d", len(eng.Tasks()))
	}

	restored, err := eng.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(restored) != 2 {
		t.Fatalf("expected 2 restored tasks, got %d", len(restored))
	}

	after := eng.Tasks()
	if len(after) != len(before) {
		t.Fatalf("expected %d tasks after undo, got %d", len(before), len(after))
	}
	byID := make(map[string]*types.Task)
	for _, task := range after {
		byID[task.ID] = task
	}
	for _, want := range before {
		got, ok := byID[want.ID]
		if !ok {
			t.Fatalf("task %s missing after undo", want.ID)
		}
		if got.Title != want.Title || !got.DueDate.Equal(*want.DueDate) {
			t.Errorf("task %s fields differ after undo", want.ID)
		}
	}
}

func TestUndoIsSingleShot(t *testing.T) {
	eng, _, _ := newTestEngine(t, 5)
	ctx := context.Background()
	seedGroup(t, eng, 2, date(2025, 6, 1))

	if err := eng.Delete(ctx, []string{"g1-1"}, "g1-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := eng.Undo(ctx); err != nil {
		t.Fatalf("first Undo: %v", err)
	}
	if _, err := eng.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("second Undo: got %v, want ErrNothingToUndo", err)
	}
}

func TestUndoExpires(t *testing.T) {
	eng, _, clock := newTestEngine(t, 5)
	ctx := context.Background()
	seedGroup(t, eng, 2, date(2025, 6, 1))

	if err := eng.Delete(ctx, []string{"g1-1"}, "g1-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	clock.Advance(DefaultUndoExpiry + time.Second)
	if _, err := eng.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expired Undo: got %v, want ErrNothingToUndo", err)
	}
}

// Regression test for the snapshot-restore fix: a failed remote delete
// must leave the list exactly equal to its pre-delete value, restored
// from the snapshot captured before mutation.
func TestDeleteFailureRestoresExactPreDeleteList(t *testing.T) {
	eng, store, _ := newTestEngine(t, 5)
	ctx := context.Background()
	seedGroup(t, eng, 3, date(2025, 6, 1))
	before := eng.Tasks()

	store.FailNextDelete(errNetwork)
	if err := eng.Delete(ctx, []string{"g1-2"}, "g1-2"); err == nil {
		t.Fatal("expected error from failed delete")
	}

	after := eng.Tasks()
	if len(after) != len(before) {
		t.Fatalf("list length changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i].ID != before[i].ID || after[i].Title != before[i].Title {
			t.Errorf("task %d differs after rollback: %+v vs %+v", i, after[i], before[i])
		}
	}
	if _, err := eng.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("failed delete must not leave an undo buffer")
	}
}

func TestDeleteNothingIsSilentNoOp(t *testing.T) {
	eng, _, _ := newTestEngine(t, 5)
	if err := eng.Delete(context.Background(), []string{"ghost"}, "ghost"); err != nil {
		t.Errorf("deleting unknown ids: %v", err)
	}
}

func TestDeleteGroupModes(t *testing.T) {
	ctx := context.Background()

	t.Run("future mode keeps earlier and completed instances", func(t *testing.T) {
		eng, _, _ := newTestEngine(t, 5)
		seedGroup(t, eng, 4, date(2025, 6, 1)) // 6/1 6/8 6/15 6/22
		// Complete the third instance.
		if _, err := eng.ToggleComplete(ctx, "g1-3", false); err != nil {
			t.Fatalf("ToggleComplete: %v", err)
		}

		// Act on the second instance: future mode removes incomplete
		// tasks due on or after 6/8.
		if err := eng.DeleteGroup(ctx, "g1", GroupDeleteFuture, "g1-2"); err != nil {
			t.Fatalf("DeleteGroup: %v", err)
		}
		ids := taskIDs(eng.Tasks())
		if !ids["g1-1"] || !ids["g1-3"] {
			t.Errorf("future delete removed a protected instance: %v", ids)
		}
		if ids["g1-2"] || ids["g1-4"] {
			t.Errorf("future delete kept an eligible instance: %v", ids)
		}
	})

	t.Run("open mode removes all incomplete regardless of date", func(t *testing.T) {
		eng, _, _ := newTestEngine(t, 5)
		seedGroup(t, eng, 4, date(2025, 6, 1))
		if _, err := eng.ToggleComplete(ctx, "g1-1", false); err != nil {
			t.Fatalf("ToggleComplete: %v", err)
		}

		if err := eng.DeleteGroup(ctx, "g1", GroupDeleteOpen, "g1-2"); err != nil {
			t.Fatalf("DeleteGroup: %v", err)
		}
		ids := taskIDs(eng.Tasks())
		if len(ids) != 1 || !ids["g1-1"] {
			t.Errorf("open delete: want only completed g1-1 left, got %v", ids)
		}
	})
}

func TestCompleteWithIncompleteSubtasksNeedsConfirmation(t *testing.T) {
	eng, _, _ := newTestEngine(t, 5)
	ctx := context.Background()
	added, err := eng.Add(ctx, &types.Task{
		Title:    "Pack",
		Subtasks: []types.Subtask{{Text: "clothes"}, {Text: "passport", Completed: true}},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := eng.ToggleComplete(ctx, added.ID, false); !errors.Is(err, ErrConfirmSubtasks) {
		t.Fatalf("unconfirmed toggle: got %v, want ErrConfirmSubtasks", err)
	}
	if got := eng.Get(added.ID); got.Completed || got.Subtasks[0].Completed {
		t.Error("declined completion changed state")
	}

	done, err := eng.ToggleComplete(ctx, added.ID, true)
	if err != nil {
		t.Fatalf("confirmed toggle: %v", err)
	}
	if !done.Completed {
		t.Error("task not completed")
	}
	for _, s := range done.Subtasks {
		if !s.Completed {
			t.Errorf("subtask %q not completed", s.Text)
		}
	}
}

func TestUncompleteClearsCompletionUndo(t *testing.T) {
	eng, _, _ := newTestEngine(t, 5)
	ctx := context.Background()
	added, err := eng.Add(ctx, &types.Task{Title: "T"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := eng.ToggleComplete(ctx, added.ID, false); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := eng.ToggleComplete(ctx, added.ID, false); err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if _, err := eng.UndoComplete(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("undo after uncomplete: got %v, want ErrNothingToUndo", err)
	}
}

func TestUndoCompleteRestoresPreviousState(t *testing.T) {
	eng, _, _ := newTestEngine(t, 5)
	ctx := context.Background()
	added, err := eng.Add(ctx, &types.Task{
		Title:    "Pack",
		Subtasks: []types.Subtask{{Text: "clothes"}},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := eng.ToggleComplete(ctx, added.ID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}

	restored, err := eng.UndoComplete(ctx)
	if err != nil {
		t.Fatalf("UndoComplete: %v", err)
	}
	if restored.Completed || restored.Subtasks[0].Completed {
		t.Errorf("previous state not restored: %+v", restored)
	}
}

func TestAutoRenewalOnCompletingLastInstance(t *testing.T) {
	eng, _, _ := newTestEngine(t, 50)
	ctx := context.Background()
	instances := seedGroup(t, eng, 3, date(2025, 6, 1))
	last := instances[len(instances)-1] // due 6/15, IsLastInstance

	// Flip auto-renew on via the engine so state stays consistent.
	tasks := eng.Tasks()
	for _, task := range tasks {
		if task.ID == last.ID {
			task.AutoRenew = true
		}
	}
	eng.ReplaceAll(tasks)

	if _, err := eng.ToggleComplete(ctx, last.ID, false); err != nil {
		t.Fatalf("ToggleComplete: %v", err)
	}

	var renewed []*types.Task
	for _, task := range eng.Tasks() {
		if task.RecurrenceGroupID != "" && task.RecurrenceGroupID != "g1" {
			renewed = append(renewed, task)
		}
	}
	if len(renewed) != 50 {
		t.Fatalf("expected 50 renewed instances, got %d", len(renewed))
	}
	types.SortByDueDate(renewed)
	if !renewed[0].DueDate.Equal(date(2025, 6, 16)) {
		t.Errorf("renewal starts %v, want day after completed due date (2025-06-16)", renewed[0].DueDate)
	}
	lastCount := 0
	for _, task := range renewed {
		if task.IsLastInstance {
			lastCount++
		}
	}
	if lastCount != 1 {
		t.Errorf("renewed batch has %d last-instance markers, want 1", lastCount)
	}
}

func TestNoAutoRenewalOnNonLastInstance(t *testing.T) {
	eng, _, _ := newTestEngine(t, 50)
	ctx := context.Background()
	seedGroup(t, eng, 3, date(2025, 6, 1))

	tasks := eng.Tasks()
	for _, task := range tasks {
		task.AutoRenew = true
	}
	eng.ReplaceAll(tasks)

	if _, err := eng.ToggleComplete(ctx, "g1-1", false); err != nil {
		t.Fatalf("ToggleComplete: %v", err)
	}
	if n := len(eng.Tasks()); n != 3 {
		t.Errorf("completing a non-last instance renewed the group: %d tasks", n)
	}
}

// blockingStore holds Save open until released so a test can observe the
// engine mid-persist.
type blockingStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Save(ctx context.Context, tasks []*types.Task) error {
	close(s.entered)
	<-s.release
	return s.Store.Save(ctx, tasks)
}

func TestSavingIsObservableDuringPersist(t *testing.T) {
	store := &blockingStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	clock := &testClock{now: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)}
	eng := New(store, Options{BatchSize: 5, Clock: clock.Now})

	done := make(chan error, 1)
	go func() {
		_, err := eng.Add(context.Background(), &types.Task{Title: "Buy milk"})
		done <- err
	}()

	<-store.entered
	if !eng.Saving() {
		t.Error("Saving() = false while a save is in flight")
	}

	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("Add: %v", err)
	}
	if eng.Saving() {
		t.Error("Saving() = true after the save finished")
	}
}

func TestUndoCompleteVanishedTaskIsNoOp(t *testing.T) {
	eng, _, _ := newTestEngine(t, 5)
	ctx := context.Background()

	added, err := eng.Add(ctx, &types.Task{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := eng.ToggleComplete(ctx, added.ID, false); err != nil {
		t.Fatalf("ToggleComplete: %v", err)
	}

	// The task was deleted on another device and a reload dropped it.
	eng.ReplaceAll(nil)

	task, err := eng.UndoComplete(ctx)
	if err != nil {
		t.Fatalf("UndoComplete: %v", err)
	}
	if task != nil {
		t.Errorf("expected nil task for a vanished completion, got %+v", task)
	}
}
