package recur

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbaren/stride/internal/types"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sequentialIDs returns an id source yielding t-1, t-2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("t-%d", n)
	}
}

func weeklyTemplate() *types.Task {
	return &types.Task{
		Title:      "Gym",
		Recurrence: types.RecurrenceWeekly,
		Subtasks:   []types.Subtask{{Text: "stretch", Completed: true}},
		Tags:       []string{"Health"},
	}
}

func TestCreateInstancesWeekly(t *testing.T) {
	instances := CreateInstances(weeklyTemplate(), date(2025, 1, 1), 3, "g1", sequentialIDs(), testNow)

	require.Len(t, instances, 3)
	assert.Equal(t, date(2025, 1, 1), *instances[0].DueDate)
	assert.Equal(t, date(2025, 1, 8), *instances[1].DueDate)
	assert.Equal(t, date(2025, 1, 15), *instances[2].DueDate)

	lastCount := 0
	for i, inst := range instances {
		assert.Equal(t, "g1", inst.RecurrenceGroupID)
		assert.False(t, inst.Completed)
		assert.False(t, inst.Subtasks[0].Completed, "generated subtasks start incomplete")
		assert.Equal(t, []string{"health"}, inst.Tags)
		assert.Equal(t, testNow, inst.LastModified)
		if inst.IsLastInstance {
			lastCount++
			assert.Equal(t, 2, i, "only the max-due-date instance is last")
		}
	}
	assert.Equal(t, 1, lastCount, "exactly one last instance")
}

func TestCreateInstancesStrictlyIncreasing(t *testing.T) {
	rules := []struct {
		name     string
		rec      types.Recurrence
		freq     types.CustomFrequency
		multiple int
	}{
		{"daily", types.RecurrenceDaily, "", 0},
		{"weekly", types.RecurrenceWeekly, "", 0},
		{"monthly", types.RecurrenceMonthly, "", 0},
		{"quarterly", types.RecurrenceQuarterly, "", 0},
		{"yearly", types.RecurrenceYearly, "", 0},
		{"custom days x3", types.RecurrenceCustom, types.FrequencyDays, 3},
		{"custom weeks", types.RecurrenceCustom, types.FrequencyWeeks, 0},
		{"custom months x2", types.RecurrenceCustom, types.FrequencyMonths, 2},
		{"custom years", types.RecurrenceCustom, types.FrequencyYears, 0},
	}
	for _, rule := range rules {
		t.Run(rule.name, func(t *testing.T) {
			template := &types.Task{
				Title:                "T",
				Recurrence:           rule.rec,
				CustomFrequency:      rule.freq,
				RecurrenceMultiplier: rule.multiple,
			}
			instances := CreateInstances(template, date(2025, 1, 31), 8, "g", sequentialIDs(), testNow)
			require.Len(t, instances, 8)
			for i := 1; i < len(instances); i++ {
				assert.True(t, instances[i-1].DueDate.Before(*instances[i].DueDate),
					"due dates must strictly increase: %v !< %v",
					instances[i-1].DueDate, instances[i].DueDate)
			}
		})
	}
}

func TestCreateInstancesMonthlyClampsToValidDay(t *testing.T) {
	template := &types.Task{Title: "Rent", Recurrence: types.RecurrenceMonthly}
	instances := CreateInstances(template, date(2025, 1, 31), 4, "g", sequentialIDs(), testNow)

	want := []time.Time{
		date(2025, 1, 31),
		date(2025, 2, 28), // clamped
		date(2025, 3, 31), // anchor day restored, no drift
		date(2025, 4, 30), // clamped
	}
	for i, w := range want {
		assert.Equal(t, w, *instances[i].DueDate, "instance %d", i)
	}
}

func TestCreateInstancesYearlyLeapDay(t *testing.T) {
	template := &types.Task{Title: "Leap", Recurrence: types.RecurrenceYearly}
	instances := CreateInstances(template, date(2024, 2, 29), 2, "g", sequentialIDs(), testNow)
	assert.Equal(t, date(2024, 2, 29), *instances[0].DueDate)
	assert.Equal(t, date(2025, 2, 28), *instances[1].DueDate)
}

func TestCreateInstancesMultiplier(t *testing.T) {
	template := &types.Task{Title: "T", Recurrence: types.RecurrenceDaily, RecurrenceMultiplier: 10}
	instances := CreateInstances(template, date(2025, 1, 1), 3, "g", sequentialIDs(), testNow)
	assert.Equal(t, date(2025, 1, 11), *instances[1].DueDate)
	assert.Equal(t, date(2025, 1, 21), *instances[2].DueDate)
}

func TestCreateInstancesDefaultBatchSize(t *testing.T) {
	instances := CreateInstances(weeklyTemplate(), date(2025, 1, 1), 0, "g", sequentialIDs(), testNow)
	assert.Len(t, instances, DefaultBatchSize)
}

func TestCreateInstancesPreservesCreatedAt(t *testing.T) {
	template := weeklyTemplate()
	template.CreatedAt = date(2024, 6, 1)
	instances := CreateInstances(template, date(2025, 1, 1), 2, "g", sequentialIDs(), testNow)
	for _, inst := range instances {
		assert.Equal(t, template.CreatedAt, inst.CreatedAt)
	}

	// Without a template CreatedAt, every instance takes now.
	instances = CreateInstances(weeklyTemplate(), date(2025, 1, 1), 2, "g", sequentialIDs(), testNow)
	for _, inst := range instances {
		assert.Equal(t, testNow, inst.CreatedAt)
	}
}

func group(dues ...time.Time) []*types.Task {
	tasks := make([]*types.Task, len(dues))
	for i := range dues {
		d := dues[i]
		tasks[i] = &types.Task{
			ID:                fmt.Sprintf("g1-%d", i),
			Title:             "T",
			Recurrence:        types.RecurrenceWeekly,
			RecurrenceGroupID: "g1",
			DueDate:           &d,
		}
	}
	return tasks
}

func TestFindFirstAndLastInstance(t *testing.T) {
	tasks := group(date(2025, 1, 8), date(2025, 1, 1), date(2025, 1, 15))
	tasks = append(tasks, &types.Task{ID: "other", RecurrenceGroupID: "g2", DueDate: func() *time.Time { d := date(2024, 1, 1); return &d }()})

	first := FindFirstInstance(tasks, "g1")
	require.NotNil(t, first)
	assert.Equal(t, date(2025, 1, 1), *first.DueDate)

	last := FindLastInstance(tasks, "g1")
	require.NotNil(t, last)
	assert.Equal(t, date(2025, 1, 15), *last.DueDate)
}

func TestFindInstanceSingletonGroup(t *testing.T) {
	tasks := group(date(2025, 1, 1))
	assert.Same(t, tasks[0], FindFirstInstance(tasks, "g1"))
	assert.Same(t, tasks[0], FindLastInstance(tasks, "g1"))
}

func TestFindInstanceTieBreak(t *testing.T) {
	d := date(2025, 1, 1)
	older := &types.Task{ID: "b", RecurrenceGroupID: "g1", DueDate: &d, CreatedAt: date(2024, 1, 1)}
	newer := &types.Task{ID: "a", RecurrenceGroupID: "g1", DueDate: &d, CreatedAt: date(2024, 6, 1)}

	assert.Same(t, older, FindFirstInstance([]*types.Task{newer, older}, "g1"),
		"first breaks due-date ties on lowest CreatedAt")
}

func TestFindInstanceEmptyGroup(t *testing.T) {
	assert.Nil(t, FindFirstInstance(group(date(2025, 1, 1)), "nope"))
	assert.Nil(t, FindFirstInstance(nil, ""))
}

func TestTasksToRemoveForRegeneration(t *testing.T) {
	tasks := group(date(2025, 1, 1), date(2025, 1, 8))
	tasks[0].Completed = true
	standalone := &types.Task{ID: "s", Title: "S"}
	all := append(tasks, standalone)

	remove := TasksToRemoveForRegeneration(all, "g1")
	assert.Len(t, remove, 2, "regeneration discards the entire series, completed included")
}

func TestExtendInstances(t *testing.T) {
	tasks := group(date(2025, 1, 1), date(2025, 1, 8), date(2025, 1, 15))
	tasks[2].IsLastInstance = true

	batch := ExtendInstances(tasks[2], tasks, 3, sequentialIDs(), testNow)
	require.Len(t, batch, 3)
	assert.Equal(t, date(2025, 1, 22), *batch[0].DueDate, "extension continues one period after the last due date")
	assert.Equal(t, date(2025, 2, 5), *batch[2].DueDate)
	for _, inst := range batch {
		assert.Equal(t, "g1", inst.RecurrenceGroupID, "extension reuses the group id")
	}
	assert.True(t, batch[2].IsLastInstance)
}

func TestExtendInstancesNonRecurring(t *testing.T) {
	standalone := &types.Task{ID: "s", Title: "S"}
	assert.Nil(t, ExtendInstances(standalone, []*types.Task{standalone}, 3, sequentialIDs(), testNow))
}

func TestEligibilityPolicy(t *testing.T) {
	now := date(2025, 6, 15)
	past := date(2025, 6, 1)
	today := date(2025, 6, 15)
	future := date(2025, 7, 1)

	tests := []struct {
		name   string
		task   types.Task
		policy EligibilityPolicy
		want   bool
	}{
		{"future incomplete", types.Task{DueDate: &future}, DueTodayOrIncomplete, true},
		{"due today", types.Task{DueDate: &today}, DueTodayOrIncomplete, true},
		{"past incomplete", types.Task{DueDate: &past}, DueTodayOrIncomplete, true},
		{"past completed", types.Task{DueDate: &past, Completed: true}, DueTodayOrIncomplete, false},
		{"future completed", types.Task{DueDate: &future, Completed: true}, DueTodayOrIncomplete, true},
		{"no due date incomplete", types.Task{}, DueTodayOrIncomplete, true},
		{"past incomplete, future-only", types.Task{DueDate: &past}, FutureOnly, false},
		{"future completed, future-only", types.Task{DueDate: &future, Completed: true}, FutureOnly, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Eligible(&tt.task, now))
		})
	}
}
