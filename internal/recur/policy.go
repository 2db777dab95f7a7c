package recur

import (
	"time"

	"github.com/mbaren/stride/internal/types"
)

// EligibilityPolicy decides which group members a propagated edit or a
// partial regeneration touches ("future-eligible" siblings). The predicate
// is deliberately configurable: the default was inferred from observed
// behavior, not derived from first principles.
type EligibilityPolicy string

// Eligibility policies
const (
	// DueTodayOrIncomplete treats an instance as eligible when its due
	// date is today or later, or it is incomplete regardless of date.
	// Incomplete overdue instances are regenerated; completed past ones
	// are kept. This is the default.
	DueTodayOrIncomplete EligibilityPolicy = "due-today-or-incomplete"

	// FutureOnly treats only instances due today or later as eligible,
	// ignoring completion state.
	FutureOnly EligibilityPolicy = "future-only"
)

// IsValid checks if the policy is a known value.
func (p EligibilityPolicy) IsValid() bool {
	switch p {
	case DueTodayOrIncomplete, FutureOnly:
		return true
	}
	return false
}

// Eligible reports whether the instance is future-eligible under the
// policy at the calendar date of now. Instances without a due date count
// as eligible only while incomplete.
func (p EligibilityPolicy) Eligible(t *types.Task, now time.Time) bool {
	today := types.DateOf(now)
	dueTodayOrLater := t.DueDate != nil && !t.DueDate.Before(today)
	switch p {
	case FutureOnly:
		return dueTodayOrLater
	default:
		return dueTodayOrLater || !t.Completed
	}
}
