// Package queue manages the same-day service queue: one partition of
// positions per (provider, date), a sequencer that hands out collision-free
// positions, and wait-time estimation for waiting entries.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status is the queue entry lifecycle.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var validTransitions = map[Status][]Status{
	StatusWaiting:    {StatusInProgress},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal queue transition.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Entry is one booking's place in a provider's daily queue. Position is a
// stable historical identifier: it never changes after assignment, only
// the wait estimate is recomputed as the queue advances.
type Entry struct {
	ID                   uuid.UUID
	BookingID            uuid.UUID
	ProviderID           uuid.UUID
	Date                 time.Time // date component only, UTC
	Position             int
	Status               Status
	EstimatedWaitMinutes int
	ActualStartTime      *time.Time
	ActualEndTime        *time.Time
	CreatedAt            time.Time
}

// Duration returns the observed service duration once the entry completed.
func (e *Entry) Duration() (time.Duration, bool) {
	if e.ActualStartTime == nil || e.ActualEndTime == nil {
		return 0, false
	}
	return e.ActualEndTime.Sub(*e.ActualStartTime), true
}
