package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Estimator derives estimated wait minutes from queue positions, assuming
// a fixed slot length per visit.
type Estimator struct {
	slotMinutes int
}

func NewEstimator(slotMinutes int) *Estimator {
	if slotMinutes <= 0 {
		slotMinutes = 15
	}
	return &Estimator{slotMinutes: slotMinutes}
}

// ForPosition estimates the wait for a freshly assigned position, with
// everyone ahead of it still waiting.
func (e *Estimator) ForPosition(position int) int {
	if position <= 1 {
		return 0
	}
	return (position - 1) * e.slotMinutes
}

// Recompute re-ranks the partition's waiting entries by position and
// rewrites their wait estimates. Positions themselves are never touched;
// they stay stable historical identifiers.
func (e *Estimator) Recompute(ctx context.Context, q Querier, repo *Repository, providerID uuid.UUID, date time.Time) ([]Entry, error) {
	waiting, err := repo.ListWaiting(ctx, q, providerID, date)
	if err != nil {
		return nil, err
	}
	for i := range waiting {
		minutes := i * e.slotMinutes
		if waiting[i].EstimatedWaitMinutes == minutes {
			continue
		}
		if err := repo.SetWaitEstimate(ctx, q, waiting[i].ID, minutes); err != nil {
			return nil, err
		}
		waiting[i].EstimatedWaitMinutes = minutes
	}
	return waiting, nil
}
