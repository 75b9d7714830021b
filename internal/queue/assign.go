package queue

import (
	"context"
	"errors"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

// claimAvailableCounter finds a free counter serving the department and
// flips it to BUSY under its revision. A conflict means another caller
// claimed it first; the search is retried once before giving up, and a nil
// counter just means the token queues at department level.
func (e *Engine) claimAvailableCounter(ctx context.Context, serviceTypeID string) (*models.Counter, error) {
	for attempt := 0; attempt < 2; attempt++ {
		candidates, err := e.store.ListCounters(ctx, store.CounterFilter{
			ServiceTypeID: serviceTypeID,
			Availability:  models.CounterAvailable,
		})
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		counter := candidates[0]
		counter.Availability = models.CounterBusy
		claimed, err := e.store.UpdateCounter(ctx, counter)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &claimed, nil
	}
	return nil, nil
}

// releaseIfIdle frees a counter whose claimed token ended up served
// elsewhere. A counter with a token of its own in service keeps its claim.
func (e *Engine) releaseIfIdle(ctx context.Context, counterID string) {
	serving, err := e.store.CountTokens(ctx, store.TokenFilter{
		CounterID: counterID,
		Status:    models.StatusServing,
	})
	if err != nil || serving > 0 {
		return
	}
	e.releaseCounter(ctx, counterID)
}

// releaseCounter is the best-effort inverse of a claim, used when a claim
// ends up unbound because the token write failed.
func (e *Engine) releaseCounter(ctx context.Context, counterID string) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		counter, err := e.store.GetCounter(ctx, counterID)
		if err != nil {
			return
		}
		counter.Availability = models.CounterAvailable
		if _, err := e.store.UpdateCounter(ctx, counter); !errors.Is(err, store.ErrConflict) {
			return
		}
	}
}
