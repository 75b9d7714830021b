package queue

import (
	"context"
	"errors"
	"log"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

// CompleteToken finishes the serving visit: the token becomes COMPLETED,
// its counter is released, and the department's rolling average absorbs the
// measured service time.
func (e *Engine) CompleteToken(ctx context.Context, tokenID string) error {
	token, counterName, err := e.finishServing(ctx, tokenID, models.StatusCompleted)
	if err != nil {
		return err
	}

	serviceType, err := e.store.GetServiceType(ctx, token.ServiceTypeID)
	if err != nil {
		return err
	}
	if err := e.recordServiceTime(ctx, serviceType, token); err != nil {
		// The completion is already durable; a lost metric sample only
		// delays the rolling average.
		log.Printf("metrics update failed token=%s: %v", token.TokenNumber, err)
	}

	e.broadcast(ctx, models.QueueEvent{
		Type:        models.EventTokenCompleted,
		TokenNumber: token.TokenNumber,
		CounterName: counterName,
		ServiceName: serviceType.Name,
		Status:      token.Status,
	})
	return nil
}

// SkipToken abandons the serving visit (patient walked away). The counter is
// released; the token keeps its history in SKIPPED.
func (e *Engine) SkipToken(ctx context.Context, tokenID string) error {
	_, _, err := e.finishServing(ctx, tokenID, models.StatusSkipped)
	return err
}

func (e *Engine) finishServing(ctx context.Context, tokenID, toStatus string) (models.Token, string, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		token, err := e.store.GetToken(ctx, tokenID)
		if err != nil {
			return models.Token{}, "", err
		}
		if !store.ValidTransition(token.Status, toStatus) {
			return models.Token{}, "", store.ErrInvalidState
		}

		token.Status = toStatus
		if toStatus == models.StatusCompleted {
			completedAt := e.now()
			token.CompletedAt = &completedAt
		}

		if token.CounterID == nil {
			updated, err := e.store.UpdateToken(ctx, token)
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				return models.Token{}, "", err
			}
			return updated, "", nil
		}

		counter, err := e.store.GetCounter(ctx, *token.CounterID)
		if err != nil {
			return models.Token{}, "", err
		}
		counter.Availability = models.CounterAvailable
		updated, _, err := e.store.UpdateTokenAndCounter(ctx, token, counter)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return models.Token{}, "", err
		}
		return updated, counter.Name, nil
	}
	return models.Token{}, "", store.ErrConflict
}
