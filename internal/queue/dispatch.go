package queue

import (
	"context"
	"errors"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

// selectNext picks the token to serve without mutating anything.
// Order: approved urgent tokens pre-empt every queue globally, then the
// doctor's own queue when dispatching to a doctor, then the department
// queue of unassigned tokens, FIFO by creation time within each class.
func (e *Engine) selectNext(ctx context.Context, serviceTypeID, doctorID string) (models.Token, error) {
	urgent, err := e.store.ListTokens(ctx, store.TokenFilter{
		Status:       models.StatusWaiting,
		PriorityType: models.PriorityUrgent,
		ApprovedOnly: true,
	})
	if err != nil {
		return models.Token{}, err
	}
	if len(urgent) > 0 {
		return urgent[0], nil
	}

	if doctorID != "" {
		bound, err := e.store.ListTokens(ctx, store.TokenFilter{
			Status:    models.StatusWaiting,
			CounterID: doctorID,
		})
		if err != nil {
			return models.Token{}, err
		}
		if len(bound) > 0 {
			return bound[0], nil
		}
	}

	waiting, err := e.store.ListTokens(ctx, store.TokenFilter{
		Status:        models.StatusWaiting,
		ServiceTypeID: serviceTypeID,
		Unassigned:    true,
	})
	if err != nil {
		return models.Token{}, err
	}
	if len(waiting) > 0 {
		return waiting[0], nil
	}
	return models.Token{}, store.ErrNoToken
}

// DispatchNext binds the next selectable token to the counter and starts
// serving it. The token and counter are written as one atomic unit; a
// concurrent dispatch on the same counter loses the revision race and
// re-checks, so exactly one caller wins.
func (e *Engine) DispatchNext(ctx context.Context, counterID, serviceTypeID string) (models.Token, error) {
	serviceType, err := e.store.GetServiceType(ctx, serviceTypeID)
	if err != nil {
		return models.Token{}, err
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		counter, err := e.store.GetCounter(ctx, counterID)
		if err != nil {
			return models.Token{}, err
		}
		if counter.OperStatus != models.CounterOpen {
			return models.Token{}, store.ErrCounterClosed
		}

		serving, err := e.store.CountTokens(ctx, store.TokenFilter{
			CounterID: counterID,
			Status:    models.StatusServing,
		})
		if err != nil {
			return models.Token{}, err
		}
		if serving > 0 {
			return models.Token{}, store.ErrAlreadyServing
		}

		doctorID := ""
		if counter.Role == models.RoleDoctor {
			doctorID = counter.CounterID
		}
		next, err := e.selectNext(ctx, serviceTypeID, doctorID)
		if err != nil {
			return models.Token{}, err
		}
		if !store.ValidTransition(next.Status, models.StatusServing) {
			return models.Token{}, store.ErrInvalidState
		}

		previousCounterID := next.CounterID
		calledAt := e.now()
		next.CounterID = &counter.CounterID
		next.Status = models.StatusServing
		next.CalledAt = &calledAt
		counter.Availability = models.CounterBusy

		updated, _, err := e.store.UpdateTokenAndCounter(ctx, next, counter)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return models.Token{}, err
		}

		// An approval may have claimed a different counter for this token;
		// rebinding here would otherwise strand that claim as BUSY.
		if previousCounterID != nil && *previousCounterID != counter.CounterID {
			e.releaseIfIdle(ctx, *previousCounterID)
		}

		e.broadcast(ctx, models.QueueEvent{
			Type:        models.EventTokenCalled,
			TokenNumber: updated.TokenNumber,
			CounterName: counter.Name,
			ServiceName: serviceType.Name,
			Status:      updated.Status,
		})
		return updated, nil
	}
	return models.Token{}, store.ErrConflict
}
