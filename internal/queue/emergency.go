package queue

import (
	"context"
	"errors"

	"hqms/queue-service/internal/events"
	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

// ApproveEmergency moves an urgent token from PENDING_APPROVAL into the
// queue. Once approved it pre-empts every department queue. If a matching
// counter is free it is claimed and bound immediately, but the token still
// reaches SERVING only through normal dispatch.
func (e *Engine) ApproveEmergency(ctx context.Context, tokenID string) (models.Token, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		token, err := e.store.GetToken(ctx, tokenID)
		if err != nil {
			return models.Token{}, err
		}
		if token.PriorityType != models.PriorityUrgent {
			return models.Token{}, store.ErrInvalidState
		}
		if !store.ValidTransition(token.Status, models.StatusWaiting) {
			return models.Token{}, store.ErrInvalidState
		}

		claimed, err := e.claimAvailableCounter(ctx, token.ServiceTypeID)
		if err != nil {
			return models.Token{}, err
		}

		token.Approved = true
		token.Status = models.StatusWaiting
		if claimed != nil {
			token.CounterID = &claimed.CounterID
		}

		updated, err := e.store.UpdateToken(ctx, token)
		if errors.Is(err, store.ErrConflict) {
			if claimed != nil {
				e.releaseCounter(ctx, claimed.CounterID)
			}
			continue
		}
		if err != nil {
			if claimed != nil {
				e.releaseCounter(ctx, claimed.CounterID)
			}
			return models.Token{}, err
		}

		serviceType, err := e.store.GetServiceType(ctx, updated.ServiceTypeID)
		if err != nil {
			return models.Token{}, err
		}
		event := models.QueueEvent{
			Type:        models.EventEmergencyApproved,
			TokenNumber: updated.TokenNumber,
			ServiceName: serviceType.Name,
			Status:      updated.Status,
		}
		if claimed != nil {
			event.CounterName = claimed.Name
		}
		e.broadcast(ctx, event)
		e.publisher.Publish(ctx, events.PatientTopic(updated.TokenNumber), event)
		return updated, nil
	}
	return models.Token{}, store.ErrConflict
}

// RejectEmergency cancels an urgent token that was never approved. The token
// is retained in CANCELLED and can never be dispatched.
func (e *Engine) RejectEmergency(ctx context.Context, tokenID string) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		token, err := e.store.GetToken(ctx, tokenID)
		if err != nil {
			return err
		}
		if token.PriorityType != models.PriorityUrgent {
			return store.ErrInvalidState
		}
		if !store.ValidTransition(token.Status, models.StatusCancelled) {
			return store.ErrInvalidState
		}

		token.Approved = false
		token.Status = models.StatusCancelled
		updated, err := e.store.UpdateToken(ctx, token)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return err
		}

		serviceType, err := e.store.GetServiceType(ctx, updated.ServiceTypeID)
		if err != nil {
			return err
		}
		e.broadcast(ctx, models.QueueEvent{
			Type:        models.EventEmergencyRejected,
			TokenNumber: updated.TokenNumber,
			ServiceName: serviceType.Name,
			Status:      updated.Status,
		})
		return nil
	}
	return store.ErrConflict
}
