package queue

import (
	"context"
	"math"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

// EstimateETA returns the expected wait in minutes for the token:
// tokens ahead in the department queue times the rolling average, divided by
// the number of open counters. A token in service or in a terminal state has
// no wait left. With no open counters the wait is unknowable, reported as -1.
func (e *Engine) EstimateETA(ctx context.Context, tokenID string) (int, error) {
	token, err := e.store.GetToken(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	if token.Status == models.StatusServing || models.Terminal(token.Status) {
		return 0, nil
	}

	serviceType, err := e.store.GetServiceType(ctx, token.ServiceTypeID)
	if err != nil {
		return 0, err
	}

	ahead, err := e.store.CountTokens(ctx, store.TokenFilter{
		ServiceTypeID: token.ServiceTypeID,
		Status:        models.StatusWaiting,
		CreatedBefore: token.CreatedAt,
	})
	if err != nil {
		return 0, err
	}

	open, err := e.store.ListCounters(ctx, store.CounterFilter{
		ServiceTypeID: token.ServiceTypeID,
		OperStatus:    models.CounterOpen,
	})
	if err != nil {
		return 0, err
	}
	if len(open) == 0 {
		return -1, nil
	}

	avg, err := e.avgServiceTime(ctx, serviceType)
	if err != nil {
		return 0, err
	}
	return int(math.Round(float64(ahead) * avg / float64(len(open)))), nil
}
