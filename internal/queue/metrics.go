package queue

import (
	"context"
	"errors"
	"time"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

// recordServiceTime folds the token's measured service time into the
// department's rolling average. Whole minutes, truncated, so a visit under a
// minute counts as zero. A missing metric row is seeded from the department
// default before the first sample lands.
func (e *Engine) recordServiceTime(ctx context.Context, serviceType models.ServiceType, token models.Token) error {
	if token.CalledAt == nil || token.CompletedAt == nil {
		return nil
	}
	serviceMinutes := int64(token.CompletedAt.Sub(*token.CalledAt) / time.Minute)
	if serviceMinutes < 0 {
		serviceMinutes = 0
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		metric, err := e.store.GetMetric(ctx, serviceType.ServiceTypeID)
		if errors.Is(err, store.ErrMetricNotFound) {
			metric = e.seedMetric(serviceType)
		} else if err != nil {
			return err
		}

		total := metric.TotalServed
		metric.AvgServiceTimeMinutes = (metric.AvgServiceTimeMinutes*float64(total) + float64(serviceMinutes)) / float64(total+1)
		metric.TotalServed = total + 1
		metric.LastUpdated = e.now()

		if _, err := e.store.PutMetric(ctx, metric); errors.Is(err, store.ErrConflict) {
			continue
		} else if err != nil {
			return err
		}
		return nil
	}
	return store.ErrConflict
}

func (e *Engine) seedMetric(serviceType models.ServiceType) models.ServiceMetric {
	avg := float64(serviceType.DefaultAvgMinutes)
	if avg <= 0 {
		avg = 10
	}
	return models.ServiceMetric{
		ServiceTypeID:         serviceType.ServiceTypeID,
		AvgServiceTimeMinutes: avg,
		TotalServed:           0,
	}
}

// avgServiceTime returns the current rolling average for the department,
// falling back to the configured default when no visit has completed yet.
func (e *Engine) avgServiceTime(ctx context.Context, serviceType models.ServiceType) (float64, error) {
	metric, err := e.store.GetMetric(ctx, serviceType.ServiceTypeID)
	if errors.Is(err, store.ErrMetricNotFound) {
		return e.seedMetric(serviceType).AvgServiceTimeMinutes, nil
	}
	if err != nil {
		return 0, err
	}
	return metric.AvgServiceTimeMinutes, nil
}
