package queue

import (
	"context"
	"errors"
	"time"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

// PatientHistory lists every token ever issued to the patient behind the
// phone number, newest first.
func (e *Engine) PatientHistory(ctx context.Context, phone string) ([]models.Token, error) {
	patient, err := e.store.FindPatientByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	tokens, err := e.store.ListTokens(ctx, store.TokenFilter{PatientID: patient.PatientID})
	if err != nil {
		return nil, err
	}
	// ListTokens is oldest first; history reads better reversed.
	for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}
	return tokens, nil
}

type DepartmentSummary struct {
	ServiceTypeID   string  `json:"service_type_id"`
	ServiceName     string  `json:"service_name"`
	Waiting         int     `json:"waiting"`
	Serving         int     `json:"serving"`
	PendingApproval int     `json:"pending_approval"`
	ApprovedUrgent  int     `json:"approved_urgent"`
	CompletedToday  int     `json:"completed_today"`
	OpenCounters    int     `json:"open_counters"`
	AvgMinutes      float64 `json:"avg_minutes"`
}

// DashboardSummary aggregates live queue state across every department for
// the admin dashboard and the display board.
func (e *Engine) DashboardSummary(ctx context.Context) ([]DepartmentSummary, error) {
	serviceTypes, err := e.store.ListServiceTypes(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]DepartmentSummary, 0, len(serviceTypes))
	for _, serviceType := range serviceTypes {
		summary := DepartmentSummary{
			ServiceTypeID: serviceType.ServiceTypeID,
			ServiceName:   serviceType.Name,
		}
		for status, target := range map[string]*int{
			models.StatusWaiting:         &summary.Waiting,
			models.StatusServing:         &summary.Serving,
			models.StatusPendingApproval: &summary.PendingApproval,
		} {
			count, err := e.store.CountTokens(ctx, store.TokenFilter{
				ServiceTypeID: serviceType.ServiceTypeID,
				Status:        status,
			})
			if err != nil {
				return nil, err
			}
			*target = count
		}

		urgent, err := e.store.CountTokens(ctx, store.TokenFilter{
			ServiceTypeID: serviceType.ServiceTypeID,
			Status:        models.StatusWaiting,
			PriorityType:  models.PriorityUrgent,
			ApprovedOnly:  true,
		})
		if err != nil {
			return nil, err
		}
		summary.ApprovedUrgent = urgent

		completed, err := e.completedToday(ctx, serviceType.ServiceTypeID)
		if err != nil {
			return nil, err
		}
		summary.CompletedToday = completed

		open, err := e.store.ListCounters(ctx, store.CounterFilter{
			ServiceTypeID: serviceType.ServiceTypeID,
			OperStatus:    models.CounterOpen,
		})
		if err != nil {
			return nil, err
		}
		summary.OpenCounters = len(open)

		avg, err := e.avgServiceTime(ctx, serviceType)
		if err != nil {
			return nil, err
		}
		summary.AvgMinutes = avg

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

type DoctorLoad struct {
	CounterID      string `json:"counter_id"`
	Name           string `json:"name"`
	OperStatus     string `json:"oper_status"`
	Availability   string `json:"availability"`
	QueuedTokens   int    `json:"queued_tokens"`
	Serving        int    `json:"serving"`
	CompletedToday int    `json:"completed_today"`
}

// DoctorLoads reports, for each doctor counter, how many tokens are waiting
// in that doctor's queue, in service, and completed since midnight UTC.
func (e *Engine) DoctorLoads(ctx context.Context) ([]DoctorLoad, error) {
	counters, err := e.store.ListCounters(ctx, store.CounterFilter{})
	if err != nil {
		return nil, err
	}

	loads := make([]DoctorLoad, 0)
	for _, counter := range counters {
		if counter.Role != models.RoleDoctor {
			continue
		}
		load := DoctorLoad{
			CounterID:    counter.CounterID,
			Name:         counter.Name,
			OperStatus:   counter.OperStatus,
			Availability: counter.Availability,
		}
		load.QueuedTokens, err = e.store.CountTokens(ctx, store.TokenFilter{
			CounterID: counter.CounterID,
			Status:    models.StatusWaiting,
		})
		if err != nil {
			return nil, err
		}
		load.Serving, err = e.store.CountTokens(ctx, store.TokenFilter{
			CounterID: counter.CounterID,
			Status:    models.StatusServing,
		})
		if err != nil {
			return nil, err
		}
		completed, err := e.store.ListTokens(ctx, store.TokenFilter{
			CounterID: counter.CounterID,
			Status:    models.StatusCompleted,
		})
		if err != nil {
			return nil, err
		}
		midnight := e.midnight()
		for _, token := range completed {
			if token.CompletedAt != nil && !token.CompletedAt.Before(midnight) {
				load.CompletedToday++
			}
		}
		loads = append(loads, load)
	}
	return loads, nil
}

type ServiceStats struct {
	ServiceTypeID         string  `json:"service_type_id"`
	ServiceName           string  `json:"service_name"`
	AvgServiceTimeMinutes float64 `json:"avg_service_time_minutes"`
	TotalServed           int64   `json:"total_served"`
	Waiting               int     `json:"waiting"`
	CompletedToday        int     `json:"completed_today"`
}

// ServiceStatsFor reports the department's lifetime metric, the live waiting
// count, and completions since midnight UTC.
func (e *Engine) ServiceStatsFor(ctx context.Context, serviceTypeID string) (ServiceStats, error) {
	serviceType, err := e.store.GetServiceType(ctx, serviceTypeID)
	if err != nil {
		return ServiceStats{}, err
	}

	stats := ServiceStats{
		ServiceTypeID: serviceType.ServiceTypeID,
		ServiceName:   serviceType.Name,
	}
	metric, err := e.store.GetMetric(ctx, serviceTypeID)
	if errors.Is(err, store.ErrMetricNotFound) {
		stats.AvgServiceTimeMinutes = e.seedMetric(serviceType).AvgServiceTimeMinutes
	} else if err != nil {
		return ServiceStats{}, err
	} else {
		stats.AvgServiceTimeMinutes = metric.AvgServiceTimeMinutes
		stats.TotalServed = metric.TotalServed
	}

	stats.Waiting, err = e.store.CountTokens(ctx, store.TokenFilter{
		ServiceTypeID: serviceTypeID,
		Status:        models.StatusWaiting,
	})
	if err != nil {
		return ServiceStats{}, err
	}

	stats.CompletedToday, err = e.completedToday(ctx, serviceTypeID)
	if err != nil {
		return ServiceStats{}, err
	}
	return stats, nil
}

func (e *Engine) completedToday(ctx context.Context, serviceTypeID string) (int, error) {
	completed, err := e.store.ListTokens(ctx, store.TokenFilter{
		ServiceTypeID: serviceTypeID,
		Status:        models.StatusCompleted,
	})
	if err != nil {
		return 0, err
	}
	midnight := e.midnight()
	count := 0
	for _, token := range completed {
		if token.CompletedAt != nil && !token.CompletedAt.Before(midnight) {
			count++
		}
	}
	return count, nil
}

func (e *Engine) midnight() time.Time {
	return e.now().Truncate(24 * time.Hour)
}
