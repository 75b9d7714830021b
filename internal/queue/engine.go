// Package queue is the orchestration core: token lifecycle, next-token
// selection, emergency approval, counter assignment, service-time metrics,
// and wait estimation. All state lives behind store.EntityStore; every write
// is a revision-conditioned compare-and-swap retried a bounded number of
// times on conflict.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hqms/queue-service/internal/events"
	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

const maxConflictRetries = 3

type Engine struct {
	store     store.EntityStore
	publisher events.Publisher
	now       func() time.Time
}

func NewEngine(entities store.EntityStore, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Engine{
		store:     entities,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type AdmitTokenInput struct {
	ServiceTypeID string
	PatientName   string
	PatientPhone  string
	MedicalID     string
	DoctorID      string
	Urgent        bool
}

// AdmitToken creates a token at the back of the department queue. Urgent
// admissions enter PENDING_APPROVAL and stay out of dispatch until approved.
func (e *Engine) AdmitToken(ctx context.Context, input AdmitTokenInput) (models.Token, error) {
	serviceType, err := e.store.GetServiceType(ctx, input.ServiceTypeID)
	if err != nil {
		return models.Token{}, err
	}
	if input.Urgent && !serviceType.AllowPriority {
		return models.Token{}, store.ErrInvalidState
	}

	patient, err := e.resolvePatient(ctx, input)
	if err != nil {
		return models.Token{}, err
	}

	var counterID *string
	if input.DoctorID != "" {
		doctor, err := e.store.GetCounter(ctx, input.DoctorID)
		if err != nil {
			return models.Token{}, err
		}
		if !doctor.Serves(serviceType.ServiceTypeID) {
			return models.Token{}, store.ErrInvalidState
		}
		if doctor.OperStatus != models.CounterOpen {
			return models.Token{}, store.ErrCounterClosed
		}
		counterID = &doctor.CounterID
	}

	number, err := e.nextTokenNumber(ctx, serviceType)
	if err != nil {
		return models.Token{}, err
	}

	token := models.Token{
		TokenID:       uuid.NewString(),
		TokenNumber:   number,
		ServiceTypeID: serviceType.ServiceTypeID,
		PatientID:     patient.PatientID,
		CounterID:     counterID,
		CreatedAt:     e.now(),
	}
	if input.Urgent {
		token.PriorityType = models.PriorityUrgent
		token.Approved = false
		token.Status = models.StatusPendingApproval
	} else {
		token.PriorityType = models.PriorityNormal
		token.Approved = true
		token.Status = models.StatusWaiting
	}

	created, err := e.store.CreateToken(ctx, token)
	if err != nil {
		return models.Token{}, err
	}

	eventType := models.EventTokenCreated
	if input.Urgent {
		eventType = models.EventEmergencyCreated
	}
	e.broadcast(ctx, models.QueueEvent{
		Type:        eventType,
		TokenNumber: created.TokenNumber,
		ServiceName: serviceType.Name,
		Status:      created.Status,
	})

	return created, nil
}

// QueueDepth counts tokens currently WAITING for the department.
func (e *Engine) QueueDepth(ctx context.Context, serviceTypeID string) (int, error) {
	if _, err := e.store.GetServiceType(ctx, serviceTypeID); err != nil {
		return 0, err
	}
	return e.store.CountTokens(ctx, store.TokenFilter{
		ServiceTypeID: serviceTypeID,
		Status:        models.StatusWaiting,
	})
}

func (e *Engine) resolvePatient(ctx context.Context, input AdmitTokenInput) (models.Patient, error) {
	patient, err := e.store.FindPatientByPhone(ctx, input.PatientPhone)
	if err == nil {
		return patient, nil
	}
	if !errors.Is(err, store.ErrPatientNotFound) {
		return models.Patient{}, err
	}
	return e.store.CreatePatient(ctx, models.Patient{
		PatientID: uuid.NewString(),
		Name:      input.PatientName,
		Phone:     input.PatientPhone,
		MedicalID: input.MedicalID,
	})
}

// nextTokenNumber claims the department sequence and formats the public
// code: first letter of the department name plus a number starting at 101.
func (e *Engine) nextTokenNumber(ctx context.Context, serviceType models.ServiceType) (string, error) {
	seq, err := e.store.NextTokenNumber(ctx, serviceType.ServiceTypeID)
	if err != nil {
		return "", err
	}
	prefix := "Q"
	if trimmed := strings.TrimSpace(serviceType.Name); trimmed != "" {
		prefix = strings.ToUpper(trimmed[:1])
	}
	return fmt.Sprintf("%s%d", prefix, 100+seq), nil
}

// broadcast sends the event to the general queue topic and the display
// board, after the state change has already been persisted.
func (e *Engine) broadcast(ctx context.Context, event models.QueueEvent) {
	e.publisher.Publish(ctx, events.TopicQueueUpdates, event)
	e.publisher.Publish(ctx, events.TopicDisplayBoard, event)
}
