package store

import (
	"context"
	"time"

	"hqms/queue-service/internal/models"
)

// TokenFilter narrows ListTokens/CountTokens. Zero values mean "any".
type TokenFilter struct {
	Status        string
	ServiceTypeID string
	CounterID     string
	Unassigned    bool
	PriorityType  string
	ApprovedOnly  bool
	CreatedBefore time.Time
	PatientID     string
}

// CounterFilter narrows ListCounters.
type CounterFilter struct {
	ServiceTypeID string
	OperStatus    string
	Availability  string
}

// EntityStore is durable keyed storage with optimistic concurrency. Every
// mutable entity carries a revision; Update* calls compare the revision the
// caller read against the stored one and fail with ErrConflict on mismatch.
// Successful writes return the entity with the bumped revision.
type EntityStore interface {
	CreateToken(ctx context.Context, token models.Token) (models.Token, error)
	GetToken(ctx context.Context, tokenID string) (models.Token, error)
	UpdateToken(ctx context.Context, token models.Token) (models.Token, error)
	ListTokens(ctx context.Context, filter TokenFilter) ([]models.Token, error)
	CountTokens(ctx context.Context, filter TokenFilter) (int, error)

	GetCounter(ctx context.Context, counterID string) (models.Counter, error)
	UpdateCounter(ctx context.Context, counter models.Counter) (models.Counter, error)
	ListCounters(ctx context.Context, filter CounterFilter) ([]models.Counter, error)

	// UpdateTokenAndCounter applies both writes as one atomic unit; either
	// revision being stale fails the whole pair with ErrConflict.
	UpdateTokenAndCounter(ctx context.Context, token models.Token, counter models.Counter) (models.Token, models.Counter, error)

	GetServiceType(ctx context.Context, serviceTypeID string) (models.ServiceType, error)
	ListServiceTypes(ctx context.Context) ([]models.ServiceType, error)

	GetMetric(ctx context.Context, serviceTypeID string) (models.ServiceMetric, error)
	PutMetric(ctx context.Context, metric models.ServiceMetric) (models.ServiceMetric, error)

	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
	FindPatientByPhone(ctx context.Context, phone string) (models.Patient, error)
	CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error)

	// NextTokenNumber claims the next value of the department's token
	// sequence. Claims are never reused, even if the caller's write fails.
	NextTokenNumber(ctx context.Context, serviceTypeID string) (int64, error)
}
