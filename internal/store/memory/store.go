// Package memory holds the whole entity graph in process memory with the
// same optimistic-concurrency contract as the postgres store. It backs the
// engine tests and local runs without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

type Store struct {
	mu           sync.Mutex
	tokens       map[string]models.Token
	counters     map[string]models.Counter
	serviceTypes map[string]models.ServiceType
	metrics      map[string]models.ServiceMetric
	patients     map[string]models.Patient
	sequences    map[string]int64
}

func NewStore() *Store {
	return &Store{
		tokens:       make(map[string]models.Token),
		counters:     make(map[string]models.Counter),
		serviceTypes: make(map[string]models.ServiceType),
		metrics:      make(map[string]models.ServiceMetric),
		patients:     make(map[string]models.Patient),
		sequences:    make(map[string]int64),
	}
}

func (s *Store) CreateToken(ctx context.Context, token models.Token) (models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token.Revision = 1
	s.tokens[token.TokenID] = token
	return token, nil
}

func (s *Store) GetToken(ctx context.Context, tokenID string) (models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return models.Token{}, store.ErrTokenNotFound
	}
	return token, nil
}

func (s *Store) UpdateToken(ctx context.Context, token models.Token) (models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTokenLocked(token)
}

func (s *Store) updateTokenLocked(token models.Token) (models.Token, error) {
	current, ok := s.tokens[token.TokenID]
	if !ok {
		return models.Token{}, store.ErrTokenNotFound
	}
	if current.Revision != token.Revision {
		return models.Token{}, store.ErrConflict
	}
	token.Revision++
	s.tokens[token.TokenID] = token
	return token, nil
}

func (s *Store) ListTokens(ctx context.Context, filter store.TokenFilter) ([]models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []models.Token
	for _, token := range s.tokens {
		if matchToken(token, filter) {
			tokens = append(tokens, token)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].TokenID < tokens[j].TokenID
		}
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
	return tokens, nil
}

func (s *Store) CountTokens(ctx context.Context, filter store.TokenFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, token := range s.tokens {
		if matchToken(token, filter) {
			count++
		}
	}
	return count, nil
}

func matchToken(token models.Token, filter store.TokenFilter) bool {
	if filter.Status != "" && token.Status != filter.Status {
		return false
	}
	if filter.ServiceTypeID != "" && token.ServiceTypeID != filter.ServiceTypeID {
		return false
	}
	if filter.CounterID != "" {
		if token.CounterID == nil || *token.CounterID != filter.CounterID {
			return false
		}
	}
	if filter.Unassigned && token.CounterID != nil {
		return false
	}
	if filter.PriorityType != "" && token.PriorityType != filter.PriorityType {
		return false
	}
	if filter.ApprovedOnly && !token.Approved {
		return false
	}
	if !filter.CreatedBefore.IsZero() && !token.CreatedAt.Before(filter.CreatedBefore) {
		return false
	}
	if filter.PatientID != "" && token.PatientID != filter.PatientID {
		return false
	}
	return true
}

func (s *Store) GetCounter(ctx context.Context, counterID string) (models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counters[counterID]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	return counter, nil
}

func (s *Store) UpdateCounter(ctx context.Context, counter models.Counter) (models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCounterLocked(counter)
}

func (s *Store) updateCounterLocked(counter models.Counter) (models.Counter, error) {
	current, ok := s.counters[counter.CounterID]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	if current.Revision != counter.Revision {
		return models.Counter{}, store.ErrConflict
	}
	counter.Revision++
	s.counters[counter.CounterID] = counter
	return counter, nil
}

func (s *Store) ListCounters(ctx context.Context, filter store.CounterFilter) ([]models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counters []models.Counter
	for _, counter := range s.counters {
		if filter.ServiceTypeID != "" && !counter.Serves(filter.ServiceTypeID) {
			continue
		}
		if filter.OperStatus != "" && counter.OperStatus != filter.OperStatus {
			continue
		}
		if filter.Availability != "" && counter.Availability != filter.Availability {
			continue
		}
		counters = append(counters, counter)
	}
	sort.Slice(counters, func(i, j int) bool {
		if counters[i].Name == counters[j].Name {
			return counters[i].CounterID < counters[j].CounterID
		}
		return strings.Compare(counters[i].Name, counters[j].Name) < 0
	})
	return counters, nil
}

func (s *Store) UpdateTokenAndCounter(ctx context.Context, token models.Token, counter models.Counter) (models.Token, models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentToken, ok := s.tokens[token.TokenID]
	if !ok {
		return models.Token{}, models.Counter{}, store.ErrTokenNotFound
	}
	currentCounter, ok := s.counters[counter.CounterID]
	if !ok {
		return models.Token{}, models.Counter{}, store.ErrCounterNotFound
	}
	if currentToken.Revision != token.Revision || currentCounter.Revision != counter.Revision {
		return models.Token{}, models.Counter{}, store.ErrConflict
	}

	token.Revision++
	counter.Revision++
	s.tokens[token.TokenID] = token
	s.counters[counter.CounterID] = counter
	return token, counter, nil
}

func (s *Store) GetServiceType(ctx context.Context, serviceTypeID string) (models.ServiceType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	serviceType, ok := s.serviceTypes[serviceTypeID]
	if !ok {
		return models.ServiceType{}, store.ErrServiceTypeNotFound
	}
	return serviceType, nil
}

func (s *Store) ListServiceTypes(ctx context.Context) ([]models.ServiceType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var serviceTypes []models.ServiceType
	for _, serviceType := range s.serviceTypes {
		serviceTypes = append(serviceTypes, serviceType)
	}
	sort.Slice(serviceTypes, func(i, j int) bool {
		return serviceTypes[i].Name < serviceTypes[j].Name
	})
	return serviceTypes, nil
}

func (s *Store) GetMetric(ctx context.Context, serviceTypeID string) (models.ServiceMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	metric, ok := s.metrics[serviceTypeID]
	if !ok {
		return models.ServiceMetric{}, store.ErrMetricNotFound
	}
	return metric, nil
}

func (s *Store) PutMetric(ctx context.Context, metric models.ServiceMetric) (models.ServiceMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.metrics[metric.ServiceTypeID]
	if ok && current.Revision != metric.Revision {
		return models.ServiceMetric{}, store.ErrConflict
	}
	if !ok && metric.Revision != 0 {
		return models.ServiceMetric{}, store.ErrConflict
	}
	metric.Revision++
	s.metrics[metric.ServiceTypeID] = metric
	return metric, nil
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patient, ok := s.patients[patientID]
	if !ok {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return patient, nil
}

func (s *Store) FindPatientByPhone(ctx context.Context, phone string) (models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, patient := range s.patients {
		if patient.Phone == phone {
			return patient, nil
		}
	}
	return models.Patient{}, store.ErrPatientNotFound
}

func (s *Store) CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patient.Revision = 1
	s.patients[patient.PatientID] = patient
	return patient, nil
}

func (s *Store) NextTokenNumber(ctx context.Context, serviceTypeID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[serviceTypeID]++
	return s.sequences[serviceTypeID], nil
}

// SeedServiceType and SeedCounter install fixture entities; tests and the
// dev composition root use them since the engine never creates either.
func (s *Store) SeedServiceType(serviceType models.ServiceType) models.ServiceType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if serviceType.Revision == 0 {
		serviceType.Revision = 1
	}
	s.serviceTypes[serviceType.ServiceTypeID] = serviceType
	return serviceType
}

func (s *Store) SeedCounter(counter models.Counter) models.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if counter.Revision == 0 {
		counter.Revision = 1
	}
	s.counters[counter.CounterID] = counter
	return counter
}
