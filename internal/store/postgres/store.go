// Package postgres backs the entity store with PostgreSQL. Optimistic
// concurrency is enforced in SQL: every UPDATE is conditioned on the caller's
// revision and bumps it, so a stale write matches zero rows and surfaces as
// store.ErrConflict.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const tokenColumns = `token_id, token_number, service_type_id, patient_id, counter_id, status, priority_type, approved, created_at, called_at, completed_at, revision`

func (s *Store) CreateToken(ctx context.Context, token models.Token) (models.Token, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tokens (
			token_id, token_number, service_type_id, patient_id, counter_id,
			status, priority_type, approved, created_at, revision
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1)
		RETURNING `+tokenColumns+`
	`, token.TokenID, token.TokenNumber, token.ServiceTypeID, nullIfEmpty(token.PatientID),
		token.CounterID, token.Status, token.PriorityType, token.Approved, token.CreatedAt)
	return scanToken(row)
}

func (s *Store) GetToken(ctx context.Context, tokenID string) (models.Token, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+` FROM tokens WHERE token_id = $1
	`, tokenID)
	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Token{}, store.ErrTokenNotFound
	}
	return token, err
}

func (s *Store) UpdateToken(ctx context.Context, token models.Token) (models.Token, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tokens SET
			counter_id = $3, status = $4, priority_type = $5, approved = $6,
			called_at = $7, completed_at = $8, revision = revision + 1
		WHERE token_id = $1 AND revision = $2
		RETURNING `+tokenColumns+`
	`, token.TokenID, token.Revision, token.CounterID, token.Status,
		token.PriorityType, token.Approved, token.CalledAt, token.CompletedAt)
	updated, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Token{}, s.classifyTokenMiss(ctx, token.TokenID)
	}
	return updated, err
}

// classifyTokenMiss distinguishes a vanished row from a lost revision race.
func (s *Store) classifyTokenMiss(ctx context.Context, tokenID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tokens WHERE token_id = $1)`, tokenID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrTokenNotFound
	}
	return store.ErrConflict
}

func (s *Store) ListTokens(ctx context.Context, filter store.TokenFilter) ([]models.Token, error) {
	query, args := tokenQuery(`SELECT `+tokenColumns+` FROM tokens`, filter)
	query += " ORDER BY created_at ASC, token_id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (s *Store) CountTokens(ctx context.Context, filter store.TokenFilter) (int, error) {
	query, args := tokenQuery(`SELECT COUNT(*) FROM tokens`, filter)
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func tokenQuery(base string, filter store.TokenFilter) (string, []interface{}) {
	query := base + " WHERE 1=1"
	var args []interface{}
	arg := func(value interface{}) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		query += " AND status = " + arg(filter.Status)
	}
	if filter.ServiceTypeID != "" {
		query += " AND service_type_id = " + arg(filter.ServiceTypeID)
	}
	if filter.CounterID != "" {
		query += " AND counter_id = " + arg(filter.CounterID)
	}
	if filter.Unassigned {
		query += " AND counter_id IS NULL"
	}
	if filter.PriorityType != "" {
		query += " AND priority_type = " + arg(filter.PriorityType)
	}
	if filter.ApprovedOnly {
		query += " AND approved"
	}
	if !filter.CreatedBefore.IsZero() {
		query += " AND created_at < " + arg(filter.CreatedBefore)
	}
	if filter.PatientID != "" {
		query += " AND patient_id = " + arg(filter.PatientID)
	}
	return query, args
}


const counterColumns = `counter_id, name, role, oper_status, availability, service_types, revision`

func (s *Store) GetCounter(ctx context.Context, counterID string) (models.Counter, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+counterColumns+` FROM counters WHERE counter_id = $1
	`, counterID)
	counter, err := scanCounter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Counter{}, store.ErrCounterNotFound
	}
	return counter, err
}

func (s *Store) UpdateCounter(ctx context.Context, counter models.Counter) (models.Counter, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE counters SET
			name = $3, role = $4, oper_status = $5, availability = $6,
			service_types = $7, revision = revision + 1
		WHERE counter_id = $1 AND revision = $2
		RETURNING `+counterColumns+`
	`, counter.CounterID, counter.Revision, counter.Name, counter.Role,
		counter.OperStatus, counter.Availability, counter.ServiceTypes)
	updated, err := scanCounter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Counter{}, s.classifyCounterMiss(ctx, counter.CounterID)
	}
	return updated, err
}

func (s *Store) classifyCounterMiss(ctx context.Context, counterID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM counters WHERE counter_id = $1)`, counterID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrCounterNotFound
	}
	return store.ErrConflict
}

func (s *Store) ListCounters(ctx context.Context, filter store.CounterFilter) ([]models.Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM counters WHERE 1=1`
	var args []interface{}
	arg := func(value interface{}) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.ServiceTypeID != "" {
		query += " AND " + arg(filter.ServiceTypeID) + " = ANY(service_types)"
	}
	if filter.OperStatus != "" {
		query += " AND oper_status = " + arg(filter.OperStatus)
	}
	if filter.Availability != "" {
		query += " AND availability = " + arg(filter.Availability)
	}
	query += " ORDER BY name ASC, counter_id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []models.Counter
	for rows.Next() {
		counter, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	return counters, rows.Err()
}

// UpdateTokenAndCounter writes both rows in one transaction; either both
// revisions match or nothing is written.
func (s *Store) UpdateTokenAndCounter(ctx context.Context, token models.Token, counter models.Counter) (models.Token, models.Counter, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Token{}, models.Counter{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE tokens SET
			counter_id = $3, status = $4, priority_type = $5, approved = $6,
			called_at = $7, completed_at = $8, revision = revision + 1
		WHERE token_id = $1 AND revision = $2
		RETURNING `+tokenColumns+`
	`, token.TokenID, token.Revision, token.CounterID, token.Status,
		token.PriorityType, token.Approved, token.CalledAt, token.CompletedAt)
	updatedToken, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.classifyTokenMiss(ctx, token.TokenID)
		return models.Token{}, models.Counter{}, err
	}
	if err != nil {
		return models.Token{}, models.Counter{}, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE counters SET
			name = $3, role = $4, oper_status = $5, availability = $6,
			service_types = $7, revision = revision + 1
		WHERE counter_id = $1 AND revision = $2
		RETURNING `+counterColumns+`
	`, counter.CounterID, counter.Revision, counter.Name, counter.Role,
		counter.OperStatus, counter.Availability, counter.ServiceTypes)
	updatedCounter, err := scanCounter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.classifyCounterMiss(ctx, counter.CounterID)
		return models.Token{}, models.Counter{}, err
	}
	if err != nil {
		return models.Token{}, models.Counter{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Token{}, models.Counter{}, err
	}
	return updatedToken, updatedCounter, nil
}

func (s *Store) GetServiceType(ctx context.Context, serviceTypeID string) (models.ServiceType, error) {
	var serviceType models.ServiceType
	err := s.pool.QueryRow(ctx, `
		SELECT service_type_id, name, default_avg_minutes, allow_priority, revision
		FROM service_types WHERE service_type_id = $1
	`, serviceTypeID).Scan(&serviceType.ServiceTypeID, &serviceType.Name,
		&serviceType.DefaultAvgMinutes, &serviceType.AllowPriority, &serviceType.Revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ServiceType{}, store.ErrServiceTypeNotFound
	}
	return serviceType, err
}

func (s *Store) ListServiceTypes(ctx context.Context) ([]models.ServiceType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_type_id, name, default_avg_minutes, allow_priority, revision
		FROM service_types ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var serviceTypes []models.ServiceType
	for rows.Next() {
		var serviceType models.ServiceType
		if err := rows.Scan(&serviceType.ServiceTypeID, &serviceType.Name,
			&serviceType.DefaultAvgMinutes, &serviceType.AllowPriority, &serviceType.Revision); err != nil {
			return nil, err
		}
		serviceTypes = append(serviceTypes, serviceType)
	}
	return serviceTypes, rows.Err()
}

func (s *Store) GetMetric(ctx context.Context, serviceTypeID string) (models.ServiceMetric, error) {
	var metric models.ServiceMetric
	err := s.pool.QueryRow(ctx, `
		SELECT service_type_id, avg_service_time_minutes, total_served, last_updated, revision
		FROM service_metrics WHERE service_type_id = $1
	`, serviceTypeID).Scan(&metric.ServiceTypeID, &metric.AvgServiceTimeMinutes,
		&metric.TotalServed, &metric.LastUpdated, &metric.Revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ServiceMetric{}, store.ErrMetricNotFound
	}
	return metric, err
}

func (s *Store) PutMetric(ctx context.Context, metric models.ServiceMetric) (models.ServiceMetric, error) {
	if metric.Revision == 0 {
		row := s.pool.QueryRow(ctx, `
			INSERT INTO service_metrics (service_type_id, avg_service_time_minutes, total_served, last_updated, revision)
			VALUES ($1,$2,$3,$4,1)
			ON CONFLICT (service_type_id) DO NOTHING
			RETURNING service_type_id, avg_service_time_minutes, total_served, last_updated, revision
		`, metric.ServiceTypeID, metric.AvgServiceTimeMinutes, metric.TotalServed, metric.LastUpdated)
		inserted, err := scanMetric(row)
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent completion seeded the row first.
			return models.ServiceMetric{}, store.ErrConflict
		}
		return inserted, err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE service_metrics SET
			avg_service_time_minutes = $3, total_served = $4, last_updated = $5, revision = revision + 1
		WHERE service_type_id = $1 AND revision = $2
		RETURNING service_type_id, avg_service_time_minutes, total_served, last_updated, revision
	`, metric.ServiceTypeID, metric.Revision, metric.AvgServiceTimeMinutes, metric.TotalServed, metric.LastUpdated)
	updated, err := scanMetric(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ServiceMetric{}, store.ErrConflict
	}
	return updated, err
}

func scanMetric(row pgx.Row) (models.ServiceMetric, error) {
	var metric models.ServiceMetric
	err := row.Scan(&metric.ServiceTypeID, &metric.AvgServiceTimeMinutes,
		&metric.TotalServed, &metric.LastUpdated, &metric.Revision)
	return metric, err
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT patient_id, name, phone, medical_id, revision
		FROM patients WHERE patient_id = $1
	`, patientID)
	return scanPatient(row)
}

func (s *Store) FindPatientByPhone(ctx context.Context, phone string) (models.Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT patient_id, name, phone, medical_id, revision
		FROM patients WHERE phone = $1
	`, phone)
	return scanPatient(row)
}

func scanPatient(row pgx.Row) (models.Patient, error) {
	var patient models.Patient
	var medicalIDNull sql.NullString
	err := row.Scan(&patient.PatientID, &patient.Name, &patient.Phone, &medicalIDNull, &patient.Revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Patient{}, store.ErrPatientNotFound
	}
	if err != nil {
		return models.Patient{}, err
	}
	if medicalIDNull.Valid {
		patient.MedicalID = medicalIDNull.String
	}
	return patient, nil
}

func (s *Store) CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO patients (patient_id, name, phone, medical_id, revision)
		VALUES ($1,$2,$3,$4,1)
		RETURNING patient_id, name, phone, medical_id, revision
	`, patient.PatientID, patient.Name, patient.Phone, nullIfEmpty(patient.MedicalID))
	return scanPatient(row)
}

func (s *Store) NextTokenNumber(ctx context.Context, serviceTypeID string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO token_sequences (service_type_id, last_value)
		VALUES ($1, 1)
		ON CONFLICT (service_type_id) DO UPDATE SET last_value = token_sequences.last_value + 1
		RETURNING last_value
	`, serviceTypeID).Scan(&seq)
	return seq, err
}

func scanToken(row pgx.Row) (models.Token, error) {
	var token models.Token
	var patientIDNull sql.NullString
	var counterIDNull sql.NullString
	var calledAtNull sql.NullTime
	var completedAtNull sql.NullTime
	err := row.Scan(&token.TokenID, &token.TokenNumber, &token.ServiceTypeID,
		&patientIDNull, &counterIDNull, &token.Status, &token.PriorityType,
		&token.Approved, &token.CreatedAt, &calledAtNull, &completedAtNull, &token.Revision)
	if err != nil {
		return models.Token{}, err
	}
	if patientIDNull.Valid {
		token.PatientID = patientIDNull.String
	}
	token.CounterID = nullStringPtr(counterIDNull)
	token.CalledAt = nullTimePtr(calledAtNull)
	token.CompletedAt = nullTimePtr(completedAtNull)
	return token, nil
}

func scanCounter(row pgx.Row) (models.Counter, error) {
	var counter models.Counter
	err := row.Scan(&counter.CounterID, &counter.Name, &counter.Role,
		&counter.OperStatus, &counter.Availability, &counter.ServiceTypes, &counter.Revision)
	return counter, err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
