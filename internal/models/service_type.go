package models

import "time"

type ServiceType struct {
	ServiceTypeID     string `json:"service_type_id"`
	Name              string `json:"name"`
	DefaultAvgMinutes int    `json:"default_avg_minutes"`
	AllowPriority     bool   `json:"allow_priority"`
	Revision          int64  `json:"revision"`
}

// ServiceMetric is the rolling service-time aggregate for one department.
type ServiceMetric struct {
	ServiceTypeID         string    `json:"service_type_id"`
	AvgServiceTimeMinutes float64   `json:"avg_service_time_minutes"`
	TotalServed           int64     `json:"total_served"`
	LastUpdated           time.Time `json:"last_updated"`
	Revision              int64     `json:"revision"`
}

type Patient struct {
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	MedicalID string `json:"medical_id,omitempty"`
	Revision  int64  `json:"revision"`
}
