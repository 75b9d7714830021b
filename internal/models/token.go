package models

import "time"

type Token struct {
	TokenID       string     `json:"token_id"`
	TokenNumber   string     `json:"token_number"`
	ServiceTypeID string     `json:"service_type_id"`
	PatientID     string     `json:"patient_id,omitempty"`
	CounterID     *string    `json:"counter_id,omitempty"`
	Status        string     `json:"status"`
	PriorityType  string     `json:"priority_type"`
	Approved      bool       `json:"approved"`
	CreatedAt     time.Time  `json:"created_at"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Revision      int64      `json:"revision"`
}

const (
	StatusPendingApproval = "pending_approval"
	StatusWaiting         = "waiting"
	StatusCalled          = "called"
	StatusServing         = "serving"
	StatusCompleted       = "completed"
	StatusSkipped         = "skipped"
	StatusCancelled       = "cancelled"
)

const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// Terminal reports whether a token in the given status can never move again.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}
