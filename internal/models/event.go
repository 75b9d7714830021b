package models

// QueueEvent is the lifecycle notification broadcast to displays and patients.
type QueueEvent struct {
	Type        string `json:"type"`
	TokenNumber string `json:"token_number"`
	CounterName string `json:"counter_name,omitempty"`
	ServiceName string `json:"service_name"`
	Status      string `json:"status"`
}

const (
	EventTokenCreated      = "TOKEN_CREATED"
	EventTokenCalled       = "TOKEN_CALLED"
	EventTokenCompleted    = "TOKEN_COMPLETED"
	EventEmergencyCreated  = "EMERGENCY_CREATED"
	EventEmergencyApproved = "EMERGENCY_APPROVED"
	EventEmergencyRejected = "EMERGENCY_REJECTED"
)
