package models

// Counter is a service point. Role distinguishes a plain department counter
// from a doctor; both occupy the same entity shape because a doctor is just a
// counter that tokens can be bound to ahead of dispatch.
type Counter struct {
	CounterID    string   `json:"counter_id"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	OperStatus   string   `json:"oper_status"`
	Availability string   `json:"availability"`
	ServiceTypes []string `json:"service_types"`
	Revision     int64    `json:"revision"`
}

const (
	RoleDepartmentCounter = "department_counter"
	RoleDoctor            = "doctor"
)

const (
	CounterOpen   = "open"
	CounterClosed = "closed"
)

const (
	CounterAvailable = "available"
	CounterBusy      = "busy"
)

// Serves reports whether the counter is configured for the given department.
func (c Counter) Serves(serviceTypeID string) bool {
	for _, id := range c.ServiceTypes {
		if id == serviceTypeID {
			return true
		}
	}
	return false
}
