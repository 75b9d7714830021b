package store

import "hqms/queue-service/internal/models"

var transitionMap = map[string][]string{
	models.StatusPendingApproval: {models.StatusWaiting, models.StatusCancelled},
	models.StatusWaiting:         {models.StatusServing},
	models.StatusServing:         {models.StatusCompleted, models.StatusSkipped},
}

// ValidTransition reports whether a token may move from one status to another.
// Terminal statuses have no outgoing edges.
func ValidTransition(from, to string) bool {
	allowed, ok := transitionMap[from]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}
