package models

// transitions is the full order lifecycle:
// PENDING -> PAID -> PROCESSING -> COMPLETED, PENDING -> CANCELLED,
// and PAID/PROCESSING -> FAILED for exceptional paths.
var transitions = map[string][]string{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusFailed},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusFailed},
}

// CanTransition reports whether an order may move from one status to
// another. Terminal statuses have no outgoing transitions, so applying
// the same transition twice always fails the second time.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
