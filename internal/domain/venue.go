package domain

import "context"

// VenueAck is the venue's response to a successfully processed attempt.
type VenueAck struct {
	OrderID        string
	Status         OrderStatus
	FilledQuantity float64
	FilledPrice    float64
}

// Venue is the abstract order-placement capability. Placement is assumed
// idempotent per distinct attempt OrderID+AttemptNumber. Implementations
// classify failures through VenueError so the executor can tell price races
// apart from structural errors.
type Venue interface {
	PlaceOrder(ctx context.Context, attempt ExecutionAttempt) (VenueAck, error)
}
