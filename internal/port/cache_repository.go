package port

import (
	"context"

	"github.com/rl1809/checkout/internal/core/domain"
)

// ClaimState is the outcome of claiming a request id.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the request id and must Complete or Release it
	ClaimAcquired ClaimState = iota
	// ClaimInFlight means another attempt with the same id has not finished
	ClaimInFlight
	// ClaimCompleted means an order was already placed for the id
	ClaimCompleted
)

type IdempotencyStore interface {
	// Claim reserves requestID, or reports the order already placed under it
	Claim(ctx context.Context, requestID string) (ClaimState, *domain.Order, error)

	// Complete records the placed order for requestID
	Complete(ctx context.Context, requestID string, order domain.Order) error

	// Release drops an unfinished claim so the request can be retried
	Release(ctx context.Context, requestID string) error
}
