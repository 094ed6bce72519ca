package ports

import (
	"context"

	"github.com/bft-labs/knockcam/internal/domain"
)

// Notifier reports activations to the backend.
type Notifier interface {
	// Dispatch makes exactly one delivery attempt and classifies it.
	// It never returns an error and never panics on network failures.
	Dispatch(ctx context.Context, event domain.ActivationEvent) domain.DispatchOutcome
}
