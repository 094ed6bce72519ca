package ports

import (
	"context"

	"github.com/bft-labs/knockcam/internal/domain"
)

// SensorLine is a single digital input line with edge detection.
type SensorLine interface {
	// WaitForEdge blocks without spinning until the next transition on the
	// line and returns it. Returns ctx.Err() when ctx is done and a non-nil
	// error when the line can no longer be read.
	WaitForEdge(ctx context.Context) (domain.Edge, error)

	// Close releases the line. A blocked WaitForEdge returns promptly.
	Close() error
}
