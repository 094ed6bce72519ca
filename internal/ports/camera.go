package ports

import (
	"context"

	"github.com/bft-labs/knockcam/internal/media"
)

// Camera produces raw frames on request.
type Camera interface {
	// CaptureFrame returns one frame. Implementations used from more than
	// one goroutine must make each call atomic (see camera.Locked).
	CaptureFrame(ctx context.Context) (media.RawImage, error)

	// Close releases the device.
	Close() error
}
