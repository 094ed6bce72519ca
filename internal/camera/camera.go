// Package camera holds the camera implementations that need no hardware
// and the wrapper that makes any camera safe to share between the live
// feed and single-shot capture.
package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/media"
	"github.com/bft-labs/knockcam/internal/ports"
)

// Locked serializes access to a camera. Each CaptureFrame runs to
// completion before the next one starts, whichever request issued it.
type Locked struct {
	mu     sync.Mutex
	cam    ports.Camera
	closed bool
}

// NewLocked wraps cam.
func NewLocked(cam ports.Camera) *Locked {
	return &Locked{cam: cam}
}

func (l *Locked) CaptureFrame(ctx context.Context) (media.RawImage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return media.RawImage{}, fmt.Errorf("%w: camera closed", domain.ErrHardwareFault)
	}
	if err := ctx.Err(); err != nil {
		return media.RawImage{}, err
	}
	return l.cam.CaptureFrame(ctx)
}

// Close waits for an in-flight capture and closes the camera once.
func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.cam.Close()
}

// Unavailable stands in for a camera that failed to initialize. Every
// capture fails with the initialization error.
type Unavailable struct {
	Cause error
}

func (u Unavailable) CaptureFrame(context.Context) (media.RawImage, error) {
	return media.RawImage{}, fmt.Errorf("%w: camera unavailable: %v", domain.ErrHardwareFault, u.Cause)
}

func (Unavailable) Close() error { return nil }

// Available reports whether cam can produce frames at all.
func Available(cam ports.Camera) bool {
	switch c := cam.(type) {
	case Unavailable, *Unavailable:
		return false
	case *Locked:
		return Available(c.cam)
	default:
		return true
	}
}
