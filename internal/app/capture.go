package app

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/bft-labs/knockcam/internal/clock"
	"github.com/bft-labs/knockcam/internal/media"
	"github.com/bft-labs/knockcam/internal/ports"
)

// CaptureResult is one single-shot capture ready for transport.
type CaptureResult struct {
	// Image is the JPEG bytes in standard base64.
	Image     string
	Bytes     int
	Timestamp time.Time
}

// Capturer takes single-shot pictures.
type Capturer struct {
	camera  ports.Camera
	quality int
	clock   clock.Clock
}

// NewCapturer creates a capturer over cam.
func NewCapturer(cam ports.Camera, jpegQuality int, clk clock.Clock) *Capturer {
	if clk == nil {
		clk = clock.Real()
	}
	return &Capturer{camera: cam, quality: jpegQuality, clock: clk}
}

// Capture pulls exactly one frame, encodes it and returns it as text.
// Camera errors wrap domain.ErrHardwareFault, encoder errors
// domain.ErrEncodeFailure.
func (c *Capturer) Capture(ctx context.Context) (CaptureResult, error) {
	img, err := c.camera.CaptureFrame(ctx)
	if err != nil {
		return CaptureResult{}, hardwareFault("capture frame", err)
	}
	at := c.clock.Now()

	data, err := media.EncodeJPEG(img, c.quality)
	if err != nil {
		return CaptureResult{}, err
	}

	return CaptureResult{
		Image:     base64.StdEncoding.EncodeToString(data),
		Bytes:     len(data),
		Timestamp: at,
	}, nil
}
