package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/knockcam/internal/clock"
	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/media"
	"github.com/bft-labs/knockcam/internal/ports"
)

// DefaultStreamInterval is the pause between two frame pulls.
const DefaultStreamInterval = 50 * time.Millisecond

// StreamBoundary is the multipart boundary token of the live feed.
const StreamBoundary = "frame"

// StreamContentType is the Content-Type of the live feed response.
const StreamContentType = "multipart/x-mixed-replace; boundary=" + StreamBoundary

// FrameResult is the outcome of one pull: either a ready-to-send chunk or
// the reason the frame was skipped.
type FrameResult struct {
	Chunk []byte
	Err   error
}

// StreamObserver is notified about every pull.
type StreamObserver interface {
	OnFrame(bytes int)
	OnFrameError(err error)
}

// FrameSourceConfig contains the live feed settings.
type FrameSourceConfig struct {
	// Interval is the pause after every pull. Zero disables the pause,
	// negative selects DefaultStreamInterval.
	Interval    time.Duration
	JPEGQuality int
}

// FrameSource serializes camera frames into MJPEG multipart chunks.
// One FrameSource serves any number of connections; each call to Stream
// is an independent, non-restartable sequence.
type FrameSource struct {
	camera   ports.Camera
	config   FrameSourceConfig
	clock    clock.Clock
	logger   ports.Logger
	observer StreamObserver
}

// NewFrameSource creates a frame source over cam. observer may be nil.
func NewFrameSource(cam ports.Camera, config FrameSourceConfig, clk clock.Clock, logger ports.Logger, observer StreamObserver) *FrameSource {
	if config.Interval < 0 {
		config.Interval = DefaultStreamInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &FrameSource{camera: cam, config: config, clock: clk, logger: logger, observer: observer}
}

// Next pulls and encodes one frame.
func (s *FrameSource) Next(ctx context.Context) FrameResult {
	img, err := s.camera.CaptureFrame(ctx)
	if err != nil {
		return FrameResult{Err: hardwareFault("capture frame", err)}
	}
	data, err := media.EncodeJPEG(img, s.config.JPEGQuality)
	if err != nil {
		return FrameResult{Err: err}
	}
	return FrameResult{Chunk: Chunk(data)}
}

// Stream pulls frames until ctx is done or emit fails, passing each chunk
// to emit. Failed pulls are skipped. The pause between pulls is fixed
// regardless of how long capture and encoding took.
func (s *FrameSource) Stream(ctx context.Context, emit func(chunk []byte) error) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		res := s.Next(ctx)
		if res.Err != nil {
			s.logger.Debug("frame skipped", ports.Err(res.Err))
			if s.observer != nil {
				s.observer.OnFrameError(res.Err)
			}
		} else {
			if err := emit(res.Chunk); err != nil {
				return fmt.Errorf("emit frame: %w", err)
			}
			if s.observer != nil {
				s.observer.OnFrame(len(res.Chunk))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.config.Interval):
		}
	}
}

// Chunk wraps one JPEG image in its multipart delimiter and header.
func Chunk(jpeg []byte) []byte {
	const head = "--" + StreamBoundary + "\r\nContent-Type: image/jpeg\r\n\r\n"
	out := make([]byte, 0, len(head)+len(jpeg)+2)
	out = append(out, head...)
	out = append(out, jpeg...)
	return append(out, '\r', '\n')
}

// hardwareFault wraps err in domain.ErrHardwareFault unless it already is one.
func hardwareFault(op string, err error) error {
	if errors.Is(err, domain.ErrHardwareFault) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrHardwareFault, op, err)
}
