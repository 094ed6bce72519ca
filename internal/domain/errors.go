package domain

import "errors"

// Domain errors represent error conditions in the knockcam domain.
// They are wrapped with context by the adapters and checked with errors.Is.
var (
	// ErrHardwareFault is returned when the sensor line or the camera is
	// unavailable or unreadable.
	ErrHardwareFault = errors.New("knockcam: hardware fault")

	// ErrEncodeFailure is returned when a frame cannot be compressed.
	ErrEncodeFailure = errors.New("knockcam: encode failure")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("knockcam: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("knockcam: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("knockcam: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("knockcam: invalid configuration")
)
