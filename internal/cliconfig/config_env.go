package cliconfig

import (
	"os"
	"time"
)

// EnvPrefix prefixes every environment variable knockcam reads.
const EnvPrefix = "KNOCKCAM_"

// ApplyEnvConfig applies configuration from environment variables (KNOCKCAM_*).
// It respects flags that have been explicitly set (changed map) and returns
// an error if any variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("backend-url", os.Getenv(EnvPrefix+"BACKEND_URL"), &cfg.BackendURL)
	s.setString("sensor", os.Getenv(EnvPrefix+"SENSOR"), &cfg.Sensor)
	s.setString("listen-addr", os.Getenv(EnvPrefix+"LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("camera-source", os.Getenv(EnvPrefix+"CAMERA_SOURCE"), &cfg.CameraSource)
	s.setString("log-level", os.Getenv(EnvPrefix+"LOG_LEVEL"), &cfg.LogLevel)

	durations := []struct {
		flag string
		env  string
		dst  *time.Duration
	}{
		{"debounce", "DEBOUNCE", &cfg.Debounce},
		{"settle", "SETTLE", &cfg.Settle},
		{"degraded-backoff", "DEGRADED_BACKOFF", &cfg.DegradedBackoff},
		{"dispatch-timeout", "DISPATCH_TIMEOUT", &cfg.DispatchTimeout},
		{"stream-interval", "STREAM_INTERVAL", &cfg.StreamInterval},
		{"shutdown-grace", "SHUTDOWN_GRACE", &cfg.ShutdownGrace},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, os.Getenv(EnvPrefix+d.env), d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		flag string
		env  string
		dst  *int
	}{
		{"port", "PORT", &cfg.Port},
		{"frame-width", "FRAME_WIDTH", &cfg.FrameWidth},
		{"frame-height", "FRAME_HEIGHT", &cfg.FrameHeight},
		{"jpeg-quality", "JPEG_QUALITY", &cfg.JPEGQuality},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, os.Getenv(EnvPrefix+i.env), i.dst); err != nil {
			return err
		}
	}

	return nil
}
