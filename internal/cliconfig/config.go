package cliconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/knockcam/internal/domain"
)

// DefaultBackendURL is the backend that receives knock notifications.
const DefaultBackendURL = "http://10.39.154.49:4000"

// Config holds CLI configuration for knockcam.
type Config struct {
	BackendURL      string        `json:"backend_url"`
	Sensor          string        `json:"sensor"`
	Debounce        time.Duration `json:"debounce"`
	Settle          time.Duration `json:"settle"`
	DegradedBackoff time.Duration `json:"degraded_backoff"`
	DispatchTimeout time.Duration `json:"dispatch_timeout"`

	ListenAddr string `json:"listen_addr"`
	Port       int    `json:"port"`

	CameraSource   string        `json:"camera_source"`
	FrameWidth     int           `json:"frame_width"`
	FrameHeight    int           `json:"frame_height"`
	JPEGQuality    int           `json:"jpeg_quality"`
	StreamInterval time.Duration `json:"stream_interval"`

	ShutdownGrace time.Duration `json:"shutdown_grace"`
	LogLevel      string        `json:"log_level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		BackendURL:      DefaultBackendURL,
		Sensor:          "gpiochip0:17",
		Debounce:        300 * time.Millisecond,
		Settle:          200 * time.Millisecond,
		DegradedBackoff: time.Second,
		DispatchTimeout: 3 * time.Second,
		ListenAddr:      "0.0.0.0",
		Port:            5000,
		CameraSource:    "libcamerasrc",
		FrameWidth:      1296,
		FrameHeight:     972,
		JPEGQuality:     95,
		StreamInterval:  50 * time.Millisecond,
		ShutdownGrace:   5 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks the configuration and normalizes the backend URL.
func (c *Config) Validate() error {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	if c.BackendURL == "" {
		return fmt.Errorf("%w: backend-url is required", domain.ErrInvalidConfig)
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("%w: backend-url: %v", domain.ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: backend-url must be http or https, got %q", domain.ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: backend-url has no host", domain.ErrInvalidConfig)
	}

	if strings.TrimSpace(c.Sensor) == "" {
		return fmt.Errorf("%w: sensor is required", domain.ErrInvalidConfig)
	}

	durations := []struct {
		flag string
		d    time.Duration
	}{
		{"debounce", c.Debounce},
		{"settle", c.Settle},
		{"degraded-backoff", c.DegradedBackoff},
		{"dispatch-timeout", c.DispatchTimeout},
		{"stream-interval", c.StreamInterval},
		{"shutdown-grace", c.ShutdownGrace},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", domain.ErrInvalidConfig, d.flag, d.d)
		}
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port out of range: %d", domain.ErrInvalidConfig, c.Port)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg-quality must be within 1..100, got %d", domain.ErrInvalidConfig, c.JPEGQuality)
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("%w: frame size must be positive, got %dx%d", domain.ErrInvalidConfig, c.FrameWidth, c.FrameHeight)
	}
	if c.CameraSource == "" {
		c.CameraSource = "libcamerasrc"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log-level: %v", domain.ErrInvalidConfig, err)
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddr, c.Port)
}

// configSetter applies values while respecting flag precedence.
// Values whose flag was set explicitly are left alone.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}
