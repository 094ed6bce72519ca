package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with durations as strings so the TOML stays readable.
type FileConfig struct {
	BackendURL      string `toml:"backend_url"`
	Sensor          string `toml:"sensor"`
	Debounce        string `toml:"debounce"`
	Settle          string `toml:"settle"`
	DegradedBackoff string `toml:"degraded_backoff"`
	DispatchTimeout string `toml:"dispatch_timeout"`
	ListenAddr      string `toml:"listen_addr"`
	Port            int    `toml:"port"`
	CameraSource    string `toml:"camera_source"`
	FrameWidth      int    `toml:"frame_width"`
	FrameHeight     int    `toml:"frame_height"`
	JPEGQuality     int    `toml:"jpeg_quality"`
	StreamInterval  string `toml:"stream_interval"`
	ShutdownGrace   string `toml:"shutdown_grace"`
	LogLevel        string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.knockcam/config.toml, or "" when the home
// directory cannot be resolved.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".knockcam", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to cfg.
// Flags in changed keep their values.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("backend-url", fc.BackendURL, &cfg.BackendURL)
	s.setString("sensor", fc.Sensor, &cfg.Sensor)
	s.setString("listen-addr", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("camera-source", fc.CameraSource, &cfg.CameraSource)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"debounce", fc.Debounce, &cfg.Debounce},
		{"settle", fc.Settle, &cfg.Settle},
		{"degraded-backoff", fc.DegradedBackoff, &cfg.DegradedBackoff},
		{"dispatch-timeout", fc.DispatchTimeout, &cfg.DispatchTimeout},
		{"stream-interval", fc.StreamInterval, &cfg.StreamInterval},
		{"shutdown-grace", fc.ShutdownGrace, &cfg.ShutdownGrace},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setInt("port", fc.Port, &cfg.Port)
	s.setInt("frame-width", fc.FrameWidth, &cfg.FrameWidth)
	s.setInt("frame-height", fc.FrameHeight, &cfg.FrameHeight)
	s.setInt("jpeg-quality", fc.JPEGQuality, &cfg.JPEGQuality)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
