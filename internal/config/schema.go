// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/coral-mesh/paramcapture/internal/constants"
)

// CaptureConfig configures the parameter capture agent.
type CaptureConfig struct {
	Enabled bool `yaml:"enabled" env:"PARAMCAPTURE_ENABLED"`

	// DefaultDuration applies to requests with a zero duration. Zero here
	// means such requests run until stopped.
	DefaultDuration time.Duration `yaml:"default_duration" env:"PARAMCAPTURE_DEFAULT_DURATION"`

	// MaxDuration caps every request. Zero disables the cap.
	MaxDuration time.Duration `yaml:"max_duration" env:"PARAMCAPTURE_MAX_DURATION"`

	// CatalogPath is the metadata snapshot used to resolve method
	// descriptions.
	CatalogPath string `yaml:"catalog_path" env:"PARAMCAPTURE_CATALOG"`

	Profiler ProfilerConfig `yaml:"profiler"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Log      LogConfig      `yaml:"log"`
}

// ProfilerConfig locates the in-process profiler.
type ProfilerConfig struct {
	SocketPath      string        `yaml:"socket_path" env:"PARAMCAPTURE_PROFILER_SOCKET"`
	DialTimeout     time.Duration `yaml:"dial_timeout" env:"PARAMCAPTURE_PROFILER_DIAL_TIMEOUT"`
	ResponseTimeout time.Duration `yaml:"response_timeout" env:"PARAMCAPTURE_PROFILER_RESPONSE_TIMEOUT"`
	DialRetries     int           `yaml:"dial_retries" env:"PARAMCAPTURE_PROFILER_DIAL_RETRIES"`
}

// DispatchConfig configures delivery of probe hits from the profiler.
type DispatchConfig struct {
	// SocketPath is where the agent listens for probe events. Empty
	// disables the listener.
	SocketPath string `yaml:"socket_path" env:"PARAMCAPTURE_DISPATCH_SOCKET"`
	BufferSize int    `yaml:"buffer_size" env:"PARAMCAPTURE_DISPATCH_BUFFER_SIZE"`
}

// LogConfig configures the agent logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"PARAMCAPTURE_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PARAMCAPTURE_LOG_PRETTY"`
}

// DefaultCaptureConfig returns the built-in defaults.
func DefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		Enabled:         true,
		DefaultDuration: constants.DefaultCaptureDuration,
		MaxDuration:     constants.DefaultMaxCaptureDuration,
		Profiler: ProfilerConfig{
			SocketPath:      constants.DefaultProfilerSocket,
			DialTimeout:     constants.DefaultProfilerDialTimeout,
			ResponseTimeout: constants.DefaultProfilerResponseTimeout,
			DialRetries:     constants.DefaultProfilerDialRetries,
		},
		Dispatch: DispatchConfig{
			SocketPath: constants.DefaultEventSocket,
			BufferSize: constants.DefaultDispatchBufferSize,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// ErrNegativeDuration is returned for a requested duration below zero.
var ErrNegativeDuration = errors.New("duration must not be negative")

// EffectiveDuration applies the default and the cap to a requested duration.
// Zero means unlimited.
func (c *CaptureConfig) EffectiveDuration(requested time.Duration) (time.Duration, error) {
	if requested < 0 {
		return 0, fmt.Errorf("%w, got %s", ErrNegativeDuration, requested)
	}
	d := requested
	if d == 0 {
		d = c.DefaultDuration
	}
	if c.MaxDuration > 0 && (d == 0 || d > c.MaxDuration) {
		d = c.MaxDuration
	}
	return d, nil
}
