package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration and returns the first problem found.
func (c *CaptureConfig) Validate() error {
	if c.DefaultDuration < 0 {
		return fmt.Errorf("default_duration must not be negative, got %s", c.DefaultDuration)
	}
	if c.MaxDuration < 0 {
		return fmt.Errorf("max_duration must not be negative, got %s", c.MaxDuration)
	}
	if c.MaxDuration > 0 && c.DefaultDuration > c.MaxDuration {
		return fmt.Errorf("default_duration %s exceeds max_duration %s", c.DefaultDuration, c.MaxDuration)
	}

	if strings.TrimSpace(c.Profiler.SocketPath) == "" {
		return fmt.Errorf("profiler.socket_path cannot be empty")
	}
	if c.Profiler.DialTimeout <= 0 {
		return fmt.Errorf("profiler.dial_timeout must be positive, got %s", c.Profiler.DialTimeout)
	}
	if c.Profiler.ResponseTimeout <= 0 {
		return fmt.Errorf("profiler.response_timeout must be positive, got %s", c.Profiler.ResponseTimeout)
	}
	if c.Profiler.DialRetries < 1 {
		return fmt.Errorf("profiler.dial_retries must be at least 1, got %d", c.Profiler.DialRetries)
	}

	if c.Dispatch.BufferSize < 1 {
		return fmt.Errorf("dispatch.buffer_size must be at least 1, got %d", c.Dispatch.BufferSize)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}

	return nil
}
