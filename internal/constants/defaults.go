package constants

import "time"

// Capture session defaults.
const (
	// DefaultCaptureDuration applies to requests that do not ask for one.
	DefaultCaptureDuration = 30 * time.Second

	// DefaultMaxCaptureDuration caps every request.
	DefaultMaxCaptureDuration = 10 * time.Minute
)

// Profiler connection defaults.
const (
	DefaultProfilerDialTimeout = 5 * time.Second

	// DefaultProfilerResponseTimeout covers the profiler rewriting every
	// requested method before it replies.
	DefaultProfilerResponseTimeout = 30 * time.Second

	DefaultProfilerDialRetries = 3

	DefaultProfilerDialBackoff = 200 * time.Millisecond
)

// DefaultDispatchBufferSize is the number of probe events queued for the log
// emitter before new ones are dropped.
const DefaultDispatchBufferSize = 4096
