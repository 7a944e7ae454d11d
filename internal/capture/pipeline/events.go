package pipeline

import (
	"github.com/rs/zerolog"
)

// EventKind names a telemetry event.
type EventKind uint8

const (
	EventCapturingStart EventKind = iota
	EventCapturingStop
	EventFailedToCapture
)

func (k EventKind) String() string {
	switch k {
	case EventCapturingStart:
		return "CapturingStart"
	case EventCapturingStop:
		return "CapturingStop"
	case EventFailedToCapture:
		return "FailedToCapture"
	default:
		return "Unknown"
	}
}

// Event is a telemetry event. Reason and Detail are only set for
// EventFailedToCapture.
type Event struct {
	Kind      EventKind
	RequestID string
	Reason    FailureReason
	Detail    string
}

// EventSink receives telemetry events. Emit is called synchronously from the
// pipeline worker and from Submit, so it must not block.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit calls f(e).
func (f EventSinkFunc) Emit(e Event) {
	f(e)
}

// MultiSink fans events out to every sink in order.
type MultiSink []EventSink

// Emit forwards e to each sink.
func (m MultiSink) Emit(e Event) {
	for _, sink := range m {
		sink.Emit(e)
	}
}

// LogSink writes events to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{
		logger: logger.With().Str("component", "capture_events").Logger(),
	}
}

// Emit logs e. Failures are warnings; the agent keeps running.
func (s *LogSink) Emit(e Event) {
	switch e.Kind {
	case EventFailedToCapture:
		s.logger.Warn().
			Str("event", e.Kind.String()).
			Str("request_id", e.RequestID).
			Str("reason", e.Reason.String()).
			Str("detail", e.Detail).
			Msg("Failed to capture")
	default:
		s.logger.Info().
			Str("event", e.Kind.String()).
			Str("request_id", e.RequestID).
			Msg("Capture event")
	}
}
