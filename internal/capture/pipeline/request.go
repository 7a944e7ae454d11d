package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
)

// Request asks for the arguments of Methods to be captured for Duration.
type Request struct {
	ID       string
	Methods  []metadata.MethodDescription
	Duration time.Duration

	// stop is cancelled by RequestStop, by a rejected submission, and when
	// the request has been fully processed.
	stop       context.Context
	cancelStop context.CancelFunc
}

// NewRequest creates a request. An empty id is replaced with a random UUID.
// A zero duration uses the configured default.
func NewRequest(id string, methods []metadata.MethodDescription, duration time.Duration) *Request {
	if id == "" {
		id = uuid.NewString()
	}
	stop, cancel := context.WithCancel(context.Background())
	return &Request{
		ID:         id,
		Methods:    methods,
		Duration:   duration,
		stop:       stop,
		cancelStop: cancel,
	}
}

// Stopped is closed once a stop was requested or the request is finished.
func (r *Request) Stopped() <-chan struct{} {
	return r.stop.Done()
}

func (r *Request) signalStop() {
	r.cancelStop()
}

// FailureReason categorizes why a request did not lead to a capture.
type FailureReason uint8

const (
	ReasonGeneric FailureReason = iota
	ReasonUnresolvedMethods
	ReasonInvalidRequest
	ReasonTooManyRequests
)

func (r FailureReason) String() string {
	switch r {
	case ReasonUnresolvedMethods:
		return "UnresolvedMethods"
	case ReasonInvalidRequest:
		return "InvalidRequest"
	case ReasonTooManyRequests:
		return "TooManyRequests"
	default:
		return "Generic"
	}
}

var (
	// ErrInvalidRequest is returned for requests without methods, with an
	// identifier that is still outstanding, or while capture is disabled.
	ErrInvalidRequest = errors.New("invalid capture request")

	// ErrTooManyRequests is returned when a request is already waiting to
	// be processed.
	ErrTooManyRequests = errors.New("too many capture requests")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("capture pipeline closed")
)

// SubmitError is returned by Submit. It unwraps to one of the sentinel
// errors above.
type SubmitError struct {
	RequestID string
	Reason    FailureReason
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("request %s rejected (%s): %v", e.RequestID, e.Reason, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
