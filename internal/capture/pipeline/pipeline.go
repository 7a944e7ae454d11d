// Package pipeline runs capture requests one at a time.
//
// Requests are admitted through a single-slot queue: while one request waits
// to be picked up, further submissions are rejected rather than queued behind
// it. The worker resolves the request's method descriptions, builds boxing
// instructions and templates, installs probes and keeps them installed until
// the request is stopped, its duration elapses or the worker is cancelled.
// Probes are then uninstalled exactly once and the worker moves on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/paramcapture/internal/capture/boxing"
	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	"github.com/coral-mesh/paramcapture/internal/capture/methodcache"
	"github.com/coral-mesh/paramcapture/internal/capture/probes"
	"github.com/coral-mesh/paramcapture/internal/config"
	"github.com/coral-mesh/paramcapture/internal/constants"
)

// Resolver maps a method description to the concrete methods it names.
type Resolver interface {
	Resolve(ctx context.Context, desc metadata.MethodDescription) ([]*metadata.Method, error)
}

// State is the pipeline's position in a capture session.
type State uint8

const (
	StateIdle State = iota
	StateResolving
	StateInstalling
	StateActive
	StateUninstalling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateInstalling:
		return "installing"
	case StateActive:
		return "active"
	case StateUninstalling:
		return "uninstalling"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	State State

	// RequestID is the request being processed, empty when idle.
	RequestID string

	// Methods is the number of instrumented methods while active.
	Methods int

	// Outstanding counts submitted requests not yet finished, including the
	// one being processed.
	Outstanding int
}

// Pipeline serializes capture requests. Submit and RequestStop may be called
// from any goroutine; Run must be called once.
type Pipeline struct {
	cfg       config.CaptureConfig
	logger    zerolog.Logger
	resolver  Resolver
	installer probes.Installer
	cache     *methodcache.Cache
	events    EventSink

	queue chan *Request

	mu          sync.Mutex
	outstanding map[string]*Request
	status      Status
	window      *window
	closed      bool
	cancelRun   context.CancelFunc
	runDone     chan struct{}
}

// New creates a pipeline. The cache is shared with the probe dispatcher.
func New(
	cfg config.CaptureConfig,
	logger zerolog.Logger,
	resolver Resolver,
	installer probes.Installer,
	cache *methodcache.Cache,
	events EventSink,
) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		logger:      logger.With().Str("component", "capture_pipeline").Logger(),
		resolver:    resolver,
		installer:   installer,
		cache:       cache,
		events:      events,
		queue:       make(chan *Request, 1),
		outstanding: make(map[string]*Request),
	}
}

// Submit admits req without blocking. A rejected request has its stop
// signal cancelled and is reported to the event sink as well as returned as
// a *SubmitError.
func (p *Pipeline) Submit(req *Request) error {
	if err := p.admit(req); err != nil {
		var submitErr *SubmitError
		if errors.As(err, &submitErr) {
			p.events.Emit(Event{
				Kind:      EventFailedToCapture,
				RequestID: submitErr.RequestID,
				Reason:    submitErr.Reason,
				Detail:    submitErr.Err.Error(),
			})
		}
		p.logger.Warn().Err(err).Msg("Capture request rejected")
		return err
	}

	p.logger.Info().
		Str("request_id", req.ID).
		Int("methods", len(req.Methods)).
		Dur("duration", req.Duration).
		Msg("Capture request queued")
	return nil
}

func (p *Pipeline) admit(req *Request) error {
	if req == nil {
		return &SubmitError{Reason: ReasonInvalidRequest, Err: fmt.Errorf("%w: nil request", ErrInvalidRequest)}
	}
	reject := func(reason FailureReason, err error) error {
		req.signalStop()
		return &SubmitError{RequestID: req.ID, Reason: reason, Err: err}
	}

	if !p.cfg.Enabled {
		return reject(ReasonInvalidRequest, fmt.Errorf("%w: capture is disabled", ErrInvalidRequest))
	}
	if len(req.Methods) == 0 {
		return reject(ReasonInvalidRequest, fmt.Errorf("%w: no methods", ErrInvalidRequest))
	}
	if _, err := p.cfg.EffectiveDuration(req.Duration); err != nil {
		return reject(ReasonInvalidRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return reject(ReasonGeneric, ErrClosed)
	}
	if _, exists := p.outstanding[req.ID]; exists {
		p.mu.Unlock()
		// The outstanding request keeps its stop signal.
		return &SubmitError{
			RequestID: req.ID,
			Reason:    ReasonInvalidRequest,
			Err:       fmt.Errorf("%w: request %s already outstanding", ErrInvalidRequest, req.ID),
		}
	}

	// Enqueue under mu so Close cannot drain the queue between the closed
	// check and the send.
	p.outstanding[req.ID] = req
	select {
	case p.queue <- req:
		p.mu.Unlock()
		return nil
	default:
		delete(p.outstanding, req.ID)
		p.mu.Unlock()
		return reject(ReasonTooManyRequests, ErrTooManyRequests)
	}
}

// RequestStop signals the stop of an outstanding request. It returns false
// when id is unknown.
func (p *Pipeline) RequestStop(id string) bool {
	p.mu.Lock()
	req, ok := p.outstanding[id]
	p.mu.Unlock()

	if !ok {
		return false
	}
	req.signalStop()
	p.logger.Info().Str("request_id", id).Msg("Capture stop requested")
	return true
}

// Status returns the current state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Outstanding = len(p.outstanding)
	return s
}

// Run processes requests until ctx is cancelled or Close is called. A failed
// request never stops the loop. Cancellation is not an error: Run returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.runDone != nil {
		p.mu.Unlock()
		return errors.New("capture pipeline already running")
	}
	p.cancelRun = cancel
	done := make(chan struct{})
	p.runDone = done
	p.mu.Unlock()
	defer close(done)

	p.logger.Info().Msg("Capture pipeline started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Capture pipeline stopped")
			return nil
		case req := <-p.queue:
			p.process(ctx, req)
		}
	}
}

// Close cancels Run, waits for it to return and uninstalls probes that are
// still installed. Later submissions fail with ErrClosed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel, done := p.cancelRun, p.runDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	// Anything still queued will never run.
	select {
	case req := <-p.queue:
		p.fail(req, ReasonGeneric, ErrClosed)
		p.finish(req)
	default:
	}

	p.mu.Lock()
	w := p.window
	p.mu.Unlock()
	if w != nil {
		return w.uninstall(context.Background())
	}

	// No window was opened, but a cancelled install may have left probes
	// behind. Uninstall is idempotent on the profiler side.
	ctx, cancel := context.WithTimeout(context.Background(), p.uninstallTimeout())
	defer cancel()
	if err := p.installer.Uninstall(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Final uninstall failed")
	}
	return nil
}

func (p *Pipeline) process(ctx context.Context, req *Request) {
	defer p.finish(req)

	logger := p.logger.With().Str("request_id", req.ID).Logger()

	p.setState(StateResolving, req.ID, 0)
	methods, err := p.resolve(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug().Msg("Capture cancelled during resolution")
			return
		}
		p.fail(req, ReasonUnresolvedMethods, err)
		return
	}

	// Start from an empty cache so templates of a previous session cannot
	// be served to the new probes.
	p.cache.Clear()

	installReq, err := p.prepare(methods)
	if err != nil {
		p.cache.Clear()
		p.fail(req, ReasonGeneric, err)
		return
	}

	p.setState(StateInstalling, req.ID, len(methods))
	if err := p.installer.Install(ctx, installReq); err != nil {
		p.cache.Clear()
		if ctx.Err() != nil {
			logger.Debug().Err(err).Msg("Capture cancelled during install")
			return
		}
		p.fail(req, ReasonGeneric, fmt.Errorf("installing probes: %w", err))
		return
	}

	w := &window{installer: p.installer, logger: logger, timeout: p.uninstallTimeout()}
	p.mu.Lock()
	p.window = w
	p.mu.Unlock()

	p.setState(StateActive, req.ID, len(methods))
	p.events.Emit(Event{Kind: EventCapturingStart, RequestID: req.ID})
	logger.Info().Int("methods", len(methods)).Msg("Capturing started")

	p.await(ctx, req, logger)

	p.setState(StateUninstalling, req.ID, len(methods))
	_ = w.uninstall(ctx)
	p.cache.Clear()

	p.events.Emit(Event{Kind: EventCapturingStop, RequestID: req.ID})
	logger.Info().Msg("Capturing stopped")
}

// resolve resolves every description. Any description that matches nothing
// fails the whole request; the error lists all of them.
func (p *Pipeline) resolve(ctx context.Context, req *Request) ([]*metadata.Method, error) {
	var (
		methods    []*metadata.Method
		seen       = make(map[metadata.FunctionID]bool)
		unresolved []string
	)

	for _, desc := range req.Methods {
		resolved, err := p.resolver.Resolve(ctx, desc)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil || len(resolved) == 0 {
			if err == nil {
				err = errors.New("no matching method")
			}
			unresolved = append(unresolved, fmt.Sprintf("%s (%v)", desc, err))
			continue
		}
		for _, m := range resolved {
			if seen[m.FunctionID] {
				continue
			}
			seen[m.FunctionID] = true
			methods = append(methods, m)
		}
	}

	if len(unresolved) > 0 {
		return nil, fmt.Errorf("unresolved methods: %s", strings.Join(unresolved, "; "))
	}
	return methods, nil
}

// prepare assembles boxing instructions, fills the cache and builds the
// install request. A method whose template cannot be cached fails the
// request so the cache never disagrees with the installed probes.
func (p *Pipeline) prepare(methods []*metadata.Method) (*probes.InstallRequest, error) {
	list := make([]probes.MethodProbe, 0, len(methods))
	for _, m := range methods {
		instructions := boxing.Assemble(m)
		if !p.cache.TryAdd(m, instructions) {
			return nil, fmt.Errorf("method %s (%s) cannot be captured", m.QualifiedName(), m.FunctionID)
		}
		list = append(list, probes.MethodProbe{
			FunctionID:   m.FunctionID,
			BoxingTokens: boxing.Tokens(instructions),
		})
	}
	return probes.NewInstallRequest(list)
}

// await blocks until the request is stopped, its duration elapses or ctx is
// cancelled.
func (p *Pipeline) await(ctx context.Context, req *Request, logger zerolog.Logger) {
	d, err := p.cfg.EffectiveDuration(req.Duration)
	if err != nil {
		logger.Warn().Err(err).Msg("Ending capture with invalid duration")
		return
	}

	var expired <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-req.Stopped():
		logger.Debug().Msg("Capture stop signalled")
	case <-expired:
		logger.Debug().Msg("Capture duration elapsed")
	case <-ctx.Done():
		logger.Debug().Msg("Capture cancelled")
	}
}

func (p *Pipeline) fail(req *Request, reason FailureReason, err error) {
	p.events.Emit(Event{
		Kind:      EventFailedToCapture,
		RequestID: req.ID,
		Reason:    reason,
		Detail:    err.Error(),
	})
}

// finish removes req from the registry and returns to idle.
func (p *Pipeline) finish(req *Request) {
	req.signalStop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outstanding[req.ID] == req {
		delete(p.outstanding, req.ID)
	}
	p.status = Status{State: StateIdle}
}

func (p *Pipeline) setState(state State, requestID string, methods int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = Status{State: state, RequestID: requestID, Methods: methods}
}

func (p *Pipeline) uninstallTimeout() time.Duration {
	if p.cfg.Profiler.ResponseTimeout > 0 {
		return p.cfg.Profiler.ResponseTimeout
	}
	return constants.DefaultProfilerResponseTimeout
}

// window is one period during which probes are installed. Its uninstall runs
// at most once no matter how many paths end the window.
type window struct {
	installer probes.Installer
	logger    zerolog.Logger
	timeout   time.Duration

	once sync.Once
	err  error
}

// uninstall removes the probes. It runs even when ctx is already cancelled,
// bounded by the profiler response timeout.
func (w *window) uninstall(ctx context.Context) error {
	w.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()

		if err := w.installer.Uninstall(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Failed to uninstall probes")
			w.err = err
		}
	})
	return w.err
}
