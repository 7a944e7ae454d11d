package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/paramcapture/internal/capture/boxing"
	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	"github.com/coral-mesh/paramcapture/internal/capture/methodcache"
	"github.com/coral-mesh/paramcapture/internal/capture/probes"
	"github.com/coral-mesh/paramcapture/internal/config"
	"github.com/coral-mesh/paramcapture/internal/testutil"
)

// fakeResolver resolves descriptions from a fixed map.
type fakeResolver struct {
	methods map[string][]*metadata.Method
}

func (r *fakeResolver) Resolve(_ context.Context, desc metadata.MethodDescription) ([]*metadata.Method, error) {
	methods, ok := r.methods[desc.String()]
	if !ok {
		return nil, fmt.Errorf("no matching method: %s", desc)
	}
	return methods, nil
}

// eventRecorder collects events and lets tests wait for them.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan Event, 64)}
}

func (r *eventRecorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.ch <- e
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// next waits for the next event of kind, skipping others.
func (r *eventRecorder) next(t *testing.T, kind EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-r.ch:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return Event{}
		}
	}
}

var placeOrder = metadata.MethodDescription{
	ModuleName: "Shop",
	TypeName:   "Shop.Orders.OrderService",
	MethodName: "PlaceOrder",
}

func testMethod(id metadata.FunctionID, name string) *metadata.Method {
	return &metadata.Method{
		FunctionID: id,
		Module:     "Shop.dll",
		Token:      metadata.NewToken(metadata.TableMethodDef, uint32(id)),
		DeclaringType: &metadata.Type{
			Name:      "OrderService",
			Namespace: "Shop.Orders",
			Module:    "Shop.dll",
			Kind:      metadata.KindClass,
			Token:     0x02000002,
		},
		Name: name,
		Parameters: []metadata.Parameter{
			{Name: "quantity", Type: &metadata.Type{
				Name: "Int32", Namespace: "System", Kind: metadata.KindPrimitive, Primitive: metadata.PrimitiveInt32,
			}},
		},
		Signature: []byte{0x20, 0x01, 0x01, 0x08},
	}
}

type harness struct {
	pipeline  *Pipeline
	installer *probes.Recorder
	cache     *methodcache.Cache
	events    *eventRecorder
}

func newHarness(t *testing.T, mutate func(*config.CaptureConfig)) *harness {
	t.Helper()

	cfg := config.DefaultCaptureConfig()
	cfg.Profiler.ResponseTimeout = time.Second
	if mutate != nil {
		mutate(cfg)
	}

	resolver := &fakeResolver{methods: map[string][]*metadata.Method{
		placeOrder.String(): {testMethod(0x10, "PlaceOrder"), testMethod(0x11, "PlaceOrder")},
	}}

	h := &harness{
		installer: probes.NewRecorder(zerolog.Nop()),
		cache:     methodcache.New(zerolog.Nop()),
		events:    newEventRecorder(),
	}
	h.pipeline = New(*cfg, testutil.NewTestLoggerWithOutput(t), resolver, h.installer, h.cache, h.events)
	return h
}

// start runs the pipeline until the test ends.
func (h *harness) start(t *testing.T) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.pipeline.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("pipeline did not stop")
		}
	})
	return cancel
}

func TestSubmit_SecondRequestRejectedWhileFirstQueued(t *testing.T) {
	h := newHarness(t, nil)

	first := NewRequest("first", []metadata.MethodDescription{placeOrder}, time.Second)
	second := NewRequest("second", []metadata.MethodDescription{placeOrder}, time.Second)

	require.NoError(t, h.pipeline.Submit(first))
	err := h.pipeline.Submit(second)

	var submitErr *SubmitError
	require.True(t, errors.As(err, &submitErr))
	assert.Equal(t, ReasonTooManyRequests, submitErr.Reason)
	assert.ErrorIs(t, err, ErrTooManyRequests)

	// The rejected request is unregistered and its stop signal cancelled.
	assert.False(t, h.pipeline.RequestStop("second"))
	select {
	case <-second.Stopped():
	default:
		t.Fatal("rejected request was not stopped")
	}

	// The queued one is untouched.
	select {
	case <-first.Stopped():
		t.Fatal("queued request was stopped")
	default:
	}
	assert.Equal(t, 1, h.pipeline.Status().Outstanding)

	events := h.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventFailedToCapture, events[0].Kind)
	assert.Equal(t, "second", events[0].RequestID)
	assert.Equal(t, ReasonTooManyRequests, events[0].Reason)
}

func TestSubmit_EmptyMethodListRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	err := h.pipeline.Submit(NewRequest("empty", nil, time.Second))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	e := h.events.next(t, EventFailedToCapture, time.Second)
	assert.Equal(t, ReasonInvalidRequest, e.Reason)
	assert.Equal(t, "empty", e.RequestID)

	// Give the worker a chance to misbehave.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.installer.Installs())
}

func TestSubmit_DuplicateIDRejected(t *testing.T) {
	h := newHarness(t, nil)

	original := NewRequest("dup", []metadata.MethodDescription{placeOrder}, time.Second)
	require.NoError(t, h.pipeline.Submit(original))

	err := h.pipeline.Submit(NewRequest("dup", []metadata.MethodDescription{placeOrder}, time.Second))

	var submitErr *SubmitError
	require.True(t, errors.As(err, &submitErr))
	assert.Equal(t, ReasonInvalidRequest, submitErr.Reason)

	select {
	case <-original.Stopped():
		t.Fatal("duplicate submission stopped the original request")
	default:
	}
}

func TestSubmit_Disabled(t *testing.T) {
	h := newHarness(t, func(cfg *config.CaptureConfig) { cfg.Enabled = false })

	err := h.pipeline.Submit(NewRequest("", []metadata.MethodDescription{placeOrder}, time.Second))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "disabled")
}

func TestSubmit_NegativeDurationRejected(t *testing.T) {
	h := newHarness(t, func(cfg *config.CaptureConfig) { cfg.MaxDuration = 100 * time.Millisecond })
	h.start(t)

	req := NewRequest("neg", []metadata.MethodDescription{placeOrder}, -time.Second)
	err := h.pipeline.Submit(req)

	var submitErr *SubmitError
	require.True(t, errors.As(err, &submitErr))
	assert.Equal(t, ReasonInvalidRequest, submitErr.Reason)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, config.ErrNegativeDuration)

	e := h.events.next(t, EventFailedToCapture, time.Second)
	assert.Equal(t, "neg", e.RequestID)
	assert.Equal(t, ReasonInvalidRequest, e.Reason)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.installer.Installs())
	assert.False(t, h.installer.Active())
	assert.Equal(t, 0, h.pipeline.Status().Outstanding)
}

func TestSubmit_RacingCloseNeverStrandsRequest(t *testing.T) {
	for i := 0; i < 100; i++ {
		h := newHarness(t, nil)
		req := NewRequest(fmt.Sprintf("race-%d", i), []metadata.MethodDescription{placeOrder}, time.Second)

		submitted := make(chan error, 1)
		go func() { submitted <- h.pipeline.Submit(req) }()
		require.NoError(t, h.pipeline.Close())
		err := <-submitted

		if err != nil {
			assert.ErrorIs(t, err, ErrClosed)
		} else {
			// Accepted before Close: Close must have failed it.
			e := h.events.next(t, EventFailedToCapture, time.Second)
			assert.Equal(t, req.ID, e.RequestID)
		}
		assert.Equal(t, 0, h.pipeline.Status().Outstanding)
		select {
		case <-req.Stopped():
		default:
			t.Fatalf("request %s left running after Close", req.ID)
		}
	}
}

func TestNewRequest_GeneratesID(t *testing.T) {
	a := NewRequest("", []metadata.MethodDescription{placeOrder}, 0)
	b := NewRequest("", []metadata.MethodDescription{placeOrder}, 0)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRun_DurationExpiryUninstalls(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	start := time.Now()
	require.NoError(t, h.pipeline.Submit(NewRequest("timed", []metadata.MethodDescription{placeOrder}, 200*time.Millisecond)))

	h.events.next(t, EventCapturingStart, time.Second)
	assert.True(t, h.installer.Active())
	assert.Equal(t, 2, h.cache.Len())

	h.events.next(t, EventCapturingStop, 2*time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, 1, h.installer.Uninstalls())
	assert.Equal(t, 0, h.cache.Len())

	require.Eventually(t, func() bool {
		return h.pipeline.Status().State == StateIdle && h.pipeline.Status().Outstanding == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRun_StopEndsWindowEarly(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	require.NoError(t, h.pipeline.Submit(NewRequest("stopme", []metadata.MethodDescription{placeOrder}, 5*time.Second)))
	h.events.next(t, EventCapturingStart, time.Second)

	status := h.pipeline.Status()
	assert.Equal(t, StateActive, status.State)
	assert.Equal(t, "stopme", status.RequestID)
	assert.Equal(t, 2, status.Methods)

	time.Sleep(100 * time.Millisecond)
	stoppedAt := time.Now()
	assert.True(t, h.pipeline.RequestStop("stopme"))

	h.events.next(t, EventCapturingStop, time.Second)
	assert.Less(t, time.Since(stoppedAt), time.Second)
	assert.Equal(t, 1, h.installer.Uninstalls())

	// Once finished the id is unknown.
	require.Eventually(t, func() bool {
		return !h.pipeline.RequestStop("stopme")
	}, time.Second, 10*time.Millisecond)
}

func TestRun_InstallRequestCarriesBoxingTokens(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	require.NoError(t, h.pipeline.Submit(NewRequest("", []metadata.MethodDescription{placeOrder}, time.Second)))
	h.events.next(t, EventCapturingStart, time.Second)

	installs := h.installer.Installs()
	require.Len(t, installs, 1)

	req := installs[0]
	assert.Equal(t, []uint64{0x10, 0x11}, req.FunctionIDs)
	assert.Equal(t, uint32(2), req.Count)
	assert.Equal(t, []uint32{2, 2}, req.TokenCounts)
	want := []uint32{
		boxing.SkipBoxingToken, boxing.SpecialCaseInt32.Token(),
		boxing.SkipBoxingToken, boxing.SpecialCaseInt32.Token(),
	}
	assert.Equal(t, want, req.BoxingTokens)

	entry, ok := h.cache.TryGet(0x10)
	require.True(t, ok)
	assert.Equal(t, "Shop.Orders.OrderService.PlaceOrder", entry.Name)
	assert.Equal(t, 2, entry.NumSupported)
}

func TestRun_UnresolvedMethodsNeverInstall(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	missing := metadata.MethodDescription{ModuleName: "Shop", TypeName: "Shop.Orders.Missing", MethodName: "Run"}
	require.NoError(t, h.pipeline.Submit(NewRequest("partial", []metadata.MethodDescription{placeOrder, missing}, time.Second)))

	e := h.events.next(t, EventFailedToCapture, time.Second)
	assert.Equal(t, "partial", e.RequestID)
	assert.Equal(t, ReasonUnresolvedMethods, e.Reason)
	assert.Contains(t, e.Detail, "Shop.Orders.Missing")
	assert.Empty(t, h.installer.Installs())
	assert.Equal(t, 0, h.installer.Uninstalls())

	// The worker keeps serving requests.
	require.Eventually(t, func() bool {
		return h.pipeline.Submit(NewRequest("next", []metadata.MethodDescription{placeOrder}, 50*time.Millisecond)) == nil
	}, time.Second, 10*time.Millisecond)
	h.events.next(t, EventCapturingStart, time.Second)
	h.events.next(t, EventCapturingStop, time.Second)
}

func TestRun_InstallFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.installer.InstallErr = errors.New("profiler not attached")
	h.start(t)

	require.NoError(t, h.pipeline.Submit(NewRequest("broken", []metadata.MethodDescription{placeOrder}, time.Second)))

	e := h.events.next(t, EventFailedToCapture, time.Second)
	assert.Equal(t, ReasonGeneric, e.Reason)
	assert.Contains(t, e.Detail, "profiler not attached")
	assert.Equal(t, 0, h.installer.Uninstalls())
	assert.Equal(t, 0, h.cache.Len())

	require.Eventually(t, func() bool {
		return h.pipeline.Status().State == StateIdle
	}, time.Second, 10*time.Millisecond)
}

func TestRun_DuplicateFunctionAcrossDescriptionsInstalledOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	require.NoError(t, h.pipeline.Submit(NewRequest("twice", []metadata.MethodDescription{placeOrder, placeOrder}, time.Second)))
	h.events.next(t, EventCapturingStart, time.Second)

	installs := h.installer.Installs()
	require.Len(t, installs, 1)
	assert.Equal(t, uint32(2), installs[0].Count)
}

func TestRun_CancellationIsAnOrdinaryStop(t *testing.T) {
	h := newHarness(t, nil)
	cancel := h.start(t)

	require.NoError(t, h.pipeline.Submit(NewRequest("cancelled", []metadata.MethodDescription{placeOrder}, 0)))
	h.events.next(t, EventCapturingStart, time.Second)

	cancel()

	e := h.events.next(t, EventCapturingStop, time.Second)
	assert.Equal(t, "cancelled", e.RequestID)
	assert.Equal(t, 1, h.installer.Uninstalls())
	for _, e := range h.events.all() {
		assert.NotEqual(t, EventFailedToCapture, e.Kind)
	}
}

func TestRun_MaxDurationClamps(t *testing.T) {
	h := newHarness(t, func(cfg *config.CaptureConfig) {
		cfg.MaxDuration = 100 * time.Millisecond
	})
	h.start(t)

	require.NoError(t, h.pipeline.Submit(NewRequest("long", []metadata.MethodDescription{placeOrder}, time.Hour)))
	h.events.next(t, EventCapturingStart, time.Second)
	h.events.next(t, EventCapturingStop, time.Second)
}

func TestRun_SecondRunRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	require.Eventually(t, func() bool {
		h.pipeline.mu.Lock()
		defer h.pipeline.mu.Unlock()
		return h.pipeline.runDone != nil
	}, time.Second, 5*time.Millisecond)

	err := h.pipeline.Run(context.Background())
	assert.Error(t, err)
}

func TestClose_StopsActiveCapture(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.pipeline.Run(ctx) }()

	require.NoError(t, h.pipeline.Submit(NewRequest("closing", []metadata.MethodDescription{placeOrder}, 0)))
	h.events.next(t, EventCapturingStart, time.Second)

	require.NoError(t, h.pipeline.Close())
	assert.NoError(t, <-done)

	h.events.next(t, EventCapturingStop, time.Second)
	assert.False(t, h.installer.Active())
	assert.Equal(t, 1, h.installer.Uninstalls())

	err := h.pipeline.Submit(NewRequest("late", []metadata.MethodDescription{placeOrder}, 0))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, h.pipeline.Close())
}

func TestClose_FailsQueuedRequest(t *testing.T) {
	h := newHarness(t, nil)

	req := NewRequest("queued", []metadata.MethodDescription{placeOrder}, 0)
	require.NoError(t, h.pipeline.Submit(req))
	require.NoError(t, h.pipeline.Close())

	e := h.events.next(t, EventFailedToCapture, time.Second)
	assert.Equal(t, "queued", e.RequestID)
	assert.Equal(t, 0, h.pipeline.Status().Outstanding)
	assert.Empty(t, h.installer.Installs())
}

func TestClose_UninstallsWithoutSession(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.pipeline.Close())
	assert.Equal(t, 1, h.installer.Uninstalls())

	// A failed final uninstall is logged, not returned.
	h2 := newHarness(t, nil)
	h2.installer.UninstallErr = errors.New("profiler gone")
	assert.NoError(t, h2.pipeline.Close())
	assert.Equal(t, 1, h2.installer.Uninstalls())
}

func TestFailureReason_String(t *testing.T) {
	assert.Equal(t, "UnresolvedMethods", ReasonUnresolvedMethods.String())
	assert.Equal(t, "InvalidRequest", ReasonInvalidRequest.String())
	assert.Equal(t, "TooManyRequests", ReasonTooManyRequests.String())
	assert.Equal(t, "Generic", ReasonGeneric.String())
}
