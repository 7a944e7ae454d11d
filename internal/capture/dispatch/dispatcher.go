// Package dispatch turns probe hits into log lines.
//
// Probes fire on arbitrary application threads. OnProbeFired does no more
// than a cache lookup and a non-blocking enqueue; a single emitter goroutine
// formats the values into the method's template and writes them out.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	"github.com/coral-mesh/paramcapture/internal/capture/methodcache"
	"github.com/coral-mesh/paramcapture/internal/constants"
)

type hit struct {
	method *methodcache.InstrumentedMethod
	args   []any
	at     time.Time
}

// Stats counts what happened to probe hits.
type Stats struct {
	Emitted uint64
	Dropped uint64
	Unknown uint64
}

// Dispatcher queues probe hits for the emitter.
type Dispatcher struct {
	logger zerolog.Logger
	cache  *methodcache.Cache
	hits   chan hit

	emitted atomic.Uint64
	dropped atomic.Uint64
	unknown atomic.Uint64
}

// New creates a dispatcher queueing at most bufferSize hits. A non-positive
// size uses the default.
func New(logger zerolog.Logger, cache *methodcache.Cache, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = constants.DefaultDispatchBufferSize
	}
	return &Dispatcher{
		logger: logger.With().Str("component", "probe_dispatch").Logger(),
		cache:  cache,
		hits:   make(chan hit, bufferSize),
	}
}

// OnProbeFired records a call to the method id with the values of its
// captured parameters, in parameter order. It never blocks. It returns false
// when the method is not instrumented or the queue is full.
func (d *Dispatcher) OnProbeFired(id metadata.FunctionID, args []any) bool {
	method, ok := d.cache.TryGet(id)
	if !ok {
		d.unknown.Add(1)
		return false
	}

	select {
	case d.hits <- hit{method: method, args: args, at: time.Now()}:
		return true
	default:
		if d.dropped.Add(1) == 1 {
			d.logger.Warn().Msg("Probe buffer full, dropping calls")
		}
		return false
	}
}

// Run emits queued hits until ctx is cancelled, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			stats := d.Stats()
			d.logger.Debug().
				Uint64("emitted", stats.Emitted).
				Uint64("dropped", stats.Dropped).
				Uint64("unknown", stats.Unknown).
				Msg("Probe dispatcher stopped")
			return nil
		case h := <-d.hits:
			d.emit(h)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case h := <-d.hits:
			d.emit(h)
		default:
			return
		}
	}
}

func (d *Dispatcher) emit(h hit) {
	if len(h.args) != h.method.NumSupported {
		d.logger.Debug().
			Stringer("function_id", h.method.FunctionID).
			Int("expected", h.method.NumSupported).
			Int("got", len(h.args)).
			Msg("Argument count does not match template")
	}

	d.logger.Info().
		Time("at", h.at).
		Stringer("function_id", h.method.FunctionID).
		Str("method", h.method.Name).
		Str("call", Format(h.method.Template, h.args)).
		Msg("Captured call")
	d.emitted.Add(1)
}

// Stats returns the counters so far.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Emitted: d.emitted.Load(),
		Dropped: d.dropped.Load(),
		Unknown: d.unknown.Load(),
	}
}

// Format fills the value slots of template with args in order. Slots
// without a value print as "?"; extra values are ignored.
func Format(template string, args []any) string {
	var b strings.Builder
	b.Grow(len(template))

	next := 0
	for {
		open := strings.IndexByte(template, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(template[open:], '}')
		if end < 0 {
			break
		}
		b.WriteString(template[:open])
		if next < len(args) {
			writeValue(&b, args[next])
		} else {
			b.WriteByte('?')
		}
		next++
		template = template[open+end+1:]
	}
	b.WriteString(template)
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	switch v := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		fmt.Fprintf(b, "%q", v)
	case []byte:
		fmt.Fprintf(b, "0x%x", v)
	default:
		fmt.Fprint(b, v)
	}
}
