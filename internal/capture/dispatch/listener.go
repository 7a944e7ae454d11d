package dispatch

import (
	"context"
	"errors"
	"io"
	"net"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	cerrors "github.com/coral-mesh/paramcapture/internal/errors"
)

// probeEvent is one probe hit as the profiler streams it: a sequence of
// CBOR maps on a single connection.
type probeEvent struct {
	FunctionID uint64 `cbor:"function_id"`
	Args       []any  `cbor:"args"`
}

var eventDecMode cbor.DecMode

func init() {
	var err error
	eventDecMode, err = cbor.DecOptions{
		MaxNestedLevels:  16,
		MaxArrayElements: 1024,
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	cerrors.Must(err, "dispatch: invalid CBOR decode options")
}

// Serve accepts profiler connections on ln and feeds their probe events to
// the dispatcher until ctx is cancelled. It closes ln.
func (d *Dispatcher) Serve(ctx context.Context, ln net.Listener) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
	)

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		mu.Lock()
		for conn := range conns {
			_ = conn.Close()
		}
		mu.Unlock()
	})
	defer stop()

	d.logger.Info().Str("address", ln.Addr().String()).Msg("Listening for probe events")

	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		// The close loop may already have run; a connection registered
		// after it would never be closed.
		mu.Lock()
		if ctx.Err() != nil {
			mu.Unlock()
			_ = conn.Close()
			continue
		}
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
			}()
			defer conn.Close() // nolint:errcheck
			d.readEvents(conn)
		}()
	}
}

func (d *Dispatcher) readEvents(conn net.Conn) {
	dec := eventDecMode.NewDecoder(conn)
	for {
		var ev probeEvent
		if err := dec.Decode(&ev); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				d.logger.Warn().Err(err).Msg("Malformed probe event, closing connection")
			}
			return
		}
		d.OnProbeFired(metadata.FunctionID(ev.FunctionID), ev.Args)
	}
}
