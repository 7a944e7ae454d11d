package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coral-mesh/paramcapture/internal/capture/dispatch"
	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	"github.com/coral-mesh/paramcapture/internal/capture/methodcache"
	"github.com/coral-mesh/paramcapture/internal/capture/pipeline"
	"github.com/coral-mesh/paramcapture/internal/capture/probes"
	"github.com/coral-mesh/paramcapture/internal/capture/resolver"
	"github.com/coral-mesh/paramcapture/internal/config"
	"github.com/coral-mesh/paramcapture/internal/logging"
)

type runOptions struct {
	configFile  string
	catalogPath string
	module      string
	class       string
	methods     []string
	duration    time.Duration
	requestID   string
	dryRun      bool
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture parameters of the named methods",
		Long: `Resolve the named methods in the catalog, instrument them through the
profiler and log every captured call until the duration elapses or the
command is interrupted.

Examples:
  # Capture PlaceOrder calls for 30 seconds
  paramcapture run --module Shop.dll --class Shop.OrderService --method PlaceOrder --duration 30s

  # Several methods of the same type
  paramcapture run --module Shop --class Shop.OrderService --method PlaceOrder --method Cancel

  # Resolve and assemble without talking to the profiler
  paramcapture run --module Shop --class Shop.OrderService --method PlaceOrder --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Config file (default ~/.paramcapture/paramcapture.yaml)")
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "Metadata catalog (overrides catalog_path)")
	cmd.Flags().StringVarP(&opts.module, "module", "m", "", "Module that declares the methods (required)")
	cmd.Flags().StringVar(&opts.class, "class", "", "Full name of the declaring type (required)")
	cmd.Flags().StringSliceVar(&opts.methods, "method", nil, "Method name, repeatable (required)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Capture duration (0 uses default_duration)")
	cmd.Flags().StringVar(&opts.requestID, "id", "", "Request ID (generated if empty)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Record probe installs instead of sending them to the profiler")

	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("class")
	_ = cmd.MarkFlagRequired("method")

	return cmd
}

func runCapture(parent context.Context, opts runOptions) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.catalogPath != "" {
		cfg.CatalogPath = opts.catalogPath
	}

	logger := logging.New(logging.FromConfig(cfg.Log))

	catalog, err := resolver.Open(logger, cfg.CatalogPath)
	if err != nil {
		return err
	}

	descriptions := make([]metadata.MethodDescription, 0, len(opts.methods))
	for _, name := range opts.methods {
		descriptions = append(descriptions, metadata.MethodDescription{
			ModuleName: opts.module,
			TypeName:   opts.class,
			MethodName: name,
		})
	}

	cache := methodcache.New(logger)
	dispatcher := dispatch.New(logger, cache, cfg.Dispatch.BufferSize)

	req := pipeline.NewRequest(opts.requestID, descriptions, opts.duration)
	outcome := make(chan pipeline.Event, 1)
	sink := pipeline.MultiSink{
		pipeline.NewLogSink(logger),
		pipeline.EventSinkFunc(func(e pipeline.Event) {
			if e.RequestID != req.ID || e.Kind == pipeline.EventCapturingStart {
				return
			}
			select {
			case outcome <- e:
			default:
			}
		}),
	}

	p := pipeline.New(*cfg, logger, catalog, newInstaller(logger, cfg, opts.dryRun), cache, sink)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })

	if !opts.dryRun && cfg.Dispatch.SocketPath != "" {
		ln, err := listenUnix(cfg.Dispatch.SocketPath)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		logger.Info().Str("socket", cfg.Dispatch.SocketPath).Msg("Listening for probe events")
		g.Go(func() error { return dispatcher.Serve(gctx, ln) })
	}

	var result pipeline.Event
	if err := p.Submit(req); err != nil {
		cancel()
		_ = g.Wait()
		_ = p.Close()
		return err
	}

	select {
	case result = <-outcome:
	case <-gctx.Done():
		logger.Info().Str("request_id", req.ID).Msg("Interrupted, stopping capture")
		// Run treats cancellation as an ordinary stop.
		select {
		case result = <-outcome:
		case <-time.After(cfg.Profiler.ResponseTimeout + time.Second):
		}
	}

	cancel()
	runErr := g.Wait()
	closeErr := p.Close()

	if result.Kind == pipeline.EventFailedToCapture {
		return fmt.Errorf("capture %s failed (%s): %s", req.ID, result.Reason, result.Detail)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return closeErr
}

func newInstaller(logger zerolog.Logger, cfg *config.CaptureConfig, dryRun bool) probes.Installer {
	if dryRun {
		return probes.NewRecorder(logger)
	}
	return probes.NewSocketInstaller(logger, probes.SocketConfig{
		SocketPath:      cfg.Profiler.SocketPath,
		DialTimeout:     cfg.Profiler.DialTimeout,
		ResponseTimeout: cfg.Profiler.ResponseTimeout,
		DialRetries:     cfg.Profiler.DialRetries,
	})
}

// listenUnix removes a socket left behind by a previous run before listening.
func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return ln, nil
}
