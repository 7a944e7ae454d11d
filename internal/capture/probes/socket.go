package probes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/paramcapture/internal/constants"
	cerrors "github.com/coral-mesh/paramcapture/internal/errors"
	"github.com/coral-mesh/paramcapture/internal/retry"
)

// maxReplySize bounds a profiler reply.
const maxReplySize = 64 * 1024

// RemoteError is returned when the profiler answers ok=false.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("profiler rejected %q: %s", e.Action, e.Message)
}

// SocketConfig locates the profiler socket.
type SocketConfig struct {
	SocketPath      string
	DialTimeout     time.Duration
	ResponseTimeout time.Duration

	// DialRetries is the number of connection attempts. The profiler may
	// still be starting when the first capture request arrives.
	DialRetries int
	DialBackoff time.Duration
}

// SocketInstaller talks to the profiler over a unix socket, one command per
// connection: the agent writes a CBOR command and reads a CBOR reply.
type SocketInstaller struct {
	logger zerolog.Logger
	cfg    SocketConfig
}

var _ Installer = (*SocketInstaller)(nil)

// NewSocketInstaller creates an installer for the profiler at cfg.SocketPath.
func NewSocketInstaller(logger zerolog.Logger, cfg SocketConfig) *SocketInstaller {
	if cfg.DialRetries < 1 {
		cfg.DialRetries = 1
	}
	return &SocketInstaller{
		logger: logger.With().Str("component", "probe_installer").Logger(),
		cfg:    cfg,
	}
}

// Install sends the probes to the profiler. It is not retried once the
// command has been written.
func (s *SocketInstaller) Install(ctx context.Context, req *InstallRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid install request: %w", err)
	}

	s.logger.Debug().
		Uint32("functions", req.Count).
		Int("tokens", len(req.BoxingTokens)).
		Msg("Installing probes")

	return s.call(ctx, installCommand(req))
}

// Uninstall asks the profiler to remove every probe.
func (s *SocketInstaller) Uninstall(ctx context.Context) error {
	s.logger.Debug().Msg("Uninstalling probes")
	return s.call(ctx, &command{Action: actionUninstall})
}

func (s *SocketInstaller) call(ctx context.Context, cmd *command) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to profiler at %s: %w", s.cfg.SocketPath, err)
	}
	defer cerrors.DeferClose(s.logger, conn, "Failed to close profiler connection")

	var deadline time.Time
	if s.cfg.ResponseTimeout > 0 {
		deadline = time.Now().Add(s.cfg.ResponseTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if !deadline.IsZero() {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("setting deadline: %w", err)
		}
	}

	// Unblock reads and writes as soon as ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := encodeCommand(conn, cmd); err != nil {
		return fmt.Errorf("writing %s command: %w", cmd.Action, err)
	}

	// CBOR is self-delimiting; the half-close just lets the profiler see
	// EOF early.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		_ = unixConn.CloseWrite()
	}

	var rep reply
	if err := decodeReply(io.LimitReader(conn, maxReplySize), &rep); err != nil {
		return fmt.Errorf("reading %s reply: %w", cmd.Action, err)
	}
	if !rep.OK {
		return &RemoteError{Action: cmd.Action, Message: rep.Error}
	}
	return nil
}

func (s *SocketInstaller) dial(ctx context.Context) (net.Conn, error) {
	cfg := retry.Config{
		MaxRetries:     s.cfg.DialRetries,
		InitialBackoff: s.cfg.DialBackoff,
		MaxBackoff:     2 * time.Second,
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = constants.DefaultProfilerDialBackoff
	}

	return retry.DoValue(ctx, cfg, func() (net.Conn, error) {
		dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
		return dialer.DialContext(ctx, "unix", s.cfg.SocketPath)
	}, isProfilerStarting)
}

// isProfilerStarting reports errors that mean the socket is not listening
// yet.
func isProfilerStarting(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
}
