package probes

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Recorder is an Installer that keeps every request in memory instead of
// talking to a profiler. It backs dry runs and tests.
type Recorder struct {
	logger zerolog.Logger

	mu         sync.Mutex
	installs   []*InstallRequest
	uninstalls int
	active     bool

	// InstallErr and UninstallErr, when set, are returned by the
	// corresponding calls.
	InstallErr   error
	UninstallErr error
}

var _ Installer = (*Recorder)(nil)

// NewRecorder creates a Recorder that logs each call at info level.
func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{
		logger: logger.With().Str("component", "probe_recorder").Logger(),
	}
}

// Install records req.
func (r *Recorder) Install(_ context.Context, req *InstallRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.InstallErr != nil {
		return r.InstallErr
	}
	if err := req.Validate(); err != nil {
		return err
	}

	r.installs = append(r.installs, req)
	r.active = true

	for _, m := range req.Methods() {
		r.logger.Info().
			Stringer("function_id", m.FunctionID).
			Int("parameters", len(m.BoxingTokens)).
			Msg("Would install probe")
	}
	return nil
}

// Uninstall records the call.
func (r *Recorder) Uninstall(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.uninstalls++
	if r.UninstallErr != nil {
		return r.UninstallErr
	}
	if r.active {
		r.logger.Info().Msg("Would uninstall probes")
	}
	r.active = false
	return nil
}

// Installs returns the recorded install requests.
func (r *Recorder) Installs() []*InstallRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*InstallRequest(nil), r.installs...)
}

// Uninstalls returns how many times Uninstall was called.
func (r *Recorder) Uninstalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uninstalls
}

// Active reports whether probes are installed.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
