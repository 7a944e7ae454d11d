// Package probes is the agent's side of the native instrumentation boundary.
//
// The profiler loaded into the target process rewrites method bodies so
// that every call hands its arguments back to the agent. It needs to know
// which functions to rewrite and, per parameter, how to box the argument.
// Install sends exactly that; Uninstall removes every probe again.
package probes

import (
	"context"
	"fmt"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	"github.com/coral-mesh/paramcapture/internal/safe"
)

// Installer installs and removes probes. Implementations are not reentrant;
// the capture pipeline calls them from a single goroutine.
type Installer interface {
	Install(ctx context.Context, req *InstallRequest) error

	// Uninstall removes all probes. It is idempotent.
	Uninstall(ctx context.Context) error
}

// MethodProbe is one method to instrument.
type MethodProbe struct {
	FunctionID   metadata.FunctionID
	BoxingTokens []uint32
}

// InstallRequest is the flattened form the profiler consumes: tokens for all
// methods are concatenated and TokenCounts says how many belong to each
// function, positionally.
type InstallRequest struct {
	FunctionIDs  []uint64 `cbor:"function_ids"`
	Count        uint32   `cbor:"count"`
	BoxingTokens []uint32 `cbor:"boxing_tokens"`
	TokenCounts  []uint32 `cbor:"token_counts"`
}

// NewInstallRequest flattens methods into an InstallRequest.
func NewInstallRequest(methods []MethodProbe) (*InstallRequest, error) {
	count, clamped := safe.IntToUint32(len(methods))
	if clamped {
		return nil, fmt.Errorf("too many methods to instrument: %d", len(methods))
	}

	req := &InstallRequest{
		FunctionIDs: make([]uint64, 0, len(methods)),
		Count:       count,
		TokenCounts: make([]uint32, 0, len(methods)),
	}
	for _, m := range methods {
		n, clamped := safe.IntToUint32(len(m.BoxingTokens))
		if clamped {
			return nil, fmt.Errorf("function %s has too many parameters: %d", m.FunctionID, len(m.BoxingTokens))
		}
		req.FunctionIDs = append(req.FunctionIDs, uint64(m.FunctionID))
		req.BoxingTokens = append(req.BoxingTokens, m.BoxingTokens...)
		req.TokenCounts = append(req.TokenCounts, n)
	}
	return req, nil
}

// Validate checks that the counts line up with the payload.
func (r *InstallRequest) Validate() error {
	if int(r.Count) != len(r.FunctionIDs) {
		return fmt.Errorf("count %d does not match %d function ids", r.Count, len(r.FunctionIDs))
	}
	if len(r.TokenCounts) != len(r.FunctionIDs) {
		return fmt.Errorf("%d token counts for %d functions", len(r.TokenCounts), len(r.FunctionIDs))
	}
	total := 0
	for _, n := range r.TokenCounts {
		total += int(n)
	}
	if total != len(r.BoxingTokens) {
		return fmt.Errorf("token counts add up to %d, got %d tokens", total, len(r.BoxingTokens))
	}
	return nil
}

// Methods splits the request back into per-method probes. The request must
// be valid.
func (r *InstallRequest) Methods() []MethodProbe {
	methods := make([]MethodProbe, len(r.FunctionIDs))
	offset := 0
	for i, id := range r.FunctionIDs {
		n := int(r.TokenCounts[i])
		methods[i] = MethodProbe{
			FunctionID:   metadata.FunctionID(id),
			BoxingTokens: r.BoxingTokens[offset : offset+n],
		}
		offset += n
	}
	return methods
}
