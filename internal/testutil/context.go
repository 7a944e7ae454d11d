// Package testutil provides testing utilities for the paramcapture packages.
package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext creates a context that is cancelled after timeout or when
// the test ends, whichever comes first.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
