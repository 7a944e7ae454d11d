package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketPath returns a unix socket path in a fresh directory removed at the
// end of the test. t.TempDir is avoided because its paths can exceed the
// 108 byte sun_path limit.
func SocketPath(t *testing.T, name string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pc")
	if err != nil {
		t.Fatalf("creating socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, name)
}
