package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/paramcapture/internal/testutil"
)

const testCatalog = "../../capture/resolver/testdata/catalog.yaml"

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paramcapture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDecodeCmd_Text(t *testing.T) {
	out, err := execute(t, NewDecodeCmd(), "20 03 01 08 11 15 12 10")
	require.NoError(t, err)

	assert.Contains(t, out, "Header:   method(cc=0x0,hasthis)")
	assert.Contains(t, out, "Returns:  void")
	assert.Contains(t, out, "int32")
	assert.Contains(t, out, "TypeRef(0x01000005)")
	assert.Contains(t, out, "4+2")
}

func TestDecodeCmd_JSONAcrossArguments(t *testing.T) {
	out, err := execute(t, NewDecodeCmd(), "05", "03 01 08", "41 0a 0d", "--format", "json")
	require.NoError(t, err)

	var report SignatureReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Required)
	require.Len(t, report.Parameters, 3)
	assert.False(t, report.Parameters[0].VarArg)
	assert.True(t, report.Parameters[1].VarArg)
	assert.Equal(t, "int64", report.Parameters[1].Type)
	assert.Equal(t, "Unsupported", report.Parameters[1].BoxingToken)
}

func TestDecodeCmd_Errors(t *testing.T) {
	_, err := execute(t, NewDecodeCmd(), "zz")
	assert.Error(t, err)

	_, err = execute(t, NewDecodeCmd(), "06 08")
	assert.ErrorContains(t, err, "expected method signature")

	_, err = execute(t, NewDecodeCmd(), "00 00 01", "--format", "csv")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestInspectCmd_FilteredJSON(t *testing.T) {
	out, err := execute(t, NewInspectCmd(),
		"--catalog", testCatalog,
		"--module", "shop",
		"--class", "Shop.Orders.OrderService",
		"--method", "PlaceOrder",
		"--format", "json",
	)
	require.NoError(t, err)

	var reports []MethodReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)

	first := reports[0]
	assert.Equal(t, "0x00007ffa12340010", first.FunctionID)
	assert.Equal(t, "Shop.Orders.OrderService.PlaceOrder", first.Method)
	assert.Equal(t, []string{"Object", "Int32", "TypeRef(0x01000005)", "Object"}, first.Tokens)
	assert.Equal(t, []bool{true, true, true, true}, first.Supported)
	assert.Empty(t, first.Error)
	assert.Contains(t, first.Template, "{this}")
}

func TestInspectCmd_TextListsCatalog(t *testing.T) {
	out, err := execute(t, NewInspectCmd(), "--catalog", testCatalog)
	require.NoError(t, err)

	assert.Contains(t, out, "Shop.Orders.OrderService.Cancel")
	assert.Contains(t, out, "Shop.Orders.Point.Distance")
	assert.Contains(t, out, "SLOT")
}

func TestInspectCmd_NotFound(t *testing.T) {
	_, err := execute(t, NewInspectCmd(),
		"--catalog", testCatalog,
		"--module", "Shop",
		"--class", "Shop.Orders.OrderService",
		"--method", "Refund",
	)
	assert.ErrorContains(t, err, "Refund")
}

func TestRunCapture_DryRun(t *testing.T) {
	path := writeConfig(t, `
default_duration: 100ms
dispatch:
  socket_path: ""
log:
  level: error
  pretty: false
`)

	done := make(chan error, 1)
	go func() {
		done <- runCapture(context.Background(), runOptions{
			configFile:  path,
			catalogPath: testCatalog,
			module:      "Shop",
			class:       "Shop.Orders.OrderService",
			methods:     []string{"PlaceOrder", "Cancel"},
			dryRun:      true,
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not stop after its duration")
	}
}

func TestRunCapture_UnresolvedMethod(t *testing.T) {
	path := writeConfig(t, `
dispatch:
  socket_path: ""
log:
  level: error
`)

	err := runCapture(context.Background(), runOptions{
		configFile:  path,
		catalogPath: testCatalog,
		module:      "Shop",
		class:       "Shop.Orders.OrderService",
		methods:     []string{"Refund"},
		dryRun:      true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnresolvedMethods")
}

func TestRunCapture_MissingCatalog(t *testing.T) {
	path := writeConfig(t, "log:\n  level: error\n")

	err := runCapture(context.Background(), runOptions{
		configFile:  path,
		catalogPath: filepath.Join(t.TempDir(), "missing.yaml"),
		module:      "Shop",
		class:       "Shop.Orders.OrderService",
		methods:     []string{"PlaceOrder"},
		dryRun:      true,
	})
	assert.Error(t, err)
}

func TestListenUnixReplacesStaleSocket(t *testing.T) {
	path := testutil.SocketPath(t, "events.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ln, err := listenUnix(path)
	require.NoError(t, err)
	assert.NoError(t, ln.Close())
}

func TestRunCapture_NegativeDurationRejected(t *testing.T) {
	path := writeConfig(t, "dispatch:\n  socket_path: \"\"\nlog:\n  level: error\n")

	err := runCapture(context.Background(), runOptions{
		configFile:  path,
		catalogPath: testCatalog,
		module:      "Shop",
		class:       "Shop.Orders.OrderService",
		methods:     []string{"PlaceOrder"},
		duration:    -time.Second,
		dryRun:      true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}
