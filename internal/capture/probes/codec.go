package probes

import (
	"io"

	"github.com/fxamacker/cbor/v2"

	cerrors "github.com/coral-mesh/paramcapture/internal/errors"
)

// The profiler side parses with a small CBOR reader, so the agent always
// emits Core Deterministic Encoding: definite lengths and smallest integer
// forms.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	cerrors.Must(err, "probes: CBOR encoder initialization failed")

	// Unknown fields are ignored so newer profilers can extend replies.
	decMode, err = cbor.DecOptions{
		MaxNestedLevels: 16,
	}.DecMode()
	cerrors.Must(err, "probes: CBOR decoder initialization failed")
}

// Actions understood by the profiler.
const (
	actionInstall   = "install"
	actionUninstall = "uninstall"
)

// command is one request on the profiler socket.
type command struct {
	Action       string   `cbor:"action"`
	FunctionIDs  []uint64 `cbor:"function_ids,omitempty"`
	Count        uint32   `cbor:"count,omitempty"`
	BoxingTokens []uint32 `cbor:"boxing_tokens,omitempty"`
	TokenCounts  []uint32 `cbor:"token_counts,omitempty"`
}

func installCommand(req *InstallRequest) *command {
	return &command{
		Action:       actionInstall,
		FunctionIDs:  req.FunctionIDs,
		Count:        req.Count,
		BoxingTokens: req.BoxingTokens,
		TokenCounts:  req.TokenCounts,
	}
}

// installRequest extracts the payload of an install command.
func (c *command) installRequest() *InstallRequest {
	return &InstallRequest{
		FunctionIDs:  c.FunctionIDs,
		Count:        c.Count,
		BoxingTokens: c.BoxingTokens,
		TokenCounts:  c.TokenCounts,
	}
}

// reply is the profiler's answer to a command.
type reply struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
}

func encodeCommand(w io.Writer, cmd *command) error {
	return encMode.NewEncoder(w).Encode(cmd)
}

func decodeReply(r io.Reader, rep *reply) error {
	return decMode.NewDecoder(r).Decode(rep)
}
