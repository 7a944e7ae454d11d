package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/coral-mesh/paramcapture/internal/capture/boxing"
	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	"github.com/coral-mesh/paramcapture/internal/capture/signature"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// MethodReport is what inspect prints per method.
type MethodReport struct {
	FunctionID string   `json:"function_id"`
	Method     string   `json:"method"`
	Token      string   `json:"token"`
	Template   string   `json:"template,omitempty"`
	Error      string   `json:"error,omitempty"`
	Tokens     []string `json:"tokens"`
	Supported  []bool   `json:"supported"`
}

// SignatureReport is what decode prints.
type SignatureReport struct {
	Header        string           `json:"header"`
	GenericParams int              `json:"generic_parameters,omitempty"`
	Required      int              `json:"required_parameters"`
	Return        string           `json:"return"`
	Parameters    []ParameterEntry `json:"parameters"`
}

// ParameterEntry is one decoded parameter.
type ParameterEntry struct {
	Type        string `json:"type"`
	BoxingToken string `json:"boxing_token"`
	Offset      int    `json:"offset"`
	Length      int    `json:"length"`
	VarArg      bool   `json:"vararg,omitempty"`
}

// NewMethodReport assembles the boxing instructions of m.
func NewMethodReport(m *metadata.Method) MethodReport {
	instructions := boxing.Assemble(m)
	supported := boxing.SupportedParameters(instructions)

	report := MethodReport{
		FunctionID: m.FunctionID.String(),
		Method:     m.QualifiedName(),
		Token:      m.Token.String(),
		Supported:  supported,
	}
	for _, token := range boxing.Tokens(instructions) {
		report.Tokens = append(report.Tokens, boxing.Describe(token))
	}

	template, err := boxing.Template(m, supported)
	if err != nil {
		report.Error = err.Error()
	} else {
		report.Template = template
	}
	return report
}

// NewSignatureReport decodes blob twice: once for names and once for the
// boxing tokens the profiler would receive.
func NewSignatureReport(blob []byte) (*SignatureReport, error) {
	names, err := signature.DecodeMethodSignature[string](blob, signature.NameProvider{})
	if err != nil {
		return nil, err
	}
	tokens, err := boxing.DecodeReferenceTokens(blob)
	if err != nil {
		return nil, err
	}

	report := &SignatureReport{
		Header:        names.Header.String(),
		GenericParams: names.GenericParameterCount,
		Required:      names.RequiredParameterCount,
		Return:        names.ReturnType.Type,
	}
	for i, p := range names.ParameterTypes {
		report.Parameters = append(report.Parameters, ParameterEntry{
			Type:        p.Type,
			BoxingToken: boxing.Describe(tokens.ParameterTypes[i].Type),
			Offset:      p.Offset,
			Length:      p.Length,
			VarArg:      i >= names.RequiredParameterCount,
		})
	}
	return report, nil
}

// nolint: errcheck
func writeMethodReports(w io.Writer, format OutputFormat, reports []MethodReport) error {
	if format == FormatJSON {
		return writeJSON(w, reports)
	}

	if len(reports) == 0 {
		fmt.Fprintln(w, "No methods found.")
		return nil
	}

	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  %s  (token %s)\n", r.FunctionID, r.Method, r.Token)
		if r.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", r.Error)
		} else {
			fmt.Fprintf(w, "  %s\n", r.Template)
		}

		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "  SLOT\tBOXING\tCAPTURED")
		for slot, token := range r.Tokens {
			fmt.Fprintf(tw, "  %d\t%s\t%t\n", slot, token, r.Supported[slot])
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// nolint: errcheck
func writeSignatureReport(w io.Writer, format OutputFormat, r *SignatureReport) error {
	if format == FormatJSON {
		return writeJSON(w, r)
	}

	fmt.Fprintf(w, "Header:   %s\n", r.Header)
	if r.GenericParams > 0 {
		fmt.Fprintf(w, "Generic:  %d parameters\n", r.GenericParams)
	}
	fmt.Fprintf(w, "Returns:  %s\n\n", r.Return)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tBOXING\tBYTES")
	for i, p := range r.Parameters {
		name := p.Type
		if p.VarArg {
			name = "... " + name
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d+%d\n", i, name, p.BoxingToken, p.Offset, p.Length)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}
