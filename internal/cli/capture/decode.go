package capture

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/paramcapture/internal/capture/resolver"
)

// NewDecodeCmd creates the decode command.
func NewDecodeCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "decode <signature-hex>",
		Short: "Decode a method signature blob",
		Long: `Decode a MethodDefSig or MethodRefSig blob given as hex and print each
parameter with the reference token the boxing assembler would extract.

Examples:
  paramcapture decode "20 03 01 08 11 15 12 10"
  paramcapture decode 0x2001010e --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, err := parseFormat(format)
			if err != nil {
				return err
			}

			blob, err := resolver.DecodeHex(strings.Join(args, ""))
			if err != nil {
				return err
			}

			report, err := NewSignatureReport(blob)
			if err != nil {
				return err
			}
			return writeSignatureReport(cmd.OutOrStdout(), outputFormat, report)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json)")
	return cmd
}
