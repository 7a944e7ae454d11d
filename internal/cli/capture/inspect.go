package capture

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/paramcapture/internal/capture/metadata"
	"github.com/coral-mesh/paramcapture/internal/capture/resolver"
	"github.com/coral-mesh/paramcapture/internal/config"
)

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	var (
		configFile  string
		catalogPath string
		module      string
		class       string
		method      string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the boxing tokens and template for catalog methods",
		Long: `List methods from the metadata catalog together with what the profiler
would be given for them: one boxing token per argument slot and the
formatting template used for captured calls.

Without --module, --class and --method every method in the catalog is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, err := parseFormat(format)
			if err != nil {
				return err
			}

			path := catalogPath
			if path == "" {
				cfg, err := config.Load(configFile)
				if err != nil {
					return err
				}
				path = cfg.CatalogPath
			}

			catalog, err := resolver.Open(zerolog.Nop(), path)
			if err != nil {
				return err
			}

			methods := catalog.Methods()
			if module != "" || class != "" || method != "" {
				methods, err = catalog.Resolve(cmd.Context(), metadata.MethodDescription{
					ModuleName: module,
					TypeName:   class,
					MethodName: method,
				})
				if err != nil {
					return err
				}
			}

			return inspectMethods(cmd.Context(), cmd.OutOrStdout(), outputFormat, methods)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file (default ~/.paramcapture/paramcapture.yaml)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Metadata catalog (overrides catalog_path)")
	cmd.Flags().StringVarP(&module, "module", "m", "", "Filter by module")
	cmd.Flags().StringVar(&class, "class", "", "Filter by declaring type")
	cmd.Flags().StringVar(&method, "method", "", "Filter by method name")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json)")

	return cmd
}

func inspectMethods(ctx context.Context, w io.Writer, format OutputFormat, methods []*metadata.Method) error {
	reports := make([]MethodReport, 0, len(methods))
	for _, m := range methods {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		reports = append(reports, NewMethodReport(m))
	}
	if err := writeMethodReports(w, format, reports); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
