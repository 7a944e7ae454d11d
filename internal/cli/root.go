package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/paramcapture/internal/cli/capture"
	"github.com/coral-mesh/paramcapture/internal/cli/config"
	"github.com/coral-mesh/paramcapture/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "paramcapture",
	Short: "Capture method parameters from a running .NET process",
	Long: `Instrument named methods of a running .NET process through its profiler
and log the arguments of every call for a bounded capture window.

One capture runs at a time. The metadata catalog resolves method names to
function IDs and signatures; the profiler installs the probes and streams
probe hits back to the agent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}


func init() {
	rootCmd.Version = version.Short()

	capture.RegisterCommands(rootCmd)
	rootCmd.AddCommand(config.NewConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("paramcapture version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
