// Package capture implements the paramcapture commands.
package capture

import (
	"github.com/spf13/cobra"
)

// RegisterCommands adds the capture commands directly to root for a flat
// hierarchy ("paramcapture run" rather than "paramcapture capture run").
func RegisterCommands(root *cobra.Command) {
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewInspectCmd())
	root.AddCommand(NewDecodeCmd())
}
