package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRunCommand is a placeholder for the external script runner that
// executes a manifest-declared script by name. Running arbitrary
// project scripts sits outside this package's scope; the command
// exists so the tree is discoverable rather than silently missing.
func newRunCommand(streams Streams) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Run a manifest-declared script (not implemented)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(streams.Err, "run: not implemented\n")
			return nil
		},
	}
}

// newSelfUpgradeCommand is a placeholder for the executable-replacement
// flow that fetches and swaps in a newer build of this binary.
func newSelfUpgradeCommand(streams Streams) *cobra.Command {
	return &cobra.Command{
		Use:   "self-upgrade",
		Short: "Upgrade this binary to the latest release (not implemented)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(streams.Err, "self-upgrade: not implemented\n")
			return nil
		},
	}
}
