// Package cli implements the client's cobra command tree. Argument
// parsing and subcommand dispatch sit outside the specified core
// (manifest/resolver/linker); this package is the thin collaborator
// that wires user input into those packages and renders progress.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Streams mirrors the in/out/err triple kpt's command options thread
// through for testability, instead of reaching for os.Stdout directly.
type Streams struct {
	In  *os.File
	Out *os.File
	Err *os.File
}

func defaultStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// NewRootCommand builds the "wisp" command tree.
func NewRootCommand() *cobra.Command {
	streams := defaultStreams()

	root := &cobra.Command{
		Use:           "wisp",
		Short:         "A package manager for scripting-language projects",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newInstallCommand(streams),
		newAddCommand(streams),
		newUpdateCommand(streams),
		newRemoveCommand(streams),
		newPublishCommand(streams),
		newRunCommand(streams),
		newSelfUpgradeCommand(streams),
	)
	return root
}
