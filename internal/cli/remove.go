package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wisp-pm/wisp/internal/manifest"
)

// newRemoveCommand drops a declared dependency from the manifest; a
// following install drops it from the lockfile and linked tree.
func newRemoveCommand(streams Streams) *cobra.Command {
	c := &cobra.Command{
		Use:   "remove <alias>",
		Short: "Remove a dependency from the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(streams, args[0])
		},
	}
	return c
}

func runRemove(streams Streams, alias string) error {
	projectRoot, err := os.Getwd()
	if err != nil {
		return err
	}
	manifestPath := filepath.Join(projectRoot, manifest.FileName)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	removed := false
	for _, deps := range []map[string]manifest.Specifier{m.Dependencies, m.DevDependencies, m.PeerDependencies} {
		if _, ok := deps[alias]; ok {
			delete(deps, alias)
			removed = true
		}
	}
	if !removed {
		return fmt.Errorf("no dependency aliased %q in the manifest", alias)
	}

	if err := m.Save(manifestPath); err != nil {
		return err
	}
	fmt.Fprintf(streams.Out, "removed %q\n", alias)
	return nil
}
