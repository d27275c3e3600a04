package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wisp-pm/wisp/internal/manifest"
)

// newAddCommand declares a new direct dependency in the manifest
// without resolving it; a following install picks it up.
func newAddCommand(streams Streams) *cobra.Command {
	var (
		index     string
		targetStr string
		dev       bool
		peer      bool
		alias     string
	)

	c := &cobra.Command{
		Use:   "add <name>@<version>",
		Short: "Add a dependency to the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(streams, args[0], index, targetStr, alias, dev, peer)
		},
	}
	c.Flags().StringVar(&index, "index", "", "named index to resolve against (defaults to \"default\")")
	c.Flags().StringVar(&targetStr, "target", "", "pin the dependency to a specific target kind")
	c.Flags().StringVar(&alias, "alias", "", "import alias (defaults to the package's own name part)")
	c.Flags().BoolVar(&dev, "dev", false, "add as a dev dependency")
	c.Flags().BoolVar(&peer, "peer", false, "add as a peer dependency")
	return c
}

func runAdd(streams Streams, arg, index, targetStr, alias string, dev, peer bool) error {
	if dev && peer {
		return fmt.Errorf("a dependency cannot be both --dev and --peer")
	}

	name, versionReq, err := splitNameVersion(arg)
	if err != nil {
		return err
	}

	spec, err := buildSpecifier(name, versionReq, index, targetStr)
	if err != nil {
		return err
	}

	if alias == "" {
		alias = lastSegment(name)
	}

	projectRoot, err := os.Getwd()
	if err != nil {
		return err
	}
	manifestPath := filepath.Join(projectRoot, manifest.FileName)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	deps := m.Dependencies
	switch {
	case dev:
		deps = m.DevDependencies
	case peer:
		deps = m.PeerDependencies
	}
	if deps == nil {
		deps = make(map[string]manifest.Specifier)
	}
	deps[alias] = spec
	switch {
	case dev:
		m.DevDependencies = deps
	case peer:
		m.PeerDependencies = deps
	default:
		m.Dependencies = deps
	}

	if err := m.Save(manifestPath); err != nil {
		return err
	}
	fmt.Fprintf(streams.Out, "added %s as %q\n", spec.String(), alias)
	return nil
}

// splitNameVersion splits a "name@req" argument; a bare name defaults
// to "*".
func splitNameVersion(arg string) (name, versionReq string, err error) {
	if arg == "" {
		return "", "", fmt.Errorf("empty dependency argument")
	}
	if i := strings.LastIndex(arg, "@"); i > 0 {
		return arg[:i], arg[i+1:], nil
	}
	return arg, "*", nil
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// buildSpecifier constructs a manifest.Specifier by round-tripping the
// command's flags through the same table-based decoding the manifest
// file format uses, keeping a single source of truth for the
// discriminating-field rules (§3).
func buildSpecifier(name, versionReq, index, targetStr string) (manifest.Specifier, error) {
	table := map[string]interface{}{
		"name":    name,
		"version": versionReq,
	}
	if index != "" {
		table["index"] = index
	}
	if targetStr != "" {
		table["target"] = targetStr
	}

	var spec manifest.Specifier
	if err := spec.UnmarshalTOML(table); err != nil {
		return manifest.Specifier{}, err
	}
	return spec, nil
}
