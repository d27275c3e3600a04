package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/credential"
	"github.com/wisp-pm/wisp/internal/linker"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/resolver"
	"github.com/wisp-pm/wisp/internal/scripts"
)

const cacheDirName = ".wisp-cache"

// newInstallCommand resolves the manifest's dependency graph, writes
// the lockfile, and downloads and links every resolved node.
func newInstallCommand(streams Streams) *cobra.Command {
	var workers int

	c := &cobra.Command{
		Use:   "install",
		Short: "Resolve, download and link the project's dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(streams, workers)
		},
	}
	c.Flags().IntVar(&workers, "workers", 6, "number of concurrent download workers")
	return c
}

// newUpdateCommand re-resolves the dependency graph against the
// manifest, discarding the existing lockfile's pinned versions unless
// --locked is set.
func newUpdateCommand(streams Streams) *cobra.Command {
	var (
		workers int
		locked  bool
	)

	c := &cobra.Command{
		Use:   "update",
		Short: "Re-resolve dependencies and rewrite the lockfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if locked {
				return runInstall(streams, workers)
			}
			return runUpdate(streams, workers)
		},
	}
	c.Flags().IntVar(&workers, "workers", 6, "number of concurrent download workers")
	c.Flags().BoolVar(&locked, "locked", false, "keep the existing lockfile's pinned versions")
	return c
}

func runInstall(streams Streams, workers int) error {
	return installProject(streams, workers, true)
}

// runUpdate re-resolves ignoring any existing lockfile pins, so every
// dependency is re-selected against the greatest satisfying candidate
// rather than the version the lockfile already reuses.
func runUpdate(streams Streams, workers int) error {
	return installProject(streams, workers, false)
}

func installProject(streams Streams, workers int, reuseLockfile bool) error {
	projectRoot, err := os.Getwd()
	if err != nil {
		return err
	}

	m, err := manifest.Load(filepath.Join(projectRoot, manifest.FileName))
	if err != nil {
		return err
	}

	var prev *lockfile.Lockfile
	lockPath := filepath.Join(projectRoot, lockfile.FileName)
	if reuseLockfile {
		if _, err := os.Stat(lockPath); err == nil {
			prev, err = lockfile.Load(lockPath)
			if err != nil {
				logrus.WithError(err).Warn("discarding unreadable lockfile, resolving from scratch")
				prev = nil
			}
		}
	}

	overridesRaw := make(map[string]string, len(m.Overrides))
	for k, spec := range m.Overrides {
		overridesRaw[k] = spec.String()
	}

	cacheDir := filepath.Join(projectRoot, cacheDirName)
	if err := ensureDir(cacheDir); err != nil {
		return err
	}
	store, err := cas.Open(filepath.Join(cacheDir, "cas"))
	if err != nil {
		return err
	}

	cred := credential.Store{Token: os.Getenv("WISP_TOKEN")}
	loc := NewSourceLocator(projectRoot, cacheDir, store, m, cred)

	fmt.Fprintln(streams.Out, "resolving dependencies")
	lock, err := resolver.Resolve(m, prev, overridesRaw, loc)
	if err != nil {
		return err
	}
	for _, peer := range resolver.UnresolvedPeers(lock) {
		fmt.Fprintf(streams.Err, "warning: unresolved peer dependency %s\n", peer)
	}
	if err := lock.Save(lockPath); err != nil {
		return err
	}

	progress := make(chan linker.Progress, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			if p.Err != nil {
				fmt.Fprintf(streams.Err, "failed %s@%s: %v\n", p.NameKey, p.VersionKey, p.Err)
				continue
			}
			fmt.Fprintf(streams.Out, "downloaded %s@%s\n", p.NameKey, p.VersionKey)
		}
	}()

	downloader := &linker.Downloader{
		ProjectRoot:    projectRoot,
		ProjectTarget:  m.Target.Kind,
		CASRoot:        filepath.Join(cacheDir, "cas"),
		Store:          store,
		Workers:        workers,
		Locator:        loc,
		SameFilesystem: true,
	}
	results, err := downloader.Download(context.Background(), lock, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	lk := &linker.Linker{
		ProjectRoot:             projectRoot,
		ProjectTarget:           m.Target.Kind,
		ScriptRunner:            scripts.Runner{StderrSink: func(line string) { fmt.Fprintln(streams.Err, line) }},
		RobloxSyncConfigScript:  resolveScript(m, projectRoot, scripts.RobloxSyncConfigGenerator),
	}
	warnings, err := lk.Link(context.Background(), results)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(streams.Err, "warning: %s@%s: %s\n", w.NameKey, w.VersionKey, w.Message)
	}

	fmt.Fprintln(streams.Out, "done")
	return nil
}

// resolveScript returns the project-relative script path declared
// under alias, or "" if the manifest declares none.
func resolveScript(m *manifest.Manifest, projectRoot, alias string) string {
	rel, ok := m.Scripts[alias]
	if !ok || rel == "" {
		return ""
	}
	return filepath.Join(projectRoot, filepath.FromSlash(rel))
}
