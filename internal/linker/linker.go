// Package linker implements the downloader and shim generator (C7):
// bounded-parallel download of every resolved graph node into a
// container folder, followed by per-edge require shims with re-
// exported type declarations (§4.7).
package linker

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/packagefs"
	"github.com/wisp-pm/wisp/internal/source"
	"github.com/wisp-pm/wisp/internal/target"
)

const (
	minWorkers     = 1
	maxWorkers     = 128
	defaultWorkers = 6
)

// Progress reports one completed download or link step, consumed by a
// caller-supplied UI sink (§5: "a single multi-producer channel").
type Progress struct {
	NameKey    string
	VersionKey string
	Err        error
}

// Locator resolves a PkgRef's Kind back to the Source instance that
// can download it. One Source instance may serve many nodes (e.g. the
// primary index source across every primary-index node).
type Locator interface {
	GetForRef(ref lockfile.PkgRef) (source.Source, error)
}

// Downloader walks a resolved lockfile graph and materializes every
// node's PackageFS into the project tree.
type Downloader struct {
	ProjectRoot   string
	ProjectTarget target.Kind
	CASRoot       string
	Store         *cas.Store
	Workers       int
	Locator       Locator

	// SameFilesystem controls whether materialization hardlinks (true)
	// or copies (false) from the CAS into project directories.
	SameFilesystem bool
}

// result pairs a node identity with its downloaded view, used to feed
// the shim-generation pass after every download completes.
type result struct {
	name      names.PackageNames
	version   names.VersionID
	node      lockfile.Node
	target    target.Target
	libAbs    string
	container string
}

// Download runs source.download + PackageFS.WriteTo for every node in
// lock, bounded by Workers concurrent tasks (default 6, clamped to
// 1-128 per §4.7), and reports each completion on progress.
func (d *Downloader) Download(ctx context.Context, lock *lockfile.Lockfile, progress chan<- Progress) ([]result, error) {
	const op = errors.Op("linker.Download")

	workers := d.Workers
	if workers < minWorkers {
		workers = defaultWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	type task struct {
		nameKey, versionKey string
		name                names.PackageNames
		version             names.VersionID
		node                lockfile.Node
	}
	var tasks []task
	for nameKey, versions := range lock.Graph {
		name, err := parseAnyEscapedName(nameKey)
		if err != nil {
			continue
		}
		for versionKey, node := range versions {
			vid, err := names.ParseEscapedVersionID(versionKey)
			if err != nil {
				continue
			}
			tasks = append(tasks, task{nameKey, versionKey, name, vid, node})
		}
	}

	results := make([]result, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			src, err := d.Locator.GetForRef(t.node.PkgRef)
			if err != nil {
				sendProgress(progress, t.nameKey, t.versionKey, err)
				return errors.E(op, errors.Download, t.nameKey, err)
			}

			fs, tgt, err := src.Download(t.node.PkgRef, t.version)
			if err != nil {
				sendProgress(progress, t.nameKey, t.versionKey, err)
				return errors.E(op, errors.Download, t.nameKey, err)
			}

			dest := ContainerPath(d.ProjectRoot, d.ProjectTarget, t.version.Target, t.name, t.version)
			if err := packagefs.WriteTo(fs, dest, d.CASRoot, d.SameFilesystem, d.Store); err != nil {
				sendProgress(progress, t.nameKey, t.versionKey, err)
				return errors.E(op, errors.Download, t.nameKey, err)
			}

			libAbs := ""
			if tgt.Lib != "" {
				libAbs = filepath.Join(dest, filepath.FromSlash(tgt.Lib))
			}

			results[i] = result{name: t.name, version: t.version, node: t.node, target: tgt, libAbs: libAbs, container: dest}
			sendProgress(progress, t.nameKey, t.versionKey, nil)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func sendProgress(ch chan<- Progress, nameKey, versionKey string, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- Progress{NameKey: nameKey, VersionKey: versionKey, Err: err}:
	default:
	}
}

func parseAnyEscapedName(escaped string) (names.PackageNames, error) {
	if n, err := names.FromEscaped(names.KindPrimary, escaped); err == nil {
		return n, nil
	}
	return names.FromEscaped(names.KindLegacy, escaped)
}
