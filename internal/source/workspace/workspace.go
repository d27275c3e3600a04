// Package workspace implements the workspace-member package source
// (§4.3.4): dependencies resolved against sibling packages sharing the
// same workspace root rather than any remote index.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/packagefs"
	"github.com/wisp-pm/wisp/internal/source"
	"github.com/wisp-pm/wisp/internal/target"
)

// Member is one discovered sibling package.
type Member struct {
	Path     string
	Manifest *manifest.Manifest
}

// Source is the workspace-member implementation of source.Source.
// Refresh is a no-op; resolve enumerates siblings under Root.
type Source struct {
	Root    string
	members []Member
	scanned bool
}

func New(root string) *Source {
	return &Source{Root: root}
}

func (s *Source) Refresh() error { return nil }

func (s *Source) scan() error {
	const op = errors.Op("workspace.scan")
	if s.scanned {
		return nil
	}

	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return errors.E(op, errors.SourceRefresh, s.Root, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		mpath := filepath.Join(s.Root, e.Name(), manifest.FileName)
		if _, err := os.Stat(mpath); err != nil {
			continue
		}
		m, err := manifest.Load(mpath)
		if err != nil {
			continue
		}
		s.members = append(s.members, Member{Path: filepath.Join(s.Root, e.Name()), Manifest: m})
	}
	s.scanned = true
	return nil
}

// Resolve matches spec.WorkspaceName against every sibling's (name,
// target), returning a single entry whose pkg_ref holds the member's
// directory joined onto Root (§4.3.4); the path is not made relative
// to the workspace root.
func (s *Source) Resolve(spec manifest.Specifier, projectTarget target.Kind) (names.PackageNames, map[names.VersionID]source.Candidate, error) {
	const op = errors.Op("workspace.Resolve")

	if err := s.scan(); err != nil {
		return names.PackageNames{}, nil, err
	}

	for _, m := range s.members {
		if m.Manifest.Name != spec.WorkspaceName {
			continue
		}
		if !projectTarget.IsCompatibleWith(m.Manifest.Target.Kind) {
			continue
		}
		pn, err := names.ParsePackageName(m.Manifest.Name)
		if err != nil {
			return names.PackageNames{}, nil, errors.E(op, errors.InputValidation, err)
		}

		direct, err := m.Manifest.DirectDependencies()
		if err != nil {
			return names.PackageNames{}, nil, errors.E(op, errors.InputValidation, err)
		}
		deps := make(map[string]source.DependencyEntry, len(direct))
		for _, d := range direct {
			deps[d.Alias] = source.DependencyEntry{Specifier: d.Specifier, Kind: d.Kind}
		}

		vid := names.NewVersionID(m.Manifest.Version, m.Manifest.Target.Kind)
		return names.Primary(pn), map[names.VersionID]source.Candidate{
			vid: {
				Ref: lockfile.PkgRef{
					Kind: lockfile.RefWorkspace,
					Name: pn.Escaped(),
					Path: m.Path,
				},
				Dependencies: deps,
			},
		}, nil
	}

	return names.PackageNames{}, nil, errors.E(op, errors.Resolution,
		fmt.Sprintf("no workspace member named %q", spec.WorkspaceName))
}

// Download returns a Copy-variant PackageFS: materialization copies
// the live workspace directory rather than reading through the CAS.
func (s *Source) Download(ref lockfile.PkgRef, version names.VersionID) (packagefs.PackageFS, target.Target, error) {
	const op = errors.Op("workspace.Download")

	if err := s.scan(); err != nil {
		return nil, target.Target{}, err
	}

	for _, m := range s.members {
		if m.Path != ref.Path {
			continue
		}
		fs := packagefs.New()
		fs.AddCopy(".", m.Path, ".")
		return fs, m.Manifest.Target, nil
	}

	return nil, target.Target{}, errors.E(op, errors.Download,
		fmt.Sprintf("workspace member at %q no longer present", ref.Path))
}
