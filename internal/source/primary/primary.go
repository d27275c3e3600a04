// Package primary implements the primary-index package source
// (§4.3.1): gzip-tar archives fetched over HTTP, addressed through a
// git-backed index repository.
package primary

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/gitindex"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/packagefs"
	"github.com/wisp-pm/wisp/internal/source"
	"github.com/wisp-pm/wisp/internal/target"
)

// Source is the primary-index implementation of source.Source.
type Source struct {
	Index  *gitindex.Index
	Store  *cas.Store
	Client *http.Client

	config source.Config

	// readIndexFile resolves a package's IndexFile. Defaults to reading
	// through Index; overridable by tests so Download doesn't need a
	// live git-backed index to recover target metadata.
	readIndexFile func(scope, name string) (*source.IndexFile, error)

	// indexURL identifies which index repository a snapshot cache key
	// belongs to. Defaults to Index.URL(); overridable by tests since
	// Index is nil when readIndexFile is stubbed.
	indexURL func() string
}

func New(idx *gitindex.Index, store *cas.Store, client *http.Client) *Source {
	if client == nil {
		client = http.DefaultClient
	}
	s := &Source{Index: idx, Store: store, Client: client}
	s.readIndexFile = func(scope, name string) (*source.IndexFile, error) {
		return source.ReadPackageFile(s.Index, scope, name)
	}
	s.indexURL = func() string {
		if s.Index == nil {
			return ""
		}
		return s.Index.URL()
	}
	return s
}

func (s *Source) Refresh() error {
	const op = errors.Op("primary.Refresh")
	if err := s.Index.Refresh(); err != nil {
		return errors.E(op, err)
	}
	cfg, err := source.ReadConfig(s.Index)
	if err != nil {
		return errors.E(op, err)
	}
	s.config = cfg
	return nil
}

func (s *Source) Resolve(spec manifest.Specifier, projectTarget target.Kind) (names.PackageNames, map[names.VersionID]source.Candidate, error) {
	const op = errors.Op("primary.Resolve")

	pn, err := spec.PackageName()
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, errors.InputValidation, err)
	}

	file, err := s.readIndexFile(pn.Primary.Scope, pn.Primary.Name)
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, err)
	}
	if file == nil {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution,
			fmt.Sprintf("package %s not found in primary index", pn))
	}

	out := make(map[names.VersionID]source.Candidate)
	for _, entry := range file.Entries {
		v, err := semverParse(entry.Version)
		if err != nil {
			continue
		}
		if !spec.VersionReq.Check(v) {
			continue
		}
		if spec.HasTarget && entry.TargetKind != spec.Target {
			continue
		}
		if !spec.HasTarget && !projectTarget.IsCompatibleWith(entry.TargetKind) {
			continue
		}

		vid := names.NewVersionID(v, entry.TargetKind)
		deps := make(map[string]source.DependencyEntry, len(entry.Dependencies))
		for alias, d := range entry.Dependencies {
			deps[alias] = source.DependencyEntry{Specifier: d.Specifier, Kind: d.Kind}
		}
		out[vid] = source.Candidate{
			Ref: lockfile.PkgRef{
				Kind:   lockfile.RefPrimary,
				Name:   pn.Escaped(),
				Index:  spec.Index,
				Source: s.Index.URL(),
			},
			Dependencies: deps,
		}
	}

	if len(out) == 0 {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution,
			fmt.Sprintf("no version of %s satisfies %s", pn, spec.VersionReqRaw))
	}
	return pn, out, nil
}

func (s *Source) Download(ref lockfile.PkgRef, version names.VersionID) (packagefs.PackageFS, target.Target, error) {
	const op = errors.Op("primary.Download")

	pn, err := names.FromEscaped(names.KindPrimary, ref.Name)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.InputValidation, err)
	}

	tgt, err := s.indexTarget(pn.Primary.Scope, pn.Primary.Name, version)
	if err != nil {
		return nil, target.Target{}, errors.E(op, err)
	}

	cacheKey := s.snapshotKey(pn.Primary.Scope, pn.Primary.Name, version)
	if data, ok, err := s.Store.GetSnapshot(cacheKey); err == nil && ok {
		if fs, cachedTgt, err := packagefs.DecodeSnapshot(data); err == nil {
			return fs, cachedTgt, nil
		}
	}

	url := s.config.DownloadURL(pn.Primary.Scope, pn.Primary.Name, version.Version.String(), version.Target.String())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, target.Target{}, errors.E(op, errors.Download,
			fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, url))
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}
	defer gz.Close()

	fs := packagefs.New()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, target.Target{}, errors.E(op, errors.Download, err)
		}
		cleanPath := path.Clean(hdr.Name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			fs.AddDirectory(cleanPath)
		case tar.TypeReg:
			h, _, err := s.Store.Put(tr)
			if err != nil {
				return nil, target.Target{}, errors.E(op, errors.Download, err)
			}
			fs.AddFile(cleanPath, h)
		}
	}

	if data, err := packagefs.EncodeSnapshot(fs, tgt); err == nil {
		_ = s.Store.PutSnapshot(cacheKey, data)
	}

	return fs, tgt, nil
}

// snapshotKey identifies a download-cache slot by (source_hash,
// version_id, target) (§4.3.1): the index repository's URL stands in
// for the source_hash since a primary.Source is bound to one index.
func (s *Source) snapshotKey(scope, name string, version names.VersionID) string {
	return fmt.Sprintf("primary|%s|%s/%s|%s", s.indexURL(), scope, name, version.Escaped())
}

// indexTarget re-reads the package's index file to recover the full
// target metadata (lib/bin/build_files) for the given version_id, so
// Download returns the same Target Resolve saw rather than a bare Kind.
func (s *Source) indexTarget(scope, name string, version names.VersionID) (target.Target, error) {
	file, err := s.readIndexFile(scope, name)
	if err != nil {
		return target.Target{}, err
	}
	if file == nil {
		return target.Target{}, fmt.Errorf("package %s/%s not found in primary index", scope, name)
	}
	for _, entry := range file.Entries {
		v, err := semverParse(entry.Version)
		if err != nil {
			continue
		}
		if v.Equal(version.Version) && entry.TargetKind == version.Target {
			return entry.Target, nil
		}
	}
	return target.Target{}, fmt.Errorf("version %s (%s) not found in index for %s/%s", version.Version, version.Target, scope, name)
}
