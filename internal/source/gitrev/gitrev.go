// Package gitrev implements the git-revision package source (§4.3.3):
// a dependency pinned to an arbitrary commit of an arbitrary repository
// rather than an index entry.
package gitrev

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/credential"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/packagefs"
	"github.com/wisp-pm/wisp/internal/source"
	"github.com/wisp-pm/wisp/internal/target"
)

// ignoredPaths are skipped while walking a cloned revision tree (§4.3.3).
var ignoredPaths = map[string]bool{
	".git":           true,
	".github":        true,
	"wisp.lock":      true,
	"node_modules":   true,
}

// Source is the git-revision implementation of source.Source. One
// instance is bound to a single repository URL; the resolver creates
// one per distinct repo_url encountered in the manifest.
type Source struct {
	RepoURL  string
	DataDir  string
	Cred     credential.Provider
	Store    *cas.Store

	mu   sync.Mutex
	repo *gogit.Repository
}

func New(repoURL, dataDir string, cred credential.Provider, store *cas.Store) *Source {
	return &Source{RepoURL: repoURL, DataDir: dataDir, Cred: cred, Store: store}
}

func (s *Source) localPath() string {
	sum := sha256.Sum256([]byte(s.RepoURL))
	return filepath.Join(s.DataDir, hex.EncodeToString(sum[:]))
}

func (s *Source) Refresh() error {
	const op = errors.Op("gitrev.Refresh")
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.localPath()
	auth, err := credential.AuthMethod(s.Cred, s.RepoURL)
	if err != nil {
		return errors.E(op, errors.SourceRefresh, err)
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		repo, err := gogit.PlainClone(path, true, &gogit.CloneOptions{URL: s.RepoURL, Auth: auth})
		if err != nil {
			return errors.E(op, errors.SourceRefresh, s.RepoURL, err)
		}
		s.repo = repo
		return nil
	}

	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return errors.E(op, errors.SourceRefresh, path, err)
	}
	s.repo = repo

	err = repo.Fetch(&gogit.FetchOptions{RemoteName: "origin", Auth: auth, Force: true})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return errors.E(op, errors.SourceRefresh, s.RepoURL, err)
	}
	return nil
}

// Resolve peels spec's rev to a commit and returns a single entry
// keyed by the version implied by the rev-pinned manifest (§4.3.3:
// resolve parses the rev-spec, reads the manifest from that tree).
func (s *Source) Resolve(spec manifest.Specifier, projectTarget target.Kind) (names.PackageNames, map[names.VersionID]source.Candidate, error) {
	const op = errors.Op("gitrev.Resolve")

	hash, err := s.resolveRevision(spec.Rev)
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution, spec.RepoURL, err)
	}

	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution, err)
	}

	m, err := readManifestFromTree(tree)
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution, err)
	}

	pn, err := names.ParsePackageName(m.Name)
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, errors.InputValidation, err)
	}

	if spec.HasTarget && m.Target.Kind != spec.Target {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution,
			fmt.Sprintf("git revision %s declares target %s, requested %s", spec.Rev, m.Target.Kind, spec.Target))
	}
	if !projectTarget.IsCompatibleWith(m.Target.Kind) {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution,
			fmt.Sprintf("project target %s incompatible with %s", projectTarget, m.Target.Kind))
	}

	direct, err := m.DirectDependencies()
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, errors.InputValidation, err)
	}
	deps := make(map[string]source.DependencyEntry, len(direct))
	for _, d := range direct {
		deps[d.Alias] = source.DependencyEntry{Specifier: d.Specifier, Kind: d.Kind}
	}

	vid := names.NewVersionID(m.Version, m.Target.Kind)
	return names.Primary(pn), map[names.VersionID]source.Candidate{
		vid: {
			Ref: lockfile.PkgRef{
				Kind:    lockfile.RefGit,
				Name:    pn.Escaped(),
				RepoURL: s.RepoURL,
				Rev:     hash.String(),
			},
			Dependencies: deps,
		},
	}, nil
}

func (s *Source) resolveRevision(rev string) (plumbing.Hash, error) {
	h, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return *h, nil
}

func readManifestFromTree(tree *object.Tree) (*manifest.Manifest, error) {
	f, err := tree.File(manifest.FileName)
	if err != nil {
		return nil, fmt.Errorf("revision contains no %s", manifest.FileName)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return manifest.Parse([]byte(contents))
}

// Download walks the pinned tree depth-first (go-git's TreeWalker
// order), storing every blob in the CAS and recording directories,
// skipping ignored paths (§4.3.3).
func (s *Source) Download(ref lockfile.PkgRef, version names.VersionID) (packagefs.PackageFS, target.Target, error) {
	const op = errors.Op("gitrev.Download")

	cacheKey := s.snapshotKey(ref.Rev, version.Target)
	if data, ok, err := s.Store.GetSnapshot(cacheKey); err == nil && ok {
		if fs, cachedTgt, err := packagefs.DecodeSnapshot(data); err == nil {
			return fs, cachedTgt, nil
		}
	}

	hash := plumbing.NewHash(ref.Rev)
	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}

	fs := packagefs.New()
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	for {
		name, entry, err := walker.Next()
		if err != nil {
			break
		}
		if isIgnored(name) {
			continue
		}
		if entry.Mode.IsFile() {
			blob, err := object.GetBlob(s.repo.Storer, entry.Hash)
			if err != nil {
				return nil, target.Target{}, errors.E(op, errors.Download, err)
			}
			r, err := blob.Reader()
			if err != nil {
				return nil, target.Target{}, errors.E(op, errors.Download, err)
			}
			h, _, err := s.Store.Put(r)
			r.Close()
			if err != nil {
				return nil, target.Target{}, errors.E(op, errors.Download, err)
			}
			fs.AddFile(path.Clean(name), h)
		} else {
			fs.AddDirectory(path.Clean(name))
		}
	}

	m, err := readManifestFromTree(tree)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}

	if data, err := packagefs.EncodeSnapshot(fs, m.Target); err == nil {
		_ = s.Store.PutSnapshot(cacheKey, data)
	}

	return fs, m.Target, nil
}

// snapshotKey identifies a download-cache slot by (source_hash,
// revision, target) (§4.3.3): RepoURL stands in for the source_hash
// since a gitrev.Source is bound to one repository.
func (s *Source) snapshotKey(rev string, kind target.Kind) string {
	return fmt.Sprintf("gitrev|%s|%s|%s", s.RepoURL, rev, kind)
}

func isIgnored(name string) bool {
	for _, comp := range strings.Split(path.Clean(name), "/") {
		if ignoredPaths[comp] {
			return true
		}
	}
	return false
}
