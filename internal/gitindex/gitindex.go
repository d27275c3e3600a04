// Package gitindex implements the git-backed index reader (C3): it
// opens a bare repository tracking a remote, resolves the tracked
// branch's tree, and reads file blobs from it by path. Grounded on the
// bare-repository open/fetch/push plumbing used for porch's git
// package.
package gitindex

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/wisp-pm/wisp/internal/credential"
	"github.com/wisp-pm/wisp/internal/errors"
)

const (
	originName       = "origin"
	defaultMainBranch = "main"
)

// Index is a read path (and, for the registry, a write path) over a
// single git repository used as an index.
type Index struct {
	path string
	url  string
	cred credential.Provider

	mu   sync.Mutex
	repo *gogit.Repository
}

// Open binds an Index to a local path and remote URL without touching
// disk; call Refresh to materialize or update the clone.
func Open(localPath, remoteURL string, cred credential.Provider) *Index {
	return &Index{path: localPath, url: remoteURL, cred: cred}
}

// Refresh brings the local repository up to date: clones if absent,
// fetches otherwise. Fatal on auth/network failure, per §4.1.
func (idx *Index) Refresh() error {
	const op = errors.Op("gitindex.Refresh")
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := os.Stat(idx.path); os.IsNotExist(err) {
		repo, err := idx.clone()
		if err != nil {
			return errors.E(op, errors.SourceRefresh, idx.url, err)
		}
		idx.repo = repo
		return nil
	}

	repo, err := openBareRepository(idx.path)
	if err != nil {
		return errors.E(op, errors.SourceRefresh, idx.path, err)
	}
	idx.repo = repo

	auth, err := credential.AuthMethod(idx.cred, idx.url)
	if err != nil {
		return errors.E(op, errors.SourceRefresh, err)
	}

	err = repo.Fetch(&gogit.FetchOptions{
		RemoteName: originName,
		Auth:       auth,
		Force:      true,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return errors.E(op, errors.SourceRefresh, idx.url, err)
	}
	return nil
}

func (idx *Index) clone() (*gogit.Repository, error) {
	auth, err := credential.AuthMethod(idx.cred, idx.url)
	if err != nil {
		return nil, err
	}
	return gogit.PlainClone(idx.path, true, &gogit.CloneOptions{
		URL:  idx.url,
		Auth: auth,
	})
}

func openBareRepository(path string) (*gogit.Repository, error) {
	dot := osfs.New(path)
	storage := filesystem.NewStorage(dot, cache.NewObjectLRUDefault())
	return gogit.Open(storage, dot)
}

// trackingRef resolves the remote-tracking ref for the default branch,
// falling back to "main" when no local branch config names one (§4.1).
func (idx *Index) trackingRef() (*plumbing.Reference, error) {
	remote, err := idx.repo.Remote(originName)
	if err != nil {
		return nil, err
	}
	branch := defaultMainBranch
	if cfg := remote.Config(); cfg != nil {
		for _, spec := range cfg.Fetch {
			if spec.IsWildcard() {
				continue
			}
			branch = strings.TrimPrefix(spec.Src(), "refs/heads/")
			break
		}
	}
	remoteBranch := plumbing.NewRemoteReferenceName(originName, branch)
	if ref, err := idx.repo.Reference(remoteBranch, true); err == nil {
		return ref, nil
	}
	return idx.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
}

// WithLock runs fn while holding the index's mutex, letting a caller
// span several otherwise-independent reads and a final write as one
// atomic section (§5: "the entire publish path holds the index-
// repository mutex from step 2 through step 4 inclusive"). Inside fn,
// use ReadFileLocked and WriteFileAndPushLocked; Refresh, Tree,
// ReadFile and WriteFileAndPush take the same mutex and would deadlock.
func (idx *Index) WithLock(fn func() error) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return fn()
}

// readFileLocked is ReadFile's body, usable from inside WithLock.
func (idx *Index) readFileLocked(pathComponents []string) ([]byte, error) {
	const op = errors.Op("gitindex.ReadFile")

	ref, err := idx.trackingRef()
	if err != nil {
		return nil, errors.E(op, errors.SourceRefresh, err)
	}
	commit, err := idx.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, errors.E(op, errors.SourceRefresh, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, errors.E(op, errors.SourceRefresh, err)
	}

	entry := tree
	for i, comp := range pathComponents {
		te, err := entry.Tree(comp)
		if err == nil {
			entry = te
			continue
		}
		if i != len(pathComponents)-1 {
			return nil, nil
		}
		f, err := entry.File(comp)
		if err != nil {
			return nil, nil
		}
		r, err := f.Reader()
		if err != nil {
			return nil, errors.E(op, errors.SourceRefresh, err)
		}
		defer r.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, r); err != nil {
			return nil, errors.E(op, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("path %v resolved to a directory, not a file", pathComponents)
}

// ReadFileLocked is ReadFile's equivalent for use inside a WithLock
// section, where the mutex is already held.
func (idx *Index) ReadFileLocked(pathComponents []string) ([]byte, error) {
	return idx.readFileLocked(pathComponents)
}

// WriteFileAndPushLocked is WriteFileAndPush's equivalent for use
// inside a WithLock section, where the mutex is already held.
func (idx *Index) WriteFileAndPushLocked(pathComponents []string, content []byte, message, authorName, authorEmail string) (plumbing.Hash, error) {
	const op = errors.Op("gitindex.WriteFileAndPush")

	ref, err := idx.trackingRef()
	if err != nil {
		return plumbing.ZeroHash, errors.E(op, errors.Publish, err)
	}

	newHash, err := commitTreeUpdate(idx.repo, ref, pathComponents, content, message, authorName, authorEmail)
	if err != nil {
		return plumbing.ZeroHash, errors.E(op, errors.Publish, err)
	}

	auth, err := credential.AuthMethod(idx.cred, idx.url)
	if err != nil {
		return plumbing.ZeroHash, errors.E(op, errors.Publish, err)
	}
	err = idx.repo.Push(&gogit.PushOptions{
		RemoteName: originName,
		Auth:       auth,
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("%s:%s", newHash, ref.Name())),
		},
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return plumbing.ZeroHash, errors.E(op, errors.Publish, "push rejected", err)
	}
	return newHash, nil
}

// URL returns the remote URL this index tracks, used by sources that
// need to record it as a resolved reference's origin.
func (idx *Index) URL() string { return idx.url }

// Tree returns the current tree object of the tracked ref.
func (idx *Index) Tree() (*object.Tree, error) {
	const op = errors.Op("gitindex.Tree")
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ref, err := idx.trackingRef()
	if err != nil {
		return nil, errors.E(op, errors.SourceRefresh, err)
	}
	commit, err := idx.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, errors.E(op, errors.SourceRefresh, err)
	}
	return commit.Tree()
}

// ReadFile walks pathComponents through successive tree lookups and
// returns the leaf blob's bytes, or (nil, nil) if any intermediate
// component is missing.
func (idx *Index) ReadFile(pathComponents []string) ([]byte, error) {
	const op = errors.Op("gitindex.ReadFile")

	tree, err := idx.Tree()
	if err != nil {
		return nil, err
	}

	entry := tree
	for i, comp := range pathComponents {
		te, err := entry.Tree(comp)
		if err == nil {
			entry = te
			continue
		}
		if i != len(pathComponents)-1 {
			return nil, nil
		}
		f, err := entry.File(comp)
		if err != nil {
			return nil, nil
		}
		r, err := f.Reader()
		if err != nil {
			return nil, errors.E(op, errors.SourceRefresh, err)
		}
		defer r.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, r); err != nil {
			return nil, errors.E(op, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("path %v resolved to a directory, not a file", pathComponents)
}

// WriteFileAndPush commits a single-file change onto the tracked
// branch and pushes to origin: used by the registry's publish path
// (§4.5 step 4). Returns the new commit hash.
func (idx *Index) WriteFileAndPush(pathComponents []string, content []byte, message, authorName, authorEmail string) (plumbing.Hash, error) {
	const op = errors.Op("gitindex.WriteFileAndPush")
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ref, err := idx.trackingRef()
	if err != nil {
		return plumbing.ZeroHash, errors.E(op, errors.Publish, err)
	}

	newHash, err := commitTreeUpdate(idx.repo, ref, pathComponents, content, message, authorName, authorEmail)
	if err != nil {
		return plumbing.ZeroHash, errors.E(op, errors.Publish, err)
	}

	auth, err := credential.AuthMethod(idx.cred, idx.url)
	if err != nil {
		return plumbing.ZeroHash, errors.E(op, errors.Publish, err)
	}
	err = idx.repo.Push(&gogit.PushOptions{
		RemoteName: originName,
		Auth:       auth,
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("%s:%s", newHash, ref.Name())),
		},
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return plumbing.ZeroHash, errors.E(op, errors.Publish, "push rejected", err)
	}
	return newHash, nil
}

