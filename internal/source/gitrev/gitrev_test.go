package gitrev

import (
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/target"
)

// newTestRepo creates a working-tree repository with a single commit
// containing a manifest plus a library file and an ignored directory,
// so Resolve/Download never touch the network.
func newTestRepo(t *testing.T) (*gogit.Repository, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	manifestContent := `
name = "acme/widgets"
version = "1.0.0"

[target]
kind = "luau"
lib = "src/init.luau"
`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(manifestContent), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "init.luau"), []byte("return {}\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "junk"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "junk", "x.txt"), []byte("ignored"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com"},
	})
	require.NoError(t, err)

	return repo, hash
}

func TestResolveReadsManifestFromRevision(t *testing.T) {
	repo, hash := newTestRepo(t)
	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	src := New("https://example.invalid/acme/widgets.git", t.TempDir(), nil, store)
	src.repo = repo

	var spec manifest.Specifier
	require.NoError(t, spec.UnmarshalTOML(map[string]interface{}{
		"repo": "https://example.invalid/acme/widgets.git",
		"rev":  hash.String(),
	}))

	pn, candidates, err := src.Resolve(spec, target.Luau)
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", pn.String())
	require.Len(t, candidates, 1)
	for _, c := range candidates {
		assert.Equal(t, lockfile.RefGit, c.Ref.Kind)
	}
}

func TestDownloadWalksTreeSkippingIgnoredPaths(t *testing.T) {
	repo, hash := newTestRepo(t)
	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	src := New("https://example.invalid/acme/widgets.git", t.TempDir(), nil, store)
	src.repo = repo

	fs, tgt, err := src.Download(lockfile.PkgRef{Rev: hash.String()}, names.VersionID{})
	require.NoError(t, err)
	assert.Equal(t, "src/init.luau", tgt.Lib)
	assert.Contains(t, fs, "src/init.luau")
	assert.NotContains(t, fs, "node_modules/junk/x.txt")
}

func TestDownloadServesSecondCallFromSnapshotCache(t *testing.T) {
	repo, hash := newTestRepo(t)
	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	src := New("https://example.invalid/acme/widgets.git", t.TempDir(), nil, store)
	src.repo = repo

	ref := lockfile.PkgRef{Rev: hash.String()}
	_, _, err = src.Download(ref, names.VersionID{})
	require.NoError(t, err)

	// Drop the live repository: a cache hit must not need it.
	src.repo = nil

	fs, tgt, err := src.Download(ref, names.VersionID{})
	require.NoError(t, err)
	assert.Equal(t, "src/init.luau", tgt.Lib)
	assert.Contains(t, fs, "src/init.luau")
}
