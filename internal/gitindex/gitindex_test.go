package gitindex

import (
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/credential"
)

// newTestIndex builds a bare repository with a single empty initial
// commit on "main" and an Index bound directly to it, bypassing
// clone/fetch/push so tests never touch the network.
func newTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, true)
	require.NoError(t, err)

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: originName,
		URLs: []string{"https://example.invalid/index.git"},
	})
	require.NoError(t, err)

	emptyTreeHash, err := writeTree(repo.Storer, map[string]object.TreeEntry{})
	require.NoError(t, err)

	commit := &object.Commit{
		Author:    object.Signature{Name: "seed", Email: "seed@example.com"},
		Committer: object.Signature{Name: "seed", Email: "seed@example.com"},
		Message:   "initial",
		TreeHash:  emptyTreeHash,
	}
	obj := repo.Storer.NewEncodedObject()
	require.NoError(t, commit.Encode(obj))
	commitHash, err := repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)

	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(defaultMainBranch), commitHash)
	require.NoError(t, repo.Storer.SetReference(ref))

	return &Index{
		path: dir,
		url:  "https://example.invalid/index.git",
		cred: credential.Store{},
		repo: repo,
	}
}

func TestReadFileMissing(t *testing.T) {
	idx := newTestIndex(t)
	data, err := idx.ReadFile([]string{"missing.toml"})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCommitTreeUpdateThenReadFile(t *testing.T) {
	idx := newTestIndex(t)

	var readBack []byte
	err := idx.WithLock(func() error {
		ref, err := idx.trackingRef()
		if err != nil {
			return err
		}
		_, err = commitTreeUpdate(idx.repo, ref, []string{"acme", "widgets.toml"}, []byte("hello"), "publish widgets", "registry", "registry@example.com")
		if err != nil {
			return err
		}
		readBack, err = idx.readFileLocked([]string{"acme", "widgets.toml"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(readBack))
}

func TestCommitTreeUpdatePreservesSiblings(t *testing.T) {
	idx := newTestIndex(t)

	err := idx.WithLock(func() error {
		ref, err := idx.trackingRef()
		if err != nil {
			return err
		}
		_, err = commitTreeUpdate(idx.repo, ref, []string{"acme", "widgets.toml"}, []byte("widgets"), "m1", "registry", "registry@example.com")
		return err
	})
	require.NoError(t, err)

	err = idx.WithLock(func() error {
		ref, err := idx.trackingRef()
		if err != nil {
			return err
		}
		_, err = commitTreeUpdate(idx.repo, ref, []string{"acme", "gadgets.toml"}, []byte("gadgets"), "m2", "registry", "registry@example.com")
		return err
	})
	require.NoError(t, err)

	widgets, err := idx.ReadFile([]string{"acme", "widgets.toml"})
	require.NoError(t, err)
	assert.Equal(t, "widgets", string(widgets))

	gadgets, err := idx.ReadFile([]string{"acme", "gadgets.toml"})
	require.NoError(t, err)
	assert.Equal(t, "gadgets", string(gadgets))
}

func TestURL(t *testing.T) {
	idx := newTestIndex(t)
	assert.Equal(t, "https://example.invalid/index.git", idx.URL())
}
