package cas_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/cas"
)

func TestPutHasOpen(t *testing.T) {
	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	h, n, err := store.Put(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)
	assert.True(t, store.Has(h))

	f, err := store.OpenBlob(h)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestPutDedup(t *testing.T) {
	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	h1, _, err := store.Put(strings.NewReader("same content"))
	require.NoError(t, err)
	h2, _, err := store.Put(strings.NewReader("same content"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHasMissing(t *testing.T) {
	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)
	assert.False(t, store.Has(cas.Hash("0000000000000000000000000000000000000000000000000000000000000000")))
}

func TestVerify(t *testing.T) {
	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	h, _, err := store.Put(strings.NewReader("verify me"))
	require.NoError(t, err)
	assert.NoError(t, store.Verify(h))
}

func TestVerifyDetectsCorruption(t *testing.T) {
	root := t.TempDir()
	store, err := cas.Open(root)
	require.NoError(t, err)

	h, _, err := store.Put(strings.NewReader("original content"))
	require.NoError(t, err)

	path := store.Path(h)
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("tampered content!"), 0o644))

	assert.Error(t, store.Verify(h))
}

func TestMaterialize(t *testing.T) {
	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	h, _, err := store.Put(strings.NewReader("materialize me"))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "nested", "out.txt")
	require.NoError(t, store.Materialize(h, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "materialize me", string(data))
}
