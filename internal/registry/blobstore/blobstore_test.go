package blobstore_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/registry/blobstore"
)

func TestFSStorePutGetHas(t *testing.T) {
	store, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := "acme+widgets+1.0.0+luau.tar.gz"

	has, err := store.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Put(ctx, key, strings.NewReader("archive bytes")))

	has, err = store.Has(ctx, key)
	require.NoError(t, err)
	assert.True(t, has)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(data))
}

func TestFSStoreSignedURLUnsupported(t *testing.T) {
	store, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, ok := store.SignedURL("anything")
	assert.False(t, ok)
}

func TestArchiveReadmeDocKeys(t *testing.T) {
	assert.Equal(t, "acme+widgets+1.0.0+luau.tar.gz", blobstore.ArchiveKey("acme+widgets", "1.0.0+luau"))
	assert.Equal(t, "acme+widgets+1.0.0+luau+readme.gz", blobstore.ReadmeKey("acme+widgets", "1.0.0+luau"))
	assert.Equal(t, "doc/deadbeef.gz", blobstore.DocKey("deadbeef"))
}
