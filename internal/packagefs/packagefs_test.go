package packagefs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/packagefs"
)

func TestWriteToMaterializesFileAndCopyEntries(t *testing.T) {
	casRoot := t.TempDir()
	store, err := cas.Open(casRoot)
	require.NoError(t, err)

	h, _, err := store.Put(strings.NewReader("return {}\n"))
	require.NoError(t, err)

	memberDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(memberDir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(memberDir, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(memberDir, "widget.luau"), []byte("return 1\n"), 0o644))

	fs := packagefs.New()
	fs.AddDirectory("src")
	fs.AddFile("src/init.luau", h)
	fs.AddCopy("vendor/widgets", memberDir, "vendor/widgets")

	dest := t.TempDir()
	require.NoError(t, packagefs.WriteTo(fs, dest, casRoot, false, store))

	data, err := os.ReadFile(filepath.Join(dest, "src", "init.luau"))
	require.NoError(t, err)
	assert.Equal(t, "return {}\n", string(data))

	copied, err := os.ReadFile(filepath.Join(dest, "vendor", "widgets", "widget.luau"))
	require.NoError(t, err)
	assert.Equal(t, "return 1\n", string(copied))

	_, err = os.Stat(filepath.Join(dest, "vendor", "widgets", ".git"))
	assert.True(t, os.IsNotExist(err), "expected .git to be skipped by the live copy")
}
