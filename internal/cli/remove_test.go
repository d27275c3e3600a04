package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/manifest"
)

func TestRunRemoveDeletesDependency(t *testing.T) {
	dir := withTempWorkdir(t)

	manifestContent := "name = \"acme/app\"\nversion = \"1.0.0\"\n\n[target]\nkind = \"luau\"\nlib = \"init.luau\"\n\n[dependencies]\nwidgets = { name = \"acme/widgets\", version = \"^1.0.0\" }\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(manifestContent), 0o644))

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	err = runRemove(Streams{Out: w}, "widgets")
	require.NoError(t, err)
	w.Close()

	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	require.NoError(t, err)
	assert.NotContains(t, m.Dependencies, "widgets")
}

func TestRunRemoveUnknownAliasIsError(t *testing.T) {
	dir := withTempWorkdir(t)

	manifestContent := "name = \"acme/app\"\nversion = \"1.0.0\"\n\n[target]\nkind = \"luau\"\nlib = \"init.luau\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(manifestContent), 0o644))

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	err = runRemove(Streams{Out: w}, "nope")
	assert.Error(t, err)
}
