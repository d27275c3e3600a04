package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/source/workspace"
	"github.com/wisp-pm/wisp/internal/target"
)

func writeMember(t *testing.T, root, dir, name, version string) string {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	content := "name = \"" + name + "\"\nversion = \"" + version + "\"\n\n[target]\nkind = \"luau\"\nlib = \"init.luau\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(path, manifest.FileName), []byte(content), 0o644))
	return path
}

func TestResolveFindsMember(t *testing.T) {
	root := t.TempDir()
	memberPath := writeMember(t, root, "widgets", "acme/widgets", "1.0.0")

	src := workspace.New(root)
	var spec manifest.Specifier
	require.NoError(t, spec.UnmarshalTOML(map[string]interface{}{"workspace": "acme/widgets", "version": "^"}))

	pn, candidates, err := src.Resolve(spec, target.Luau)
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", pn.String())
	require.Len(t, candidates, 1)

	for _, c := range candidates {
		assert.Equal(t, lockfile.RefWorkspace, c.Ref.Kind)
		assert.Equal(t, memberPath, c.Ref.Path)
	}
}

func TestResolveMissingMember(t *testing.T) {
	root := t.TempDir()
	writeMember(t, root, "widgets", "acme/widgets", "1.0.0")

	src := workspace.New(root)
	var spec manifest.Specifier
	require.NoError(t, spec.UnmarshalTOML(map[string]interface{}{"workspace": "acme/nope", "version": "^"}))

	_, _, err := src.Resolve(spec, target.Luau)
	assert.Error(t, err)
}

func TestDownloadCopiesMemberTree(t *testing.T) {
	root := t.TempDir()
	memberPath := writeMember(t, root, "widgets", "acme/widgets", "1.0.0")

	src := workspace.New(root)
	var spec manifest.Specifier
	require.NoError(t, spec.UnmarshalTOML(map[string]interface{}{"workspace": "acme/widgets", "version": "^"}))

	_, candidates, err := src.Resolve(spec, target.Luau)
	require.NoError(t, err)

	var ref lockfile.PkgRef
	var vid names.VersionID
	for v, c := range candidates {
		ref, vid = c.Ref, v
	}

	fs, tgt, err := src.Download(ref, vid)
	require.NoError(t, err)
	assert.Equal(t, target.Luau, tgt.Kind)
	assert.NotEmpty(t, fs)
	_ = memberPath
}
