package lockfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/target"
)

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Name:       "acme/widgets",
		VersionRaw: "1.0.0",
		Target:     target.Target{Kind: target.Luau},
	}
}

func TestPutGet(t *testing.T) {
	l := lockfile.New(testManifest(), nil)

	pn, err := names.ParsePackageName("acme/foo")
	require.NoError(t, err)
	v, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	vid := names.NewVersionID(v, target.Luau)

	l.Put(names.Primary(pn), vid, lockfile.Node{PkgRef: lockfile.PkgRef{Kind: lockfile.RefPrimary, Hash: "deadbeef"}})

	got, ok := l.Get(names.Primary(pn).Escaped(), vid.Escaped())
	require.True(t, ok)
	assert.Equal(t, "deadbeef", got.PkgRef.Hash)

	_, ok = l.Get("nope", vid.Escaped())
	assert.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	l := lockfile.New(testManifest(), map[string]string{"a>b": "acme/foo@^1.0.0"})

	pn, err := names.ParsePackageName("acme/foo")
	require.NoError(t, err)
	v, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	vid := names.NewVersionID(v, target.Luau)
	l.Put(names.Primary(pn), vid, lockfile.Node{
		PkgRef: lockfile.PkgRef{Kind: lockfile.RefPrimary, Hash: "deadbeef"},
		Direct: true,
		Alias:  "foo",
	})

	dir := t.TempDir()
	path := filepath.Join(dir, lockfile.FileName)
	require.NoError(t, l.Save(path))

	loaded, err := lockfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, l.Name, loaded.Name)
	assert.Equal(t, l.Version, loaded.Version)
	assert.Equal(t, l.Overrides, loaded.Overrides)

	got, ok := loaded.Get(names.Primary(pn).Escaped(), vid.Escaped())
	require.True(t, ok)
	assert.True(t, got.Direct)
	assert.Equal(t, "foo", got.Alias)
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockfile.FileName)
	require.NoError(t, os.WriteFile(path, []byte("lockfile_version = 999\nname = \"x\"\nversion = \"1.0.0\"\ntarget = \"luau\"\n"), 0o644))

	_, err := lockfile.Load(path)
	assert.Error(t, err)
}

func TestMatchesManifest(t *testing.T) {
	m := testManifest()
	overrides := map[string]string{"a>b": "acme/foo@^1.0.0"}
	l := lockfile.New(m, overrides)

	assert.True(t, l.MatchesManifest(m, overrides))
	assert.False(t, l.MatchesManifest(m, map[string]string{"a>b": "acme/foo@^2.0.0"}))
	assert.False(t, l.MatchesManifest(m, nil))

	m2 := testManifest()
	m2.VersionRaw = "2.0.0"
	assert.False(t, l.MatchesManifest(m2, overrides))
}
