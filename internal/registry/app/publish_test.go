package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/source"
	"github.com/wisp-pm/wisp/internal/target"
)

func TestValidateArchiveIncludesAllowsManifestAndMatches(t *testing.T) {
	m := &manifest.Manifest{Includes: []string{"src/*.luau", "assets"}}
	files := map[string][]byte{
		manifest.FileName:    nil,
		"src/init.luau":      nil,
		"assets/logo.png":    nil,
	}
	assert.NoError(t, validateArchiveIncludes(files, m))
}

func TestValidateArchiveIncludesRejectsUncovered(t *testing.T) {
	m := &manifest.Manifest{Includes: []string{"src/*.luau"}}
	files := map[string][]byte{
		manifest.FileName: nil,
		"secrets.env":     nil,
	}
	assert.Error(t, validateArchiveIncludes(files, m))
}

func TestValidateManifestForPublishRejectsNoExports(t *testing.T) {
	m := &manifest.Manifest{Target: target.Target{Kind: target.Luau}}
	assert.Error(t, validateManifestForPublish(m))
}

func TestValidateManifestForPublishAcceptsValid(t *testing.T) {
	m := &manifest.Manifest{Target: target.Target{Kind: target.Luau, Lib: "src/init.luau"}}
	assert.NoError(t, validateManifestForPublish(m))
}

func TestSameSemver(t *testing.T) {
	assert.True(t, sameSemver("1.0.0", "1.0.0"))
	assert.False(t, sameSemver("1.0.0", "1.0.1"))
}

func TestMetadataMatches(t *testing.T) {
	m := &manifest.Manifest{Description: "a widget", License: "MIT", Authors: []string{"a", "b"}}
	e := source.IndexEntry{Description: "a widget", License: "MIT", Authors: []string{"a", "b"}}
	assert.True(t, metadataMatches(e, m))

	e2 := source.IndexEntry{Description: "different", License: "MIT", Authors: []string{"a", "b"}}
	assert.False(t, metadataMatches(e2, m))
}

func TestSortIndexEntries(t *testing.T) {
	entries := []source.IndexEntry{
		{Version: "2.0.0", TargetKind: target.Luau},
		{Version: "1.0.0", TargetKind: target.Roblox},
		{Version: "1.0.0", TargetKind: target.Luau},
	}
	sortIndexEntries(entries)
	require.Len(t, entries, 3)
	assert.Equal(t, "1.0.0", entries[0].Version)
	assert.Equal(t, target.Roblox, entries[0].TargetKind)
	assert.Equal(t, "1.0.0", entries[1].Version)
	assert.Equal(t, target.Luau, entries[1].TargetKind)
	assert.Equal(t, "2.0.0", entries[2].Version)
}

func TestIndexEntryFromManifest(t *testing.T) {
	m := &manifest.Manifest{
		VersionRaw:  "1.0.0",
		Target:      target.Target{Kind: target.Luau, Lib: "src/init.luau"},
		Description: "desc",
		Dependencies: map[string]manifest.Specifier{
			"foo": {Kind: manifest.SpecifierPrimary, Name: "acme/foo", VersionReqRaw: "^1.0.0"},
		},
	}
	entry := indexEntryFromManifest(m)
	assert.Equal(t, "1.0.0", entry.Version)
	assert.Equal(t, "desc", entry.Description)
	require.Contains(t, entry.Dependencies, "foo")
	assert.Equal(t, manifest.Standard, entry.Dependencies["foo"].Kind)
}
