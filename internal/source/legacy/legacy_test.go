package legacy

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/source"
	"github.com/wisp-pm/wisp/internal/target"
)

func zipFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("src/init.lua")
	require.NoError(t, err)
	_, err = w.Write([]byte("return {}\n"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDownloadExtractsZipAndInfersLibrary(t *testing.T) {
	archive := zipFixture(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	scriptDir := t.TempDir()
	scriptPath := filepath.Join(scriptDir, "sourcemap.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\necho '[\"src/init.lua\"]'\n"), 0o755))

	src := New(nil, store, server.Client(), scriptPath)
	src.config = source.Config{APIURL: server.URL}

	pn, err := names.ParsePackageName("acme/widgets")
	require.NoError(t, err)
	ref := lockfile.PkgRef{Kind: lockfile.RefLegacy, Name: names.Legacy(names.LegacyName{Scope: "acme", Name: "widgets"}).Escaped()}
	v, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	vid := names.NewVersionID(v, target.Luau)
	_ = pn

	fs, tgt, err := src.Download(ref, vid)
	require.NoError(t, err)
	assert.Equal(t, target.Luau, tgt.Kind)
	assert.Equal(t, "src/init.lua", tgt.Lib)
	assert.Contains(t, fs, "src/init.lua")
}

func TestDownloadSkipsInferenceWithoutScript(t *testing.T) {
	archive := zipFixture(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	src := New(nil, store, server.Client(), "")
	src.config = source.Config{APIURL: server.URL}

	ref := lockfile.PkgRef{Kind: lockfile.RefLegacy, Name: names.Legacy(names.LegacyName{Scope: "acme", Name: "widgets"}).Escaped()}
	v, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	vid := names.NewVersionID(v, target.Luau)

	_, tgt, err := src.Download(ref, vid)
	require.NoError(t, err)
	assert.Equal(t, "", tgt.Lib)
}
