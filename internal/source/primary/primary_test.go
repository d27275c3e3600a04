package primary

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
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

func stubIndexFile(lib string) func(scope, name string) (*source.IndexFile, error) {
	return func(scope, name string) (*source.IndexFile, error) {
		return &source.IndexFile{
			Entries: []source.IndexEntry{
				{
					Version:    "1.0.0",
					Target:     target.Target{Kind: target.Luau, Lib: lib},
					TargetKind: target.Luau,
				},
			},
		}, nil
	}
}

func archiveFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "src", Typeflag: tar.TypeDir, Mode: 0o755}))
	content := []byte("return {}\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "src/init.luau", Typeflag: tar.TypeReg, Size: int64(len(content)), Mode: 0o644}))
	_, err := tw.Write(content)
	require.NoError(t, err)

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestDownloadExtractsArchiveIntoCAS(t *testing.T) {
	archive := archiveFixture(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	src := New(nil, store, server.Client())
	src.config = source.Config{APIURL: server.URL}
	src.readIndexFile = stubIndexFile("src/init.luau")

	pn, err := names.ParsePackageName("acme/widgets")
	require.NoError(t, err)
	ref := lockfile.PkgRef{Kind: lockfile.RefPrimary, Name: names.Primary(pn).Escaped()}
	v, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	vid := names.NewVersionID(v, target.Luau)

	fs, tgt, err := src.Download(ref, vid)
	require.NoError(t, err)
	assert.Equal(t, target.Luau, tgt.Kind)
	assert.Equal(t, "src/init.luau", tgt.Lib)
	assert.Contains(t, fs, "src")
	assert.Contains(t, fs, "src/init.luau")
}

func TestDownloadRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	src := New(nil, store, server.Client())
	src.config = source.Config{APIURL: server.URL}
	src.readIndexFile = stubIndexFile("src/init.luau")

	pn, err := names.ParsePackageName("acme/widgets")
	require.NoError(t, err)
	ref := lockfile.PkgRef{Kind: lockfile.RefPrimary, Name: names.Primary(pn).Escaped()}
	v, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	vid := names.NewVersionID(v, target.Luau)

	_, _, err = src.Download(ref, vid)
	assert.Error(t, err)
}

func TestDownloadCachesSnapshotAcrossCalls(t *testing.T) {
	archive := archiveFixture(t)

	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	src := New(nil, store, server.Client())
	src.config = source.Config{APIURL: server.URL}
	src.readIndexFile = stubIndexFile("src/init.luau")

	pn, err := names.ParsePackageName("acme/widgets")
	require.NoError(t, err)
	ref := lockfile.PkgRef{Kind: lockfile.RefPrimary, Name: names.Primary(pn).Escaped()}
	v, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	vid := names.NewVersionID(v, target.Luau)

	_, _, err = src.Download(ref, vid)
	require.NoError(t, err)
	assert.Equal(t, 1, fetches)

	fs, tgt, err := src.Download(ref, vid)
	require.NoError(t, err)
	assert.Equal(t, 1, fetches, "second download should be served from the snapshot cache")
	assert.Equal(t, "src/init.luau", tgt.Lib)
	assert.Contains(t, fs, "src/init.luau")
}

func TestDownloadMissingIndexEntryIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not fetch the archive when the index entry is missing")
	}))
	defer server.Close()

	store, err := cas.Open(t.TempDir())
	require.NoError(t, err)

	src := New(nil, store, server.Client())
	src.config = source.Config{APIURL: server.URL}
	src.readIndexFile = func(scope, name string) (*source.IndexFile, error) {
		return &source.IndexFile{}, nil
	}

	pn, err := names.ParsePackageName("acme/widgets")
	require.NoError(t, err)
	ref := lockfile.PkgRef{Kind: lockfile.RefPrimary, Name: names.Primary(pn).Escaped()}
	v, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	vid := names.NewVersionID(v, target.Luau)

	_, _, err = src.Download(ref, vid)
	assert.Error(t, err)
}
