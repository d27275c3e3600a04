package cli

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/manifest"
)

func TestMatchesIncludes(t *testing.T) {
	includes := []string{"src/*.luau", "README.md"}
	assert.True(t, matchesIncludes("src/init.luau", includes))
	assert.True(t, matchesIncludes("README.md", includes))
	assert.False(t, matchesIncludes("secrets.env", includes))
}

func readTarGz(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	out := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = content
	}
	return out
}

func TestBuildArchiveIncludesManifestAndMatchedFiles(t *testing.T) {
	dir := t.TempDir()
	manifestContent := "name = \"acme/widgets\"\nversion = \"1.0.0\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(manifestContent), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "init.luau"), []byte("return {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.env"), []byte("TOKEN=x"), 0o644))

	m := &manifest.Manifest{Name: "acme/widgets", VersionRaw: "1.0.0", Includes: []string{"src/*.luau"}}

	buf, err := buildArchive(dir, m)
	require.NoError(t, err)

	files := readTarGz(t, buf.Bytes())
	assert.Contains(t, files, manifest.FileName)
	assert.Contains(t, files, "src/init.luau")
	assert.NotContains(t, files, "secrets.env")
}

func TestUploadArchiveSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/packages", r.URL.Path)
		assert.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("acme/widgets@1.0.0"))
	}))
	defer server.Close()

	result, err := uploadArchive(server.URL, "sekret", []byte("archive bytes"))
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets@1.0.0", result)
}

func TestUploadArchiveErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("version exists"))
	}))
	defer server.Close()

	_, err := uploadArchive(server.URL, "", []byte("archive bytes"))
	assert.Error(t, err)
}
