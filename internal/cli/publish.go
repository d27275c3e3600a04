package cli

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wisp-pm/wisp/internal/credential"
	"github.com/wisp-pm/wisp/internal/gitindex"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/source"
)

// newPublishCommand packages the project tree into a .tar.gz archive
// and uploads it to the manifest's named index (§4.5).
func newPublishCommand(streams Streams) *cobra.Command {
	var index string

	c := &cobra.Command{
		Use:   "publish",
		Short: "Publish the package to a registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(streams, index)
		},
	}
	c.Flags().StringVar(&index, "index", "", "named index to publish to (defaults to \"default\")")
	return c
}

func runPublish(streams Streams, index string) error {
	projectRoot, err := os.Getwd()
	if err != nil {
		return err
	}
	m, err := manifest.Load(filepath.Join(projectRoot, manifest.FileName))
	if err != nil {
		return err
	}

	alias := indexAlias(index)
	url, ok := m.Indices[alias]
	if !ok {
		return fmt.Errorf("no index named %q declared in manifest", alias)
	}

	cacheDir := filepath.Join(projectRoot, cacheDirName)
	if err := ensureDir(cacheDir); err != nil {
		return err
	}
	token := os.Getenv("WISP_TOKEN")
	idx := gitindex.Open(filepath.Join(cacheDir, "index-"+alias), url, credential.Store{Token: token})
	if err := idx.Refresh(); err != nil {
		return err
	}
	cfg, err := source.ReadConfig(idx)
	if err != nil {
		return err
	}

	archive, err := buildArchive(projectRoot, m)
	if err != nil {
		return err
	}
	fmt.Fprintf(streams.Out, "publishing %s@%s (%d bytes)\n", m.Name, m.VersionRaw, archive.Len())

	result, err := uploadArchive(cfg.APIURL, token, archive.Bytes())
	if err != nil {
		return err
	}
	fmt.Fprintf(streams.Out, "published %s\n", result)
	return nil
}

// buildArchive packages the manifest plus every file matched by
// Includes into a gzip-tar archive, mirroring the shape the registry's
// extractArchive expects.
func buildArchive(projectRoot string, m *manifest.Manifest) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	manifestData, err := os.ReadFile(filepath.Join(projectRoot, manifest.FileName))
	if err != nil {
		return nil, err
	}
	if err := writeArchiveEntry(tw, manifest.FileName, manifestData); err != nil {
		return nil, err
	}

	seen := map[string]bool{manifest.FileName: true}
	err = filepath.WalkDir(projectRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(projectRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if seen[rel] || !matchesIncludes(rel, m.Includes) {
			return nil
		}
		seen[rel] = true
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return writeArchiveEntry(tw, rel, data)
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func matchesIncludes(rel string, includes []string) bool {
	for _, pattern := range includes {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		dir := pattern
		if n := len(dir); n > 0 && dir[n-1] == '/' {
			dir = dir[:n-1]
		}
		if len(rel) > len(dir) && rel[:len(dir)+1] == dir+"/" {
			return true
		}
	}
	return false
}

func writeArchiveEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// uploadArchive POSTs the archive to the registry's publish endpoint
// as a multipart form, matching handler.publish's expected field name.
func uploadArchive(apiURL, token string, archive []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("archive", "package.tar.gz")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(archive); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, apiURL+"/v0/packages", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("publish failed: %s: %s", resp.Status, string(out))
	}
	return string(out), nil
}
