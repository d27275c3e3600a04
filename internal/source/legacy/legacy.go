// Package legacy implements the legacy-index package source (§4.3.2):
// same index-file structure as the primary source, but a zip archive
// format and no declared library export — inferred by running the
// external sourcemap-generator script over the extracted tree.
package legacy

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/gitindex"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/packagefs"
	"github.com/wisp-pm/wisp/internal/scripts"
	"github.com/wisp-pm/wisp/internal/source"
	"github.com/wisp-pm/wisp/internal/target"
)

// fixedTargetKind is the synthesized target for every legacy package,
// since legacy manifests never declare one (§4.3.2).
const fixedTargetKind = target.Luau

// Source is the legacy-index implementation of source.Source.
type Source struct {
	Index          *gitindex.Index
	Store          *cas.Store
	Client         *http.Client
	ScriptRunner   scripts.Runner
	SourcemapScriptPath string

	config source.Config
}

func New(idx *gitindex.Index, store *cas.Store, client *http.Client, sourcemapScriptPath string) *Source {
	if client == nil {
		client = http.DefaultClient
	}
	return &Source{Index: idx, Store: store, Client: client, SourcemapScriptPath: sourcemapScriptPath}
}

func (s *Source) Refresh() error {
	const op = errors.Op("legacy.Refresh")
	if err := s.Index.Refresh(); err != nil {
		return errors.E(op, err)
	}
	cfg, err := source.ReadConfig(s.Index)
	if err != nil {
		return errors.E(op, err)
	}
	s.config = cfg
	return nil
}

func (s *Source) Resolve(spec manifest.Specifier, projectTarget target.Kind) (names.PackageNames, map[names.VersionID]source.Candidate, error) {
	const op = errors.Op("legacy.Resolve")

	pn, err := spec.PackageName()
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, errors.InputValidation, err)
	}

	file, err := source.ReadPackageFile(s.Index, pn.Legacy.Scope, pn.Legacy.Name)
	if err != nil {
		return names.PackageNames{}, nil, errors.E(op, err)
	}
	if file == nil {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution,
			fmt.Sprintf("legacy package %s not found in index", pn))
	}

	out := make(map[names.VersionID]source.Candidate)
	for _, entry := range file.Entries {
		v, err := semver.NewVersion(entry.Version)
		if err != nil {
			continue
		}
		if !spec.VersionReq.Check(v) {
			continue
		}
		if !projectTarget.IsCompatibleWith(fixedTargetKind) {
			continue
		}

		vid := names.NewVersionID(v, fixedTargetKind)
		deps := make(map[string]source.DependencyEntry, len(entry.Dependencies))
		for alias, d := range entry.Dependencies {
			deps[alias] = source.DependencyEntry{Specifier: d.Specifier, Kind: d.Kind}
		}
		out[vid] = source.Candidate{
			Ref: lockfile.PkgRef{
				Kind:   lockfile.RefLegacy,
				Name:   pn.Escaped(),
				Index:  spec.Index,
				Source: s.Index.URL(),
			},
			Dependencies: deps,
		}
	}

	if len(out) == 0 {
		return names.PackageNames{}, nil, errors.E(op, errors.Resolution,
			fmt.Sprintf("no version of legacy package %s satisfies %s", pn, spec.VersionReqRaw))
	}
	return pn, out, nil
}

func (s *Source) Download(ref lockfile.PkgRef, version names.VersionID) (packagefs.PackageFS, target.Target, error) {
	const op = errors.Op("legacy.Download")

	pn, err := names.FromEscaped(names.KindLegacy, ref.Name)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.InputValidation, err)
	}

	url := s.config.DownloadURL(pn.Legacy.Scope, pn.Legacy.Name, version.Version.String(), fixedTargetKind.String())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, target.Target{}, errors.E(op, errors.Download,
			fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, url))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Download, err)
	}

	fs := packagefs.New()
	extractDir, err := os.MkdirTemp("", "legacy-extract-*")
	if err != nil {
		return nil, target.Target{}, errors.E(op, err)
	}
	defer os.RemoveAll(extractDir)

	for _, f := range zr.File {
		cleanPath := path.Clean(f.Name)
		if f.FileInfo().IsDir() {
			fs.AddDirectory(cleanPath)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, target.Target{}, errors.E(op, errors.Download, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, target.Target{}, errors.E(op, errors.Download, err)
		}

		h, _, err := s.Store.Put(bytes.NewReader(data))
		if err != nil {
			return nil, target.Target{}, errors.E(op, errors.Download, err)
		}
		fs.AddFile(cleanPath, h)

		onDisk := filepath.Join(extractDir, filepath.FromSlash(cleanPath))
		if err := os.MkdirAll(filepath.Dir(onDisk), 0o755); err != nil {
			return nil, target.Target{}, errors.E(op, err)
		}
		if err := os.WriteFile(onDisk, data, 0o644); err != nil {
			return nil, target.Target{}, errors.E(op, err)
		}
	}

	lib, err := s.inferLibraryExport(extractDir)
	if err != nil {
		return nil, target.Target{}, errors.E(op, errors.Link, err)
	}

	return fs, target.Target{Kind: fixedTargetKind, Lib: lib}, nil
}

// inferLibraryExport runs the sourcemap-generator script over the
// extracted tree and picks the first .lua/.luau entry (§4.3.2).
func (s *Source) inferLibraryExport(dir string) (string, error) {
	if s.SourcemapScriptPath == "" {
		return "", nil
	}

	out, err := s.ScriptRunner.Run(context.Background(), s.SourcemapScriptPath, dir)
	if err != nil {
		return "", err
	}

	var paths []string
	if err := json.Unmarshal(out, &paths); err != nil {
		return "", fmt.Errorf("sourcemap generator produced invalid JSON: %w", err)
	}
	for _, p := range paths {
		if strings.HasSuffix(p, ".lua") || strings.HasSuffix(p, ".luau") {
			return p, nil
		}
	}
	return "", nil
}
