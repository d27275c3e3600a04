package app

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/registry/blobstore"
	"github.com/wisp-pm/wisp/internal/registry/search"
	"github.com/wisp-pm/wisp/internal/source"
)

// maxArchiveSize bounds the accepted upload per §7 "oversize" archive
// validation failure.
const maxArchiveSize = 32 << 20

// forbiddenDirs lists directories an archive is never allowed to
// contain, per §4.5 step 1 "forbidden directory".
var forbiddenDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	".wisp":         true,
	"packages":      true,
}

// PublishResult is returned on a successful publish.
type PublishResult struct {
	Name    names.PackageNames
	Version names.VersionID
}

// Publish runs the full pipeline of §4.5 against one uploaded
// .tar.gz archive, authenticated as uploaderID.
func (a *App) Publish(ctx context.Context, uploaderID string, archive []byte) (PublishResult, error) {
	const op = errors.Op("app.Publish")

	if len(archive) > maxArchiveSize {
		return PublishResult{}, errors.E(op, errors.InputValidation, "archive exceeds maximum size")
	}

	files, m, readme, err := extractArchive(archive)
	if err != nil {
		return PublishResult{}, errors.E(op, errors.InputValidation, err)
	}
	if err := validateManifestForPublish(m); err != nil {
		return PublishResult{}, errors.E(op, errors.InputValidation, err)
	}
	if err := validateArchiveIncludes(files, m); err != nil {
		return PublishResult{}, errors.E(op, errors.InputValidation, err)
	}

	pn, err := names.ParsePackageName(m.Name)
	if err != nil {
		return PublishResult{}, errors.E(op, errors.InputValidation, err)
	}
	vid := names.NewVersionID(m.Version, m.Target.Kind)

	var entry source.IndexEntry

	lockErr := a.Index.WithLock(func() error {
		owned, createScope, err := a.checkScopeOwnership(pn.Scope, uploaderID)
		if err != nil {
			return errors.E(errors.Publish, err)
		}
		if !owned {
			return errors.E(errors.Forbidden, "scope ownership denied")
		}

		idxFile, err := a.readPackageFileLocked(pn.Scope, pn.Name)
		if err != nil {
			return errors.E(errors.Publish, err)
		}
		if idxFile == nil {
			idxFile = &source.IndexFile{}
		}

		for _, e := range idxFile.Entries {
			if e.Version == vid.Version.String() && e.TargetKind == vid.Target {
				return errors.E(errors.Resolution, "version already exists")
			}
			if sameSemver(e.Version, vid.Version.String()) && !metadataMatches(e, m) {
				return errors.E(errors.InputValidation, "metadata mismatch across targets at the same version")
			}
		}

		entry = indexEntryFromManifest(m)
		idxFile.Entries = append(idxFile.Entries, entry)
		sortIndexEntries(idxFile.Entries)

		data, err := source.EncodePackageFile(idxFile)
		if err != nil {
			return errors.E(errors.Publish, err)
		}

		var scopeInfoUpdate func() error
		if createScope {
			scopeInfoUpdate = func() error {
				info := source.ScopeInfo{Owners: []string{uploaderID}}
				raw, err := source.EncodeScopeInfo(&info)
				if err != nil {
					return err
				}
				_, err = a.Index.WriteFileAndPushLocked([]string{pn.Scope, "scope.info"}, raw,
					fmt.Sprintf("claim scope %s", pn.Scope), a.Config.CommitterName, a.Config.CommitterEmail)
				return err
			}
		}
		if scopeInfoUpdate != nil {
			if err := scopeInfoUpdate(); err != nil {
				return errors.E(errors.Publish, err)
			}
		}

		_, err = a.Index.WriteFileAndPushLocked([]string{pn.Scope, pn.Name}, data,
			fmt.Sprintf("publish %s@%s", pn.String(), vid.String()), a.Config.CommitterName, a.Config.CommitterEmail)
		return err
	})
	if lockErr != nil {
		return PublishResult{}, errors.E(op, lockErr)
	}

	archiveKey := blobstore.ArchiveKey(pn.Escaped(), vid.Escaped())
	if err := a.Blobs.Put(ctx, archiveKey, bytes.NewReader(archive)); err != nil {
		return PublishResult{}, errors.E(op, errors.Publish,
			"index commit succeeded but archive upload failed; reconciliation required", err)
	}
	if readme != nil {
		readmeKey := blobstore.ReadmeKey(pn.Escaped(), vid.Escaped())
		if err := a.Blobs.Put(ctx, readmeKey, bytes.NewReader(readme)); err != nil {
			return PublishResult{}, errors.E(op, errors.Publish,
				"readme upload failed after archive upload", err)
		}
	}

	if a.Search != nil {
		_ = a.Search.Put(search.Document{
			ID:          pn.Escaped(),
			Scope:       pn.Scope,
			Name:        pn.Name,
			Description: m.Description,
			PublishedAt: time.Now(),
		})
	}

	return PublishResult{Name: names.Primary(pn), Version: vid}, nil
}

// validateArchiveIncludes rejects any archive member not covered by
// the manifest's own includes set (§3 "includes: a set listing files
// permitted in published archives"). The manifest itself is always
// permitted.
func validateArchiveIncludes(files map[string][]byte, m *manifest.Manifest) error {
	for name := range files {
		if name == manifest.FileName {
			continue
		}
		matched := false
		for _, pattern := range m.Includes {
			if ok, _ := path.Match(pattern, name); ok {
				matched = true
				break
			}
			if strings.HasPrefix(name, strings.TrimSuffix(pattern, "/")+"/") {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("archive contains file %q not covered by includes", name)
		}
	}
	return nil
}

// checkScopeOwnership reads scope.info (if present) and reports
// whether uploaderID already owns the scope. A missing scope.info
// means the scope is new: ownership is granted and createScope is
// true so the caller writes the claiming file.
func (a *App) checkScopeOwnership(scope, uploaderID string) (owned, createScope bool, err error) {
	info, err := a.readScopeInfoLocked(scope)
	if err != nil {
		return false, false, err
	}
	if info == nil {
		return true, true, nil
	}
	for _, o := range info.Owners {
		if o == uploaderID {
			return true, false, nil
		}
	}
	return false, false, nil
}

func (a *App) readScopeInfoLocked(scope string) (*source.ScopeInfo, error) {
	data, err := a.Index.ReadFileLocked([]string{scope, "scope.info"})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var info source.ScopeInfo
	if err := decodeToml(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (a *App) readPackageFileLocked(scope, name string) (*source.IndexFile, error) {
	data, err := a.Index.ReadFileLocked([]string{scope, name})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var f source.IndexFile
	if err := decodeToml(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// extractArchive parses a gzip-tar archive (§4.1 "Streaming
// insertion" grounds the single-pass read style used here), locating
// the manifest and rejecting forbidden or oversize entries.
func extractArchive(archive []byte) (files map[string][]byte, m *manifest.Manifest, readme []byte, err error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	files = make(map[string][]byte)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("corrupt archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		clean := path.Clean(hdr.Name)
		if strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
			return nil, nil, nil, fmt.Errorf("archive entry escapes root: %s", hdr.Name)
		}
		top := strings.SplitN(clean, "/", 2)[0]
		if forbiddenDirs[top] {
			return nil, nil, nil, fmt.Errorf("archive contains forbidden directory: %s", top)
		}
		if hdr.Size > maxArchiveSize {
			return nil, nil, nil, fmt.Errorf("archive entry %s exceeds maximum size", hdr.Name)
		}
		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
		if err != nil {
			return nil, nil, nil, err
		}
		files[clean] = data
	}

	raw, ok := files[manifest.FileName]
	if !ok {
		return nil, nil, nil, fmt.Errorf("archive is missing %s", manifest.FileName)
	}
	parsed, err := manifest.Parse(raw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid manifest: %w", err)
	}

	for name, data := range files {
		if strings.EqualFold(path.Base(name), "readme.md") {
			readme = data
			break
		}
	}
	return files, parsed, readme, nil
}

// validateManifestForPublish applies the remaining §4.5 step 1 checks
// beyond basic manifest parsing: exports present, dependency sources
// all resolvable kinds.
func validateManifestForPublish(m *manifest.Manifest) error {
	if err := m.Target.ValidatePublish(); err != nil {
		return err
	}
	direct, err := m.DirectDependencies()
	if err != nil {
		return err
	}
	for _, d := range direct {
		switch d.Specifier.Kind {
		case manifest.SpecifierPrimary, manifest.SpecifierLegacy, manifest.SpecifierGit, manifest.SpecifierWorkspace:
		default:
			return fmt.Errorf("dependency %q has an invalid source kind", d.Alias)
		}
	}
	return nil
}

func indexEntryFromManifest(m *manifest.Manifest) source.IndexEntry {
	deps := make(map[string]source.IndexDependency)
	if direct, err := m.DirectDependencies(); err == nil {
		for _, d := range direct {
			deps[d.Alias] = source.IndexDependency{Specifier: d.Specifier, Kind: d.Kind}
		}
	}
	return source.IndexEntry{
		Version:      m.VersionRaw,
		Target:       m.Target,
		TargetKind:   m.Target.Kind,
		PublishedAt:  time.Now(),
		Description:  m.Description,
		License:      m.License,
		Authors:      m.Authors,
		Repository:   m.Repository,
		Dependencies: deps,
	}
}

func sameSemver(a, b string) bool {
	va, err1 := semver.NewVersion(a)
	vb, err2 := semver.NewVersion(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return va.Equal(vb)
}

func metadataMatches(e source.IndexEntry, m *manifest.Manifest) bool {
	return e.Description == m.Description && e.License == m.License &&
		e.Repository == m.Repository && stringSlicesEqual(e.Authors, m.Authors)
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortIndexEntries(entries []source.IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TargetKind != entries[j].TargetKind {
			return entries[i].TargetKind < entries[j].TargetKind
		}
		vi, erri := semver.NewVersion(entries[i].Version)
		vj, errj := semver.NewVersion(entries[j].Version)
		if erri != nil || errj != nil {
			return entries[i].Version < entries[j].Version
		}
		return vi.Compare(vj) < 0
	})
}
