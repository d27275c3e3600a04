// Package source defines the uniform contract (C5) that every package
// origin — primary index, legacy index, git revision, workspace member
// — implements, plus the shared primary/legacy index-file format they
// read and write through the git-backed index reader (C3).
package source

import (
	"strings"
	"time"

	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/packagefs"
	"github.com/wisp-pm/wisp/internal/target"
)

// Source is the contract every package origin implements (§4.3).
type Source interface {
	// Refresh brings local state up to date with upstream. Idempotent.
	Refresh() error

	// Resolve returns every version_id satisfying spec, keyed by
	// version_id, against a project targeting projectTarget.
	Resolve(spec manifest.Specifier, projectTarget target.Kind) (names.PackageNames, map[names.VersionID]Candidate, error)

	// Download materializes one resolved reference into a PackageFS
	// plus the package's concrete target metadata.
	Download(ref lockfile.PkgRef, version names.VersionID) (packagefs.PackageFS, target.Target, error)
}

// Candidate is one version_id's resolve-time result: the reference the
// resolver records in the lockfile graph, plus the package's own
// dependency map (alias -> specifier, dependency kind) that the
// resolver must continue walking (§4.6 step 4).
type Candidate struct {
	Ref          lockfile.PkgRef
	Dependencies map[string]DependencyEntry
}

// DependencyEntry pairs a dependency specifier with its classification
// as declared by the depended-upon package itself.
type DependencyEntry struct {
	Specifier manifest.Specifier
	Kind      manifest.DependencyKind
}

// IndexEntry is one version_id's record inside a primary or legacy
// index's per-package file (§4.3.1, §3 "Manifest").
type IndexEntry struct {
	Version      string                     `toml:"version"`
	Target       target.Target              `toml:"target"`
	TargetKind   target.Kind                `toml:"target_kind"`
	PublishedAt  time.Time                  `toml:"published_at"`
	Description  string                     `toml:"description,omitempty"`
	License      string                     `toml:"license,omitempty"`
	Authors      []string                   `toml:"authors,omitempty"`
	Repository   string                     `toml:"repository,omitempty"`
	Dependencies map[string]IndexDependency `toml:"dependencies,omitempty"`
}

// IndexDependency is one dependency edge as recorded in a published
// index entry: a specifier plus its standard/peer/dev classification.
type IndexDependency struct {
	Specifier manifest.Specifier     `toml:"specifier"`
	Kind      manifest.DependencyKind `toml:"kind"`
}

// IndexFile is the full, ordered sequence of entries for one package
// path (§3 invariants: "entries are ordered by (target, version)").
type IndexFile struct {
	Entries []IndexEntry `toml:"entries"`
}

// ScopeInfo is the owner-id set at "{scope}/scope.info" (§4.5 step 2).
type ScopeInfo struct {
	Owners []string `toml:"owners"`
}

// Config is the index repository's root "config" file (§6).
type Config struct {
	APIURL              string            `toml:"api_url"`
	DownloadURLTemplate string            `toml:"download_url_template,omitempty"`
	OAuthClientID       string            `toml:"oauth_client_id,omitempty"`
	Features            map[string]bool   `toml:"features,omitempty"`
}

// DownloadURL computes the archive URL for one package version,
// applying Config's template if present, else the default path form
// of §4.3.1.
func (c Config) DownloadURL(scope, name, version, targetKind string) string {
	tmpl := c.DownloadURLTemplate
	if tmpl == "" {
		tmpl = "{API_URL}/v0/packages/{PACKAGE_SCOPE}/{PACKAGE_NAME}/{PACKAGE_VERSION}/" + targetKind
	}
	replacer := strings.NewReplacer(
		"{API_URL}", c.APIURL,
		"{PACKAGE_SCOPE}", scope,
		"{PACKAGE_NAME}", name,
		"{PACKAGE_VERSION}", version,
	)
	return replacer.Replace(tmpl)
}
