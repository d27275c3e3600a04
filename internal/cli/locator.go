package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/credential"
	"github.com/wisp-pm/wisp/internal/gitindex"
	"github.com/wisp-pm/wisp/internal/linker"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/resolver"
	"github.com/wisp-pm/wisp/internal/source"
	"github.com/wisp-pm/wisp/internal/source/gitrev"
	"github.com/wisp-pm/wisp/internal/source/legacy"
	"github.com/wisp-pm/wisp/internal/source/primary"
	"github.com/wisp-pm/wisp/internal/source/workspace"
)

// defaultIndexAlias is the index name used when a specifier omits one.
const defaultIndexAlias = "default"

// SourceLocator resolves dependency specifiers to Source instances,
// caching one instance per distinct origin so a run refreshes each
// origin at most once (§4.6 "a mutable set of sources that have
// already been refreshed this run").
type SourceLocator struct {
	ProjectRoot string
	CacheDir    string
	Store       *cas.Store
	Manifest    *manifest.Manifest
	Credential  credential.Provider
	HTTPClient  *http.Client

	mu      sync.Mutex
	sources map[string]source.Source
}

func NewSourceLocator(projectRoot, cacheDir string, store *cas.Store, m *manifest.Manifest, cred credential.Provider) *SourceLocator {
	return &SourceLocator{
		ProjectRoot: projectRoot,
		CacheDir:    cacheDir,
		Store:       store,
		Manifest:    m,
		Credential:  cred,
		HTTPClient:  http.DefaultClient,
		sources:     make(map[string]source.Source),
	}
}

// Get implements resolver.Locator.
func (l *SourceLocator) Get(spec manifest.Specifier) (source.Source, string, error) {
	switch spec.Kind {
	case manifest.SpecifierPrimary:
		alias := indexAlias(spec.Index)
		url, ok := l.Manifest.Indices[alias]
		if !ok {
			return nil, "", fmt.Errorf("no primary index named %q declared in manifest", alias)
		}
		key := "primary:" + url
		return l.cached(key, func() (source.Source, error) {
			idx := gitindex.Open(l.indexPath(url), url, l.Credential)
			return primary.New(idx, l.Store, l.HTTPClient), nil
		})

	case manifest.SpecifierLegacy:
		alias := indexAlias(spec.Index)
		url, ok := l.Manifest.WallyIndices[alias]
		if !ok {
			return nil, "", fmt.Errorf("no legacy index named %q declared in manifest", alias)
		}
		key := "legacy:" + url
		return l.cached(key, func() (source.Source, error) {
			idx := gitindex.Open(l.indexPath(url), url, l.Credential)
			scriptPath := l.Manifest.Scripts["sourcemap_generator"]
			return legacy.New(idx, l.Store, l.HTTPClient, scriptPath), nil
		})

	case manifest.SpecifierGit:
		key := "git:" + spec.RepoURL
		return l.cached(key, func() (source.Source, error) {
			return gitrev.New(spec.RepoURL, l.CacheDir, l.Credential, l.Store), nil
		})

	case manifest.SpecifierWorkspace:
		key := "workspace"
		return l.cached(key, func() (source.Source, error) {
			return workspace.New(filepath.Dir(l.ProjectRoot)), nil
		})
	}
	return nil, "", fmt.Errorf("unrecognized specifier kind")
}

func (l *SourceLocator) cached(key string, build func() (source.Source, error)) (source.Source, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.sources[key]; ok {
		return s, key, nil
	}
	s, err := build()
	if err != nil {
		return nil, "", err
	}
	l.sources[key] = s
	return s, key, nil
}

func (l *SourceLocator) indexPath(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(l.CacheDir, "index-"+hex.EncodeToString(sum[:])[:16])
}

func indexAlias(s string) string {
	if s == "" {
		return defaultIndexAlias
	}
	return s
}

// GetForRef implements linker.Locator, mapping a resolved PkgRef back
// to the Source that can download it without re-deriving a specifier.
func (l *SourceLocator) GetForRef(ref lockfile.PkgRef) (source.Source, error) {
	switch ref.Kind {
	case lockfile.RefPrimary:
		key := "primary:" + ref.Source
		s, _, err := l.cached(key, func() (source.Source, error) {
			idx := gitindex.Open(l.indexPath(ref.Source), ref.Source, l.Credential)
			if err := idx.Refresh(); err != nil {
				return nil, err
			}
			return primary.New(idx, l.Store, l.HTTPClient), nil
		})
		return s, err
	case lockfile.RefLegacy:
		key := "legacy:" + ref.Source
		s, _, err := l.cached(key, func() (source.Source, error) {
			idx := gitindex.Open(l.indexPath(ref.Source), ref.Source, l.Credential)
			if err := idx.Refresh(); err != nil {
				return nil, err
			}
			scriptPath := l.Manifest.Scripts["sourcemap_generator"]
			return legacy.New(idx, l.Store, l.HTTPClient, scriptPath), nil
		})
		return s, err
	case lockfile.RefGit:
		key := "git:" + ref.RepoURL
		s, _, err := l.cached(key, func() (source.Source, error) {
			return gitrev.New(ref.RepoURL, l.CacheDir, l.Credential, l.Store), nil
		})
		return s, err
	case lockfile.RefWorkspace:
		key := "workspace"
		s, _, err := l.cached(key, func() (source.Source, error) {
			return workspace.New(filepath.Dir(l.ProjectRoot)), nil
		})
		return s, err
	}
	return nil, fmt.Errorf("unrecognized pkg ref kind")
}

// ensure interface satisfaction at compile time.
var (
	_ resolver.Locator = (*SourceLocator)(nil)
	_ linker.Locator   = (*SourceLocator)(nil)
)

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
