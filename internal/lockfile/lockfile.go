// Package lockfile implements the resolved dependency graph persisted
// alongside a manifest: every package actually selected, its exact
// source reference, and the edges between them (§5, §8).
package lockfile

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/target"
)

const FileName = "wisp.lock"

// CurrentVersion is bumped whenever the on-disk schema changes in a
// way old readers cannot tolerate (§5: "a lockfile version mismatch
// forces a full re-resolve").
const CurrentVersion = 1

// PkgRefKind discriminates where a locked node's content actually
// comes from, independent of how it was specified.
type PkgRefKind int

const (
	RefPrimary PkgRefKind = iota
	RefLegacy
	RefGit
	RefWorkspace
)

// PkgRef is the resolved, content-addressable pointer a locked node
// downloads from.
type PkgRef struct {
	Kind PkgRefKind `toml:"kind"`

	// Name is the canonical escaped package name ("scope+name"), set
	// for every kind; download and container-path computation need it
	// even though the specifier already pinned it during resolve.
	Name string `toml:"name,omitempty"`

	// Primary / Legacy
	Index   string `toml:"index,omitempty"`
	Source  string `toml:"source,omitempty"` // index repository URL
	Hash    string `toml:"hash,omitempty"`    // CAS content hash of the package archive

	// Git
	RepoURL string `toml:"repo,omitempty"`
	Rev     string `toml:"rev,omitempty"` // resolved commit sha

	// Workspace
	Path string `toml:"path,omitempty"`
}

// Node is one resolved package version in the graph: its content
// reference, its own dependency edges (by alias), its dependency kind
// relative to its nearest direct ancestor, and whether any direct
// dependency in the manifest resolves straight to it.
type Node struct {
	PkgRef       PkgRef                `toml:"pkg_ref"`
	Dependencies map[string]string     `toml:"dependencies,omitempty"` // alias -> "<escaped name>@<escaped VersionID>" key into Graph
	Ty           manifest.DependencyKind `toml:"ty"`
	Direct       bool                  `toml:"direct"`

	// Alias is the manifest alias this node was reached through, set
	// only when Direct.
	Alias string `toml:"alias,omitempty"`

	// Specifier, when Direct, is the exact manifest specifier this node
	// satisfies; used by the lockfile-reuse check of §8 property 2.
	Specifier string `toml:"specifier,omitempty"`
}

// Lockfile is the full resolved graph plus enough manifest identity to
// detect staleness without re-resolving.
type Lockfile struct {
	LockfileVersion int    `toml:"lockfile_version"`
	Name            string `toml:"name"`
	Version         string `toml:"version"`
	Target          target.Kind `toml:"target"`

	// Overrides mirrors the manifest's raw override keys, used to
	// detect when an override changed without touching a specifier
	// (§8 property 2).
	Overrides map[string]string `toml:"overrides,omitempty"`

	// Graph maps escaped package name -> escaped VersionID -> Node.
	Graph map[string]map[string]Node `toml:"graph"`
}

// New builds an empty lockfile stamped with the manifest's identity.
func New(m *manifest.Manifest, overrides map[string]string) *Lockfile {
	return &Lockfile{
		LockfileVersion: CurrentVersion,
		Name:            m.Name,
		Version:         m.VersionRaw,
		Target:          m.Target.Kind,
		Overrides:       overrides,
		Graph:           make(map[string]map[string]Node),
	}
}

// Put inserts or replaces a node for (name, version).
func (l *Lockfile) Put(name names.PackageNames, version names.VersionID, n Node) {
	key := name.Escaped()
	if l.Graph[key] == nil {
		l.Graph[key] = make(map[string]Node)
	}
	l.Graph[key][version.Escaped()] = n
}

// Get looks up a node by escaped name and version key.
func (l *Lockfile) Get(nameKey, versionKey string) (Node, bool) {
	versions, ok := l.Graph[nameKey]
	if !ok {
		return Node{}, false
	}
	n, ok := versions[versionKey]
	return n, ok
}

// Load reads and decodes a lockfile from path. A version mismatch is
// reported as a Resolution error so callers can treat it as "must
// re-resolve" rather than a hard failure.
func Load(path string) (*Lockfile, error) {
	const op = errors.Op("lockfile.Load")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(op, errors.InputValidation, path, err)
	}
	var l Lockfile
	if err := toml.Unmarshal(data, &l); err != nil {
		return nil, errors.E(op, errors.InputValidation, err)
	}
	if l.LockfileVersion != CurrentVersion {
		return nil, errors.E(op, errors.Resolution,
			fmt.Sprintf("lockfile version %d does not match current version %d", l.LockfileVersion, CurrentVersion))
	}
	return &l, nil
}

// Save writes the lockfile in a canonical, sorted form so repeated
// resolutions of an unchanged graph produce byte-identical output.
func (l *Lockfile) Save(path string) error {
	const op = errors.Op("lockfile.Save")

	data, err := toml.Marshal(l)
	if err != nil {
		return errors.E(op, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// SortedPackageNames returns the graph's top-level keys in sorted order,
// for deterministic iteration (e.g. toposort input construction).
func (l *Lockfile) SortedPackageNames() []string {
	keys := make([]string, 0, len(l.Graph))
	for k := range l.Graph {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MatchesManifest reports whether the lockfile's stamped identity
// still matches the manifest's, i.e. whether it is even eligible for
// reuse before the deeper per-specifier check of §8 property 2.
func (l *Lockfile) MatchesManifest(m *manifest.Manifest, overrides map[string]string) bool {
	if l.Name != m.Name || l.Version != m.VersionRaw || l.Target != m.Target.Kind {
		return false
	}
	if len(l.Overrides) != len(overrides) {
		return false
	}
	for k, v := range overrides {
		if l.Overrides[k] != v {
			return false
		}
	}
	return true
}
