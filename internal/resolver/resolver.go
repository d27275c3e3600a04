// Package resolver implements the dependency resolution algorithm of
// §4.6 (C6): reconciling a previous lockfile against a manifest,
// walking the mixed-source graph breadth-first, and emitting a
// deterministic lockfile graph.
package resolver

import (
	"fmt"
	"sort"

	"github.com/philopon/go-toposort"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/source"
)

// Locator resolves a dependency specifier to the Source instance that
// serves it, plus a stable key used to deduplicate refreshes across
// the run (e.g. "primary:default", "git:<url>", "workspace").
type Locator interface {
	Get(spec manifest.Specifier) (src source.Source, key string, err error)
}

// workItem is one queued dependency edge awaiting resolution.
type workItem struct {
	alias     string
	specifier manifest.Specifier
	kind      manifest.DependencyKind
	parent    *nodeRef // nil for direct items
	path      []string
	direct    bool
}

// nodeRef identifies one already-placed graph node.
type nodeRef struct {
	name    names.PackageNames
	version names.VersionID
}

func (n nodeRef) nameKey() string    { return n.name.Escaped() }
func (n nodeRef) versionKey() string { return n.version.Escaped() }

// Resolve runs the full algorithm of §4.6 and returns the new lockfile
// graph.
func Resolve(m *manifest.Manifest, prev *lockfile.Lockfile, overridesRaw map[string]string, loc Locator) (*lockfile.Lockfile, error) {
	const op = errors.Op("resolver.Resolve")

	direct, err := m.DirectDependencies()
	if err != nil {
		return nil, errors.E(op, err)
	}
	overrides, err := m.ParsedOverrides()
	if err != nil {
		return nil, errors.E(op, err)
	}

	lock := lockfile.New(m, overridesRaw)
	refreshed := make(map[string]bool)

	directByAlias := make(map[string]manifest.DirectDependency, len(direct))
	for _, d := range direct {
		directByAlias[d.Alias] = d
	}

	retained := make(map[string]bool)
	if prev != nil && prev.MatchesManifest(m, overridesRaw) {
		retainMatchingSubgraphs(prev, lock, directByAlias, retained)
	}

	var queue []workItem
	for _, d := range direct {
		if retained[d.Alias] {
			continue
		}
		queue = append(queue, workItem{
			alias: d.Alias, specifier: d.Specifier, kind: d.Kind,
			path: []string{d.Alias}, direct: true,
		})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		src, key, err := loc.Get(item.specifier)
		if err != nil {
			return nil, errors.E(op, errors.Resolution, item.alias, err)
		}
		if !refreshed[key] {
			if err := src.Refresh(); err != nil {
				return nil, errors.E(op, err)
			}
			refreshed[key] = true
		}

		pkgName, candidates, err := src.Resolve(item.specifier, m.Target.Kind)
		if err != nil {
			return nil, errors.E(op, err)
		}

		vid, candidate, err := selectVersion(lock, pkgName, item.specifier, candidates)
		if err != nil {
			return nil, errors.E(op, errors.Resolution, item.alias, err)
		}
		self := nodeRef{name: pkgName, version: vid}

		kind := item.kind
		if len(item.path) == 1 && kind == manifest.Peer {
			kind = manifest.Standard
		}

		existing, exists := lock.Get(self.nameKey(), self.versionKey())

		if exists {
			if existing.Ty == manifest.Peer && kind == manifest.Standard {
				existing.Ty = manifest.Standard
				lock.Put(pkgName, vid, existing)
			}
		} else {
			node := lockfile.Node{
				PkgRef:       candidate.Ref,
				Dependencies: make(map[string]string),
				Ty:           kind,
				Direct:       item.direct,
			}
			if item.direct {
				node.Alias = item.alias
				node.Specifier = item.specifier.String()
			}
			lock.Put(pkgName, vid, node)

			childAliases := make([]string, 0, len(candidate.Dependencies))
			for alias := range candidate.Dependencies {
				childAliases = append(childAliases, alias)
			}
			sort.Strings(childAliases)

			for _, alias := range childAliases {
				dep := candidate.Dependencies[alias]
				childPath := append(append([]string{}, item.path...), alias)
				childSpec := applyOverride(overrides, m.Overrides, childPath, dep.Specifier)
				parent := self
				queue = append(queue, workItem{
					alias:     alias,
					specifier: childSpec,
					kind:      dep.Kind,
					parent:    &parent,
					path:      childPath,
				})
			}
		}

		if item.parent != nil {
			parentNode, ok := lock.Get(item.parent.nameKey(), item.parent.versionKey())
			if ok {
				parentNode.Dependencies[item.alias] = self.nameKey() + "@" + self.versionKey()
				lock.Put(item.parent.name, item.parent.version, parentNode)
			}
		}
	}

	if err := assertAcyclic(lock); err != nil {
		return nil, errors.E(op, errors.Resolution, err)
	}

	return lock, nil
}

// selectVersion implements §4.6 step 4's "version selection prefers
// reuse" rule: prefer the greatest already-graphed version satisfying
// the specifier; otherwise the greatest candidate.
func selectVersion(lock *lockfile.Lockfile, pkgName names.PackageNames, spec manifest.Specifier, candidates map[names.VersionID]source.Candidate) (names.VersionID, source.Candidate, error) {
	nameKey := pkgName.Escaped()

	if versions, ok := lock.Graph[nameKey]; ok {
		var best names.VersionID
		var bestSet bool
		for vkey := range versions {
			vid, err := names.ParseEscapedVersionID(vkey)
			if err != nil {
				continue
			}
			if !satisfies(spec, vid) {
				continue
			}
			if !bestSet || vid.Compare(best) > 0 {
				best, bestSet = vid, true
			}
		}
		if bestSet {
			if c, ok := candidates[best]; ok {
				return best, c, nil
			}
			return best, source.Candidate{Ref: versions[best.Escaped()].PkgRef}, nil
		}
	}

	var best names.VersionID
	var bestSet bool
	for vid := range candidates {
		if !bestSet || vid.Compare(best) > 0 {
			best, bestSet = vid, true
		}
	}
	if !bestSet {
		return names.VersionID{}, source.Candidate{}, fmt.Errorf("no satisfying version")
	}
	return best, candidates[best], nil
}

func satisfies(spec manifest.Specifier, vid names.VersionID) bool {
	switch spec.Kind {
	case manifest.SpecifierGit, manifest.SpecifierWorkspace:
		return true
	default:
		if spec.HasTarget && vid.Target != spec.Target {
			return false
		}
		return spec.VersionReq.Check(vid.Version)
	}
}

// applyOverride substitutes the specifier at an override key matching
// path, per §4.6 step 4.
func applyOverride(parsed map[string]manifest.OverrideKey, raw map[string]manifest.Specifier, path []string, fallback manifest.Specifier) manifest.Specifier {
	for rawKey, key := range parsed {
		if key.Matches(path) {
			if spec, ok := raw[rawKey]; ok {
				return spec
			}
		}
	}
	return fallback
}

// UnresolvedPeers reports every (name, version) pair still classified
// peer with no standard edge pointing to it, per §4.6 step 5. Callers
// surface these as warnings; the graph itself is left intact.
func UnresolvedPeers(lock *lockfile.Lockfile) []string {
	standardTargets := make(map[string]bool)
	for _, versions := range lock.Graph {
		for _, node := range versions {
			if node.Ty != manifest.Standard {
				continue
			}
			for _, childKey := range node.Dependencies {
				standardTargets[childKey] = true
			}
		}
	}

	var unresolved []string
	for nameKey, versions := range lock.Graph {
		for vkey, node := range versions {
			if node.Ty != manifest.Peer {
				continue
			}
			key := nameKey + "@" + vkey
			if !standardTargets[key] {
				unresolved = append(unresolved, key)
			}
		}
	}
	sort.Strings(unresolved)
	return unresolved
}

func assertAcyclic(lock *lockfile.Lockfile) error {
	graph := toposort.NewGraph(0)
	for nameKey, versions := range lock.Graph {
		for vkey := range versions {
			graph.AddNode(nameKey + "@" + vkey)
		}
	}
	for nameKey, versions := range lock.Graph {
		for vkey, node := range versions {
			from := nameKey + "@" + vkey
			for _, to := range node.Dependencies {
				graph.AddEdge(from, to)
			}
		}
	}
	_, ok := graph.Toposort()
	if !ok {
		return fmt.Errorf("dependency graph is not acyclic")
	}
	return nil
}
