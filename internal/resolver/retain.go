package resolver

import (
	"github.com/wisp-pm/wisp/internal/lockfile"
	"github.com/wisp-pm/wisp/internal/manifest"
)

// retainMatchingSubgraphs implements §4.6 step 2: for every direct
// node in prev whose (specifier, kind) still matches the current
// manifest's direct set, copy it and everything transitively reachable
// from it into lock, and mark its alias retained so the work queue
// skips it.
func retainMatchingSubgraphs(prev *lockfile.Lockfile, lock *lockfile.Lockfile, directByAlias map[string]manifest.DirectDependency, retained map[string]bool) {
	for nameKey, versions := range prev.Graph {
		for vkey, node := range versions {
			if !node.Direct || node.Alias == "" {
				continue
			}
			cur, ok := directByAlias[node.Alias]
			if !ok {
				continue
			}
			if cur.Kind != node.Ty || cur.Specifier.String() != node.Specifier {
				continue
			}
			retainSubgraph(prev, lock, nameKey, vkey)
			retained[node.Alias] = true
		}
	}
}

// retainSubgraph copies one node and everything it transitively
// depends on from prev into lock, if not already present.
func retainSubgraph(prev *lockfile.Lockfile, lock *lockfile.Lockfile, nameKey, vkey string) {
	if _, already := lock.Get(nameKey, vkey); already {
		return
	}
	node, ok := prev.Get(nameKey, vkey)
	if !ok {
		return
	}

	if lock.Graph[nameKey] == nil {
		lock.Graph[nameKey] = make(map[string]lockfile.Node)
	}
	lock.Graph[nameKey][vkey] = node

	for _, childKey := range node.Dependencies {
		childName, childVer := splitGraphKey(childKey)
		if childName == "" {
			continue
		}
		retainSubgraph(prev, lock, childName, childVer)
	}
}

func splitGraphKey(key string) (name, version string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '@' {
			return key[:i], key[i+1:]
		}
	}
	return "", ""
}
