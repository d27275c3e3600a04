package linker

import (
	"path/filepath"
	"strings"

	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/target"
)

// containerDirName is the fixed directory inside a packages folder
// that holds every downloaded package's container folder, keeping it
// visually distinct from any generated root shims placed alongside it.
const containerDirName = ".wisp"

// ContainerPath computes the container folder a node's PackageFS is
// written into (§4.7):
//
//	<project>/<base_folder>/<packages_container>/<name_escaped>/<version_id_escaped>/<name_part>
func ContainerPath(projectRoot string, parentTarget, childTarget target.Kind, name names.PackageNames, version names.VersionID) string {
	base := parentTarget.PackagesFolder(childTarget)
	return filepath.Join(
		projectRoot, base, containerDirName,
		name.Escaped(), version.Escaped(), namePart(name),
	)
}

// namePart returns a name's filesystem-friendly last component, used
// as the innermost container directory so a package's own files sit
// directly under a directory sharing its name.
func namePart(n names.PackageNames) string {
	s := n.String()
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// rootShimPath is the per-alias shim written at the project's
// packages-folder root for a direct dependency (§4.7).
func rootShimPath(projectRoot string, projectTarget, depTarget target.Kind, alias string) string {
	base := projectTarget.PackagesFolder(depTarget)
	return filepath.Join(projectRoot, base, alias+shimExtension(depTarget))
}

// edgeShimPath is the shim written inside a parent's container folder
// for one of its own dependency edges (§4.7 "transitive edges get
// shims inside the parent's container").
func edgeShimPath(parentContainer string, alias string, depTarget target.Kind) string {
	return filepath.Join(parentContainer, alias+shimExtension(depTarget))
}

func shimExtension(k target.Kind) string {
	if k == target.Roblox {
		return ".lua"
	}
	return ".luau"
}
