package linker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/scripts"
	"github.com/wisp-pm/wisp/internal/target"
)

// ShimWarning reports a non-fatal condition surfaced during shim
// generation, such as a missing Roblox sync-config generator script.
type ShimWarning struct {
	NameKey, VersionKey string
	Message             string
}

// Linker generates require shims and build-tool hooks for a set of
// downloaded nodes (§4.7).
type Linker struct {
	ProjectRoot   string
	ProjectTarget target.Kind
	ScriptRunner  scripts.Runner

	// RobloxSyncConfigScript is the resolved path to the
	// roblox_sync_config_generator script, empty if the project
	// declares none.
	RobloxSyncConfigScript string
}

// Link writes every root and transitive shim implied by results, runs
// the Roblox sync-config hook for Roblox-targeted nodes, and writes
// binary shims for direct dependencies with a bin export.
func (l *Linker) Link(ctx context.Context, results []result) ([]ShimWarning, error) {
	const op = errors.Op("linker.Link")

	byKey := make(map[string]*result, len(results))
	for i := range results {
		r := &results[i]
		byKey[r.name.Escaped()+"@"+r.version.Escaped()] = r
	}

	var warnings []ShimWarning

	for i := range results {
		r := &results[i]

		if r.node.Direct && r.target.HasExports() {
			if r.libAbs != "" {
				dest := rootShimPath(l.ProjectRoot, l.ProjectTarget, r.version.Target, r.node.Alias)
				if err := l.writeRequireShim(dest, r); err != nil {
					return warnings, errors.E(op, errors.Link, r.name.String(), err)
				}
			}
			if r.target.Bin != "" {
				if err := l.writeBinaryShim(r); err != nil {
					return warnings, errors.E(op, errors.Link, r.name.String(), err)
				}
			}
		}

		for alias, childKey := range r.node.Dependencies {
			child, ok := byKey[childKey]
			if !ok || child.libAbs == "" {
				continue
			}
			dest := edgeShimPath(r.container, alias, child.version.Target)
			if err := l.writeRequireShim(dest, child); err != nil {
				return warnings, errors.E(op, errors.Link, r.name.String(), err)
			}
		}

		if r.version.Target == target.Roblox && len(r.target.BuildFiles) > 0 {
			if err := l.runRobloxHook(ctx, r); err != nil {
				warnings = append(warnings, ShimWarning{
					NameKey:    r.name.Escaped(),
					VersionKey: r.version.Escaped(),
					Message:    err.Error(),
				})
			}
		}
	}

	return warnings, nil
}

// writeRequireShim emits the shim of §4.7 step 3: a single require
// line, one re-export line per exported type, then "return module".
func (l *Linker) writeRequireShim(dest string, child *result) error {
	expr, err := requireExpr(dest, child.libAbs, child.version.Target)
	if err != nil {
		return err
	}

	types, err := scanExportedTypes(child.libAbs)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "local module = require(%s)\n", expr)
	for _, line := range types {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("return module\n")

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(b.String()), 0o644)
}

// requireExpr computes the require argument for a shim located at
// dest that must reach lib. Targets that support relative filesystem
// paths get a quoted "./a/b.luau" expression, extension intact;
// targets that don't (the Roblox instance tree) get a chained
// script.Parent... navigation expression instead (§4.7 step 2).
func requireExpr(dest, lib string, childKind target.Kind) (string, error) {
	rel, err := filepath.Rel(filepath.Dir(dest), lib)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)

	if childKind == target.Roblox {
		return robloxNavigation(rel), nil
	}

	if !strings.HasPrefix(rel, "./") && !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return fmt.Sprintf("%q", rel), nil
}

// robloxNavigation converts a "a/../b/c.luau" style relative path into
// a chained Instance navigation expression: one ".Parent" per
// up-level, then one bracket index per remaining segment, its
// lua/luau extension trimmed. init.lua and init.luau segments are
// dropped entirely, since Roblox Instance trees fold a directory's
// init script into the directory itself.
func robloxNavigation(rel string) string {
	segments := strings.Split(rel, "/")
	var b strings.Builder
	b.WriteString("script")
	for _, seg := range segments {
		switch seg {
		case ".", "":
			continue
		case "..":
			b.WriteString(".Parent")
		case "init.lua", "init.luau":
			continue
		default:
			name := strings.TrimSuffix(seg, ".lua")
			name = strings.TrimSuffix(name, ".luau")
			fmt.Fprintf(&b, "[%q]", name)
		}
	}
	return b.String()
}

// runRobloxHook invokes the project's roblox_sync_config_generator
// script against a node's container, per §4.7. A missing script is
// reported as a warning, not an error.
func (l *Linker) runRobloxHook(ctx context.Context, r *result) error {
	if l.RobloxSyncConfigScript == "" {
		return fmt.Errorf("no %s script declared", scripts.RobloxSyncConfigGenerator)
	}
	if _, err := os.Stat(l.RobloxSyncConfigScript); err != nil {
		return fmt.Errorf("%s: %w", scripts.RobloxSyncConfigGenerator, err)
	}
	args := append([]string{r.container}, r.target.BuildFiles...)
	_, err := l.ScriptRunner.Run(ctx, l.RobloxSyncConfigScript, args...)
	return err
}

// writeBinaryShim installs an executable entry point for a direct
// dependency's bin export into the project's bin directory (§4.7).
func (l *Linker) writeBinaryShim(r *result) error {
	binDir := filepath.Join(l.ProjectRoot, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(binDir, r.node.Alias+shimExtension(r.version.Target))

	binAbs := filepath.Join(r.container, filepath.FromSlash(r.target.Bin))
	expr, err := requireExpr(dest, binAbs, r.version.Target)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("require(%s)\n", expr)
	if err := os.WriteFile(dest, []byte(content), 0o755); err != nil {
		return err
	}

	if runtime.GOOS == "windows" {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		return copyExecutable(exe, filepath.Join(binDir, r.node.Alias+".exe"))
	}
	return os.Chmod(dest, 0o755)
}

func copyExecutable(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o755)
}
