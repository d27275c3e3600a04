package linker

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

// exportTypeRe matches a top-level `export type Foo<T, U = V> = ...`
// declaration line. The package scripting language's grammar is out of
// scope (spec.md Non-goals), so the scan is a pragmatic line-oriented
// regex rather than a full AST parse.
var exportTypeRe = regexp.MustCompile(`^\s*export\s+type\s+([A-Za-z_][A-Za-z0-9_]*)\s*(<[^>]*>)?`)

// scanExportedTypes reads a library export file and records the
// re-export line for each `export type` declaration it finds, in
// source order.
func scanExportedTypes(libPath string) ([]string, error) {
	f, err := os.Open(libPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := exportTypeRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		name, generics := m[1], m[2]
		lines = append(lines, reexportLine(name, generics))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// reexportLine formats one `export type Foo<T, U = V> = module.Foo<T, U>`
// line, stripping default-value bindings (`= V`) from the usage side of
// each generic parameter while keeping them in the declaration side.
func reexportLine(name, generics string) string {
	if generics == "" {
		return "export type " + name + " = module." + name
	}
	decl := generics
	usage := stripGenericDefaults(generics)
	return "export type " + name + decl + " = module." + name + usage
}

func stripGenericDefaults(generics string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(generics, "<"), ">")
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if idx := strings.Index(p, "="); idx >= 0 {
			p = p[:idx]
		}
		fields := strings.Fields(strings.TrimSpace(p))
		if len(fields) == 0 {
			continue
		}
		out = append(out, fields[0])
	}
	return "<" + strings.Join(out, ", ") + ">"
}
