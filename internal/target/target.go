// Package target defines the closed enumeration of build targets a
// package can be published for, and the compatibility rules between
// a project's target and the targets of its dependencies.
package target

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Kind is a closed enumeration of build targets.
type Kind int

const (
	// Unknown is the zero value; never a valid target of a real package.
	Unknown Kind = iota
	// Roblox is a target that syncs into a Roblox place via an external
	// build-tool config (see the linker's Roblox-flavored hook).
	Roblox
	// Lune is a target for the Lune standalone runtime. May depend on
	// Luau targets but not vice versa.
	Lune
	// Luau is a target for pure Luau script consumption with no host
	// runtime assumptions.
	Luau
)

// Kinds lists every variant, in declaration order.
var Kinds = []Kind{Roblox, Lune, Luau}

func (k Kind) String() string {
	switch k {
	case Roblox:
		return "roblox"
	case Lune:
		return "lune"
	case Luau:
		return "luau"
	}
	return "unknown"
}

// Parse converts a lowercase target name into a Kind.
func Parse(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return Unknown, fmt.Errorf("unknown target kind %q", s)
}

// compatibility is the small, static cross-target table referenced by
// §4.2. Identity is always allowed and is checked separately.
var compatibility = map[[2]Kind]bool{
	{Lune, Luau}: true,
}

// IsCompatibleWith reports whether a project targeting kind p may
// depend on a package targeting kind d.
func (p Kind) IsCompatibleWith(d Kind) bool {
	if p == d {
		return true
	}
	return compatibility[[2]Kind{p, d}]
}

// PackagesFolder returns the per-target-pair packages directory name
// for a dependency of kind d consumed by a project of kind p.
func (p Kind) PackagesFolder(d Kind) string {
	if p == d {
		return "packages"
	}
	return d.String() + "_packages"
}

// Target is a package's declared build target: its kind plus the
// target-specific export paths and metadata.
type Target struct {
	Kind Kind `toml:"-"`

	// Lib is the project-relative path to the library export file.
	// Empty means the package exports no library.
	Lib string `toml:"lib,omitempty"`

	// Bin is the project-relative path to the binary export file.
	// Only meaningful for Lune and Luau targets.
	Bin string `toml:"bin,omitempty"`

	// BuildFiles lists files passed to the Roblox sync-config generator.
	// Only meaningful for Roblox targets.
	BuildFiles []string `toml:"build_files,omitempty"`
}

// UnmarshalTOML implements toml.Unmarshaler. Kind is tagged "-" since
// its wire form is the string produced by String, not the bare int
// Kind is declared over.
func (t *Target) UnmarshalTOML(value interface{}) error {
	table, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("target must be a table")
	}

	kindRaw, _ := table["kind"].(string)
	if kindRaw == "" {
		return fmt.Errorf("target table is missing required field \"kind\"")
	}
	k, err := Parse(kindRaw)
	if err != nil {
		return err
	}
	t.Kind = k

	if lib, ok := table["lib"].(string); ok {
		t.Lib = lib
	}
	if bin, ok := table["bin"].(string); ok {
		t.Bin = bin
	}
	if raw, ok := table["build_files"].([]interface{}); ok {
		t.BuildFiles = make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				t.BuildFiles = append(t.BuildFiles, s)
			}
		}
	}
	return nil
}

// MarshalTOML implements toml.Marshaler, the mirror of UnmarshalTOML.
func (t Target) MarshalTOML() ([]byte, error) {
	out := map[string]interface{}{"kind": t.Kind.String()}
	if t.Lib != "" {
		out["lib"] = t.Lib
	}
	if t.Bin != "" {
		out["bin"] = t.Bin
	}
	if len(t.BuildFiles) > 0 {
		out["build_files"] = t.BuildFiles
	}
	return toml.Marshal(out)
}

// HasExports reports whether the target declares a library or binary.
func (t Target) HasExports() bool {
	return t.Lib != "" || t.Bin != ""
}

// ValidatePublish checks the invariants §4.5 step 3 and the target
// schema require before a package may be published.
func (t Target) ValidatePublish() error {
	if !t.HasExports() {
		return fmt.Errorf("target %s declares no lib or bin export", t.Kind)
	}
	if t.Kind == Roblox && len(t.BuildFiles) == 0 {
		return fmt.Errorf("roblox target declares no build files")
	}
	return nil
}
