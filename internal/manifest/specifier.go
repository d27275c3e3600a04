package manifest

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/wisp-pm/wisp/internal/names"
	"github.com/wisp-pm/wisp/internal/target"
)

// SpecifierKind discriminates the dependency-specifier tagged union of §3.
type SpecifierKind int

const (
	SpecifierPrimary SpecifierKind = iota
	SpecifierLegacy
	SpecifierGit
	SpecifierWorkspace
)

// VersionType is the publish-time version bump used by workspace
// specifiers: ^, ~, = or *.
type VersionType int

const (
	VersionCaret VersionType = iota
	VersionTilde
	VersionExact
	VersionWildcard
)

func (t VersionType) String() string {
	switch t {
	case VersionTilde:
		return "~"
	case VersionExact:
		return "="
	case VersionWildcard:
		return "*"
	default:
		return "^"
	}
}

func parseVersionType(s string) (VersionType, error) {
	switch s {
	case "", "^":
		return VersionCaret, nil
	case "~":
		return VersionTilde, nil
	case "=":
		return VersionExact, nil
	case "*":
		return VersionWildcard, nil
	}
	return VersionCaret, fmt.Errorf("invalid version type %q", s)
}

// Specifier is the sum type over every dependency-specifier kind the
// manifest can hold. Only the fields relevant to Kind are populated.
//
// Discrimination at decode time follows field presence, per §3:
// a "repo" field means Git, a "workspace" field means Workspace, a
// "wally"-style legacy name field means Legacy, a "name" field means
// Primary; a table with none of these is rejected.
type Specifier struct {
	Kind SpecifierKind

	// Primary / Legacy
	Name          string // "scope/name" form
	VersionReq    *semver.Constraints
	VersionReqRaw string
	Index         string
	Target        target.Kind
	HasTarget     bool

	// Git
	RepoURL string
	Rev     string

	// Workspace
	WorkspaceName string
	VersionType   VersionType
}

// UnmarshalTOML implements toml.Unmarshaler. value is the
// already-decoded representation of the TOML table for one dependency
// entry (a map[string]any).
func (s *Specifier) UnmarshalTOML(value interface{}) error {
	m, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("dependency specifier must be a table")
	}

	str := func(key string) string {
		v, _ := m[key].(string)
		return v
	}

	switch {
	case str("repo") != "":
		s.Kind = SpecifierGit
		s.RepoURL = str("repo")
		s.Rev = str("rev")
		if t := str("target"); t != "" {
			tk, err := target.Parse(t)
			if err != nil {
				return err
			}
			s.Target, s.HasTarget = tk, true
		}
		return nil
	case str("workspace") != "":
		s.Kind = SpecifierWorkspace
		s.WorkspaceName = str("workspace")
		vt, err := parseVersionType(str("version"))
		if err != nil {
			return err
		}
		s.VersionType = vt
		return nil
	case str("wally") != "":
		s.Kind = SpecifierLegacy
		s.Name = str("wally")
		s.Index = str("index")
		return s.parseVersionReq(str("version"))
	case str("name") != "":
		s.Kind = SpecifierPrimary
		s.Name = str("name")
		s.Index = str("index")
		if t := str("target"); t != "" {
			tk, err := target.Parse(t)
			if err != nil {
				return err
			}
			s.Target, s.HasTarget = tk, true
		}
		return s.parseVersionReq(str("version"))
	default:
		return fmt.Errorf("dependency specifier has no recognizable discriminating field")
	}
}

func (s *Specifier) parseVersionReq(v string) error {
	if v == "" {
		v = "*"
	}
	c, err := semver.NewConstraint(v)
	if err != nil {
		return fmt.Errorf("invalid version requirement %q: %w", v, err)
	}
	s.VersionReq = c
	s.VersionReqRaw = v
	return nil
}

// MarshalTOML implements toml.Marshaler so overrides and dependency
// maps round-trip through the order-preserving rewrite path.
func (s Specifier) MarshalTOML() ([]byte, error) {
	return nil, fmt.Errorf("Specifier.MarshalTOML is not used directly; callers build tables explicitly")
}

func (s Specifier) String() string {
	switch s.Kind {
	case SpecifierGit:
		return fmt.Sprintf("%s#%s", s.RepoURL, s.Rev)
	case SpecifierWorkspace:
		return fmt.Sprintf("workspace:%s%s", s.VersionType, s.WorkspaceName)
	default:
		return fmt.Sprintf("%s@%s", s.Name, s.VersionReqRaw)
	}
}

// Equal reports whether two specifiers carry the same value, used by
// the resolver's lockfile-reuse check (property 2 of §8): "every
// direct specifier in manifest equals a direct specifier in lockfile".
func (s Specifier) Equal(o Specifier) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case SpecifierGit:
		return s.RepoURL == o.RepoURL && s.Rev == o.Rev && s.Target == o.Target && s.HasTarget == o.HasTarget
	case SpecifierWorkspace:
		return s.WorkspaceName == o.WorkspaceName && s.VersionType == o.VersionType
	default:
		return s.Name == o.Name && s.VersionReqRaw == o.VersionReqRaw && s.Index == o.Index &&
			s.Target == o.Target && s.HasTarget == o.HasTarget
	}
}

// PackageName parses the Primary/Legacy Name field per Kind.
func (s Specifier) PackageName() (names.PackageNames, error) {
	switch s.Kind {
	case SpecifierLegacy:
		n, err := names.ParseLegacyName(s.Name)
		if err != nil {
			return names.PackageNames{}, err
		}
		return names.Legacy(n), nil
	default:
		n, err := names.ParsePackageName(s.Name)
		if err != nil {
			return names.PackageNames{}, err
		}
		return names.Primary(n), nil
	}
}
