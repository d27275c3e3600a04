// Package names implements the package-name and version-id types of
// §3: strictly validated (scope, name) pairs with filesystem-escaped
// encodings, plus the (semver, target) version identity.
package names

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/wisp-pm/wisp/internal/target"
)

// PackageName is a primary-index package name: scope/name, each part
// 3-32 chars of lowercase ASCII letters, digits and underscore, not
// all-digit, no leading/trailing underscore.
type PackageName struct {
	Scope string
	Name  string
}

func validatePrimaryPart(part, reason string) error {
	if len(part) < 3 || len(part) > 32 {
		return fmt.Errorf("%s %q must be 3-32 characters", reason, part)
	}
	allDigits := true
	for _, c := range part {
		if c < '0' || c > '9' {
			allDigits = false
		}
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		if !isLower && !isDigit && c != '_' {
			return fmt.Errorf("%s %q contains invalid characters", reason, part)
		}
	}
	if allDigits {
		return fmt.Errorf("%s %q must not be all digits", reason, part)
	}
	if strings.HasPrefix(part, "_") || strings.HasSuffix(part, "_") {
		return fmt.Errorf("%s %q must not start or end with an underscore", reason, part)
	}
	return nil
}

// ParsePackageName validates and parses a "scope/name" string.
func ParsePackageName(s string) (PackageName, error) {
	scope, name, ok := strings.Cut(s, "/")
	if !ok {
		return PackageName{}, fmt.Errorf("package name %q must be in scope/name form", s)
	}
	if err := validatePrimaryPart(scope, "scope"); err != nil {
		return PackageName{}, err
	}
	if err := validatePrimaryPart(name, "name"); err != nil {
		return PackageName{}, err
	}
	return PackageName{Scope: scope, Name: name}, nil
}

func (n PackageName) String() string { return n.Scope + "/" + n.Name }

// Escaped returns the filesystem-safe form, using '+' as separator.
func (n PackageName) Escaped() string { return n.Scope + "+" + n.Name }

func (n PackageName) Compare(o PackageName) int {
	if c := strings.Compare(n.Scope, o.Scope); c != 0 {
		return c
	}
	return strings.Compare(n.Name, o.Name)
}

// LegacyName is a legacy-index package name: scope/name, each part
// 1-64 chars of letters, digits and hyphen.
type LegacyName struct {
	Scope string
	Name  string
}

func validateLegacyPart(part, reason string) error {
	if len(part) < 1 || len(part) > 64 {
		return fmt.Errorf("%s %q must be 1-64 characters", reason, part)
	}
	for _, c := range part {
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isAlpha && !isDigit && c != '-' {
			return fmt.Errorf("%s %q contains invalid characters", reason, part)
		}
	}
	return nil
}

// ParseLegacyName validates and parses a legacy-index "scope/name" string.
func ParseLegacyName(s string) (LegacyName, error) {
	scope, name, ok := strings.Cut(s, "/")
	if !ok {
		return LegacyName{}, fmt.Errorf("legacy package name %q must be in scope/name form", s)
	}
	if err := validateLegacyPart(scope, "scope"); err != nil {
		return LegacyName{}, err
	}
	if err := validateLegacyPart(name, "name"); err != nil {
		return LegacyName{}, err
	}
	return LegacyName{Scope: scope, Name: name}, nil
}

func (n LegacyName) String() string  { return n.Scope + "/" + n.Name }
func (n LegacyName) Escaped() string { return n.Scope + "+" + n.Name }

// Kind discriminates the PackageNames tagged union.
type Kind int

const (
	KindPrimary Kind = iota
	KindLegacy
)

// PackageNames is the tagged union over every package-name kind the
// system recognizes, mirroring the canonical name encoding used as
// graph keys across the resolver and CAS.
type PackageNames struct {
	Kind   Kind
	Primary PackageName
	Legacy  LegacyName
}

func Primary(n PackageName) PackageNames { return PackageNames{Kind: KindPrimary, Primary: n} }
func Legacy(n LegacyName) PackageNames   { return PackageNames{Kind: KindLegacy, Legacy: n} }

func (n PackageNames) String() string {
	switch n.Kind {
	case KindLegacy:
		return n.Legacy.String()
	default:
		return n.Primary.String()
	}
}

func (n PackageNames) Escaped() string {
	switch n.Kind {
	case KindLegacy:
		return n.Legacy.Escaped()
	default:
		return n.Primary.Escaped()
	}
}

// FromEscaped reverses Escaped, given the kind it was encoded with.
func FromEscaped(kind Kind, s string) (PackageNames, error) {
	unescaped := strings.Replace(s, "+", "/", 1)
	switch kind {
	case KindLegacy:
		n, err := ParseLegacyName(unescaped)
		if err != nil {
			return PackageNames{}, err
		}
		return Legacy(n), nil
	default:
		n, err := ParsePackageName(unescaped)
		if err != nil {
			return PackageNames{}, err
		}
		return Primary(n), nil
	}
}

// VersionID is a (semver, target) pair, the unit of identity within a
// package. Ordering is target-major, then semver, per §3.
type VersionID struct {
	Version *semver.Version
	Target  target.Kind
}

func NewVersionID(v *semver.Version, t target.Kind) VersionID {
	return VersionID{Version: v, Target: t}
}

func (v VersionID) String() string {
	return fmt.Sprintf("%s %s", v.Version.String(), v.Target.String())
}

// Escaped returns the filesystem-safe form, using '+' as separator.
func (v VersionID) Escaped() string {
	return fmt.Sprintf("%s+%s", v.Version.String(), v.Target.String())
}

// ParseVersionID parses the "semver target" display form.
func ParseVersionID(s string) (VersionID, error) {
	ver, tgt, ok := strings.Cut(s, " ")
	if !ok {
		return VersionID{}, fmt.Errorf("malformed version id %q", s)
	}
	sv, err := semver.NewVersion(ver)
	if err != nil {
		return VersionID{}, fmt.Errorf("malformed version in version id %q: %w", s, err)
	}
	tk, err := target.Parse(tgt)
	if err != nil {
		return VersionID{}, fmt.Errorf("malformed target in version id %q: %w", s, err)
	}
	return VersionID{Version: sv, Target: tk}, nil
}

// ParseEscapedVersionID parses the "semver+target" escaped form
// produced by Escaped.
func ParseEscapedVersionID(s string) (VersionID, error) {
	i := strings.LastIndex(s, "+")
	if i < 0 {
		return VersionID{}, fmt.Errorf("malformed escaped version id %q", s)
	}
	ver, tgt := s[:i], s[i+1:]
	sv, err := semver.NewVersion(ver)
	if err != nil {
		return VersionID{}, fmt.Errorf("malformed version in escaped version id %q: %w", s, err)
	}
	tk, err := target.Parse(tgt)
	if err != nil {
		return VersionID{}, fmt.Errorf("malformed target in escaped version id %q: %w", s, err)
	}
	return VersionID{Version: sv, Target: tk}, nil
}

// Compare orders VersionIDs target-major, then semver, matching the
// "max by ordered version_id" tie-break rule used throughout the
// resolver (§4.6).
func (v VersionID) Compare(o VersionID) int {
	if v.Target != o.Target {
		if v.Target < o.Target {
			return -1
		}
		return 1
	}
	return v.Version.Compare(o.Version)
}

// Equal reports whether two version ids denote the same node identity.
func (v VersionID) Equal(o VersionID) bool {
	return v.Compare(o) == 0
}
