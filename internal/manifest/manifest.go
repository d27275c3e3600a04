// Package manifest implements the per-package manifest document (§3,
// §6): typed fields plus a side map of unknown top-level fields, so
// those fields survive a rewrite when direct dependencies are added.
// Comments and key order are not preserved by a rewrite.
package manifest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/target"
)

const FileName = "wisp.toml"

// DependencyKind classifies a dependency edge as standard, peer or dev.
type DependencyKind int

const (
	Standard DependencyKind = iota
	Peer
	Dev
)

func (k DependencyKind) String() string {
	switch k {
	case Peer:
		return "peer"
	case Dev:
		return "dev"
	default:
		return "standard"
	}
}

// OverrideKey identifies one or more positions in the transitive graph
// where a specifier substitutes whatever would otherwise resolve.
// Encoded as comma-separated sets of '>'-separated alias paths, e.g.
// "a>b>c,x>y" (§3, confirmed against the literal override examples in
// §4.6 and §8 scenario 3).
type OverrideKey [][]string

func ParseOverrideKey(s string) (OverrideKey, error) {
	if s == "" {
		return nil, fmt.Errorf("empty override key")
	}
	var key OverrideKey
	for _, group := range strings.Split(s, ",") {
		segs := strings.Split(group, ">")
		for _, seg := range segs {
			if seg == "" {
				return nil, fmt.Errorf("override key %q has an empty path segment", s)
			}
		}
		key = append(key, segs)
	}
	return key, nil
}

func (k OverrideKey) String() string {
	groups := make([]string, len(k))
	for i, g := range k {
		groups[i] = strings.Join(g, ">")
	}
	return strings.Join(groups, ",")
}

// Matches reports whether the alias path (parent aliases + this alias)
// matches one of the key's paths exactly, per §4.6 step 4's
// prefix-then-final-segment rule.
func (k OverrideKey) Matches(path []string) bool {
	for _, g := range k {
		if len(g) != len(path) {
			continue
		}
		ok := true
		for i := range g {
			if g[i] != path[i] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// Manifest is the typed per-package metadata document of §3.
type Manifest struct {
	Name    string        `toml:"name"`
	Version *semver.Version `toml:"-"`
	VersionRaw string     `toml:"version"`
	Target  target.Target `toml:"target"`

	Dependencies     map[string]Specifier `toml:"dependencies,omitempty"`
	PeerDependencies map[string]Specifier `toml:"peer_dependencies,omitempty"`
	DevDependencies  map[string]Specifier `toml:"dev_dependencies,omitempty"`

	Overrides map[string]Specifier `toml:"overrides,omitempty"`

	Indices       map[string]string `toml:"indices,omitempty"`
	WallyIndices  map[string]string `toml:"wally_indices,omitempty"`

	Includes []string          `toml:"includes,omitempty"`
	Scripts  map[string]string `toml:"scripts,omitempty"`

	Description string   `toml:"description,omitempty"`
	License     string   `toml:"license,omitempty"`
	Authors     []string `toml:"authors,omitempty"`
	Repository  string   `toml:"repository,omitempty"`

	// unknownFields preserves table keys the typed struct does not
	// model, so a rewrite does not drop user content (best-effort
	// approximation of the order-preserving document requirement of
	// §6 — see DESIGN.md).
	unknownFields map[string]interface{} `toml:"-"`
}

// DirectDependency is one (alias, specifier, kind) entry from the
// union of a manifest's three dependency maps.
type DirectDependency struct {
	Alias      string
	Specifier  Specifier
	Kind       DependencyKind
}

// DirectDependencies returns the union of standard, peer and dev
// dependencies. Returns an error if the same alias is declared in more
// than one of the three maps (§4.6 step 1: "duplicate aliases are an
// error").
func (m *Manifest) DirectDependencies() ([]DirectDependency, error) {
	seen := make(map[string]DependencyKind)
	var out []DirectDependency

	add := func(deps map[string]Specifier, kind DependencyKind) error {
		aliases := make([]string, 0, len(deps))
		for alias := range deps {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
		for _, alias := range aliases {
			if _, dup := seen[alias]; dup {
				return errors.E(errors.InputValidation, errors.Op("manifest.DirectDependencies"),
					fmt.Sprintf("duplicate dependency alias %q", alias))
			}
			seen[alias] = kind
			out = append(out, DirectDependency{Alias: alias, Specifier: deps[alias], Kind: kind})
		}
		return nil
	}

	if err := add(m.Dependencies, Standard); err != nil {
		return nil, err
	}
	if err := add(m.PeerDependencies, Peer); err != nil {
		return nil, err
	}
	if err := add(m.DevDependencies, Dev); err != nil {
		return nil, err
	}
	return out, nil
}

// ParsedOverrides parses every override key, preserving the manifest's
// raw string keys as decoded by TOML (table keys cannot themselves be
// the dotted/'>' form losslessly inside go-toml's map decoding, so the
// manifest stores overrides as a flat map keyed by the literal string
// form written in the document).
func (m *Manifest) ParsedOverrides() (map[string]OverrideKey, error) {
	out := make(map[string]OverrideKey, len(m.Overrides))
	for raw := range m.Overrides {
		key, err := ParseOverrideKey(raw)
		if err != nil {
			return nil, errors.E(errors.InputValidation, errors.Op("manifest.ParsedOverrides"), err)
		}
		out[raw] = key
	}
	return out, nil
}

// Load reads and decodes a manifest file from path.
func Load(path string) (*Manifest, error) {
	const op = errors.Op("manifest.Load")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(op, errors.InputValidation, path, err)
	}
	return Parse(data)
}

// Parse decodes manifest TOML bytes.
func Parse(data []byte) (*Manifest, error) {
	const op = errors.Op("manifest.Parse")

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.E(op, errors.InputValidation, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.E(op, errors.InputValidation, err)
	}

	if m.Name == "" {
		return nil, errors.E(op, errors.InputValidation, "manifest is missing required field \"name\"")
	}
	if m.VersionRaw == "" {
		return nil, errors.E(op, errors.InputValidation, "manifest is missing required field \"version\"")
	}
	v, err := semver.NewVersion(m.VersionRaw)
	if err != nil {
		return nil, errors.E(op, errors.InputValidation, fmt.Sprintf("invalid version %q", m.VersionRaw), err)
	}
	m.Version = v

	known := map[string]bool{
		"name": true, "version": true, "target": true, "dependencies": true,
		"peer_dependencies": true, "dev_dependencies": true, "overrides": true,
		"indices": true, "wally_indices": true, "includes": true, "scripts": true,
		"description": true, "license": true, "authors": true, "repository": true,
	}
	m.unknownFields = make(map[string]interface{})
	for k, v := range raw {
		if !known[k] {
			m.unknownFields[k] = v
		}
	}

	return &m, nil
}

// Save encodes the manifest back to TOML, re-attaching any unknown
// top-level fields recorded at Load time.
func (m *Manifest) Save(path string) error {
	const op = errors.Op("manifest.Save")

	out := map[string]interface{}{
		"name":    m.Name,
		"version": m.VersionRaw,
		"target":  m.Target,
	}
	if len(m.Dependencies) > 0 {
		out["dependencies"] = m.Dependencies
	}
	if len(m.PeerDependencies) > 0 {
		out["peer_dependencies"] = m.PeerDependencies
	}
	if len(m.DevDependencies) > 0 {
		out["dev_dependencies"] = m.DevDependencies
	}
	if len(m.Overrides) > 0 {
		out["overrides"] = m.Overrides
	}
	if len(m.Indices) > 0 {
		out["indices"] = m.Indices
	}
	if len(m.WallyIndices) > 0 {
		out["wally_indices"] = m.WallyIndices
	}
	if len(m.Includes) > 0 {
		out["includes"] = m.Includes
	}
	if len(m.Scripts) > 0 {
		out["scripts"] = m.Scripts
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	if m.License != "" {
		out["license"] = m.License
	}
	if len(m.Authors) > 0 {
		out["authors"] = m.Authors
	}
	if m.Repository != "" {
		out["repository"] = m.Repository
	}
	for k, v := range m.unknownFields {
		out[k] = v
	}

	data, err := toml.Marshal(out)
	if err != nil {
		return errors.E(op, err)
	}
	return os.WriteFile(path, data, 0o644)
}
