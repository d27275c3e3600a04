package source

import (
	"github.com/pelletier/go-toml/v2"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/gitindex"
)

// ReadConfig reads and decodes the index repository's root config file.
func ReadConfig(idx *gitindex.Index) (Config, error) {
	const op = errors.Op("source.ReadConfig")
	data, err := idx.ReadFile([]string{"config.toml"})
	if err != nil {
		return Config{}, errors.E(op, errors.SourceRefresh, err)
	}
	if data == nil {
		return Config{}, errors.E(op, errors.SourceRefresh, "index repository has no config.toml")
	}
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.E(op, errors.SourceRefresh, err)
	}
	return c, nil
}

// ReadScopeInfo reads a scope's owner-id file, returning (nil, nil) if
// the scope does not exist yet.
func ReadScopeInfo(idx *gitindex.Index, scope string) (*ScopeInfo, error) {
	const op = errors.Op("source.ReadScopeInfo")
	data, err := idx.ReadFile([]string{scope, "scope.info"})
	if err != nil {
		return nil, errors.E(op, errors.SourceRefresh, err)
	}
	if data == nil {
		return nil, nil
	}
	var s ScopeInfo
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, errors.E(op, errors.SourceRefresh, err)
	}
	return &s, nil
}

// ReadPackageFile reads a package's per-path index file, returning
// (nil, nil) if the package has never been published.
func ReadPackageFile(idx *gitindex.Index, scope, name string) (*IndexFile, error) {
	const op = errors.Op("source.ReadPackageFile")
	data, err := idx.ReadFile([]string{scope, name})
	if err != nil {
		return nil, errors.E(op, errors.SourceRefresh, err)
	}
	if data == nil {
		return nil, nil
	}
	var f IndexFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errors.E(op, errors.SourceRefresh, err)
	}
	return &f, nil
}

// EncodePackageFile serializes an IndexFile back to TOML bytes, used
// by the registry's publish path to write the updated per-package file.
func EncodePackageFile(f *IndexFile) ([]byte, error) {
	return toml.Marshal(f)
}

// EncodeScopeInfo serializes a ScopeInfo back to TOML bytes.
func EncodeScopeInfo(s *ScopeInfo) ([]byte, error) {
	return toml.Marshal(s)
}
