// Package packagefs implements the serializable file-tree mapping
// produced by a package source's download step and materialized onto
// disk by the linker (§3, §4.3, §4.7).
package packagefs

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/otiai10/copy"

	"github.com/wisp-pm/wisp/internal/cas"
	"github.com/wisp-pm/wisp/internal/errors"
	"github.com/wisp-pm/wisp/internal/target"
)

// EntryKind discriminates one path's entry in a PackageFS.
type EntryKind int

const (
	KindDirectory EntryKind = iota
	KindFile
	KindCopy
)

// Entry is one node of a PackageFS tree.
type Entry struct {
	Kind EntryKind

	// File
	Hash cas.Hash

	// Copy: a workspace member's contents are copied live from Source
	// rather than read through the CAS.
	Source string
	Target string
}

// PackageFS is a project-relative path -> Entry mapping. It never
// embeds file content; only hashes (or, for workspace members, a
// source path to copy live).
type PackageFS map[string]Entry

// New returns an empty PackageFS.
func New() PackageFS { return make(PackageFS) }

// AddDirectory records an empty directory at path.
func (fs PackageFS) AddDirectory(path string) {
	fs[path] = Entry{Kind: KindDirectory}
}

// AddFile records a CAS-resident file at path.
func (fs PackageFS) AddFile(path string, h cas.Hash) {
	fs[path] = Entry{Kind: KindFile, Hash: h}
}

// AddCopy records that path should be materialized by copying source
// (a live workspace directory) rather than reading from the CAS.
func (fs PackageFS) AddCopy(path, source, target string) {
	fs[path] = Entry{Kind: KindCopy, Source: source, Target: target}
}

// sortedPaths returns fs's paths in lexical order, so materialization
// is deterministic and parent directories are always created before
// their children (a path always sorts before any path it prefixes).
func (fs PackageFS) sortedPaths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// WriteTo materializes fs into dest. Regular files are hardlinked from
// casRoot when link is true (caller asserts dest and casRoot share a
// filesystem), falling back to a copy otherwise.
func WriteTo(fs PackageFS, dest, casRoot string, link bool, store *cas.Store) error {
	const op = errors.Op("packagefs.WriteTo")

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.E(op, err)
	}

	for _, path := range fs.sortedPaths() {
		entry := fs[path]
		full := filepath.Join(dest, filepath.FromSlash(path))

		switch entry.Kind {
		case KindDirectory:
			if err := os.MkdirAll(full, 0o755); err != nil {
				return errors.E(op, path, err)
			}

		case KindFile:
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return errors.E(op, path, err)
			}
			if link {
				if err := store.Materialize(entry.Hash, full); err != nil {
					return errors.E(op, path, err)
				}
			} else if err := copyBlob(store, entry.Hash, full); err != nil {
				return errors.E(op, path, err)
			}

		case KindCopy:
			if err := copyTree(entry.Source, full); err != nil {
				return errors.E(op, path, err)
			}
		}
	}
	return nil
}

func copyBlob(store *cas.Store, h cas.Hash, dest string) error {
	r, err := store.OpenBlob(h)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, r)
	return err
}

// Snapshot is the payload a source's download-cache stores under a
// (source_hash, version_id, target) key (§4.3.1, §4.3.3): the
// PackageFS a download produced, plus the Target it was downloaded
// under, so a cache hit can rehydrate Download's full return value
// without re-fetching or re-extracting anything.
type Snapshot struct {
	Files  PackageFS     `json:"files"`
	Target target.Target `json:"target"`
}

// EncodeSnapshot serializes fs and tgt for storage in a cas.Store
// snapshot slot.
func EncodeSnapshot(fs PackageFS, tgt target.Target) ([]byte, error) {
	return json.Marshal(Snapshot{Files: fs, Target: tgt})
}

// DecodeSnapshot is EncodeSnapshot's inverse.
func DecodeSnapshot(data []byte) (PackageFS, target.Target, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, target.Target{}, err
	}
	return snap.Files, snap.Target, nil
}

// copyTree materializes a workspace member's live directory into dest,
// skipping its .git directory the same way kpt's copyDir does.
func copyTree(src, dest string) error {
	return copy.Copy(src, dest, copy.Options{
		Skip: func(path string) (bool, error) {
			return strings.HasSuffix(path, ".git"), nil
		},
	})
}
