// Package cas implements the client's content-addressed blob store
// (downloaded package archives and extracted files): SHA-256 keyed,
// fan-out directory layout, atomic writes (§3, §4.7). The registry
// keeps published archives in its own blobstore, not here.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"github.com/wisp-pm/wisp/internal/errors"
)

// Store is a content-addressed blob store rooted at a directory laid
// out as cas/<first two hex chars>/<remaining 62 hex chars>.
type Store struct {
	root string
}

// Open returns a Store rooted at root, creating it if absent.
func Open(root string) (*Store, error) {
	const op = errors.Op("cas.Open")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.E(op, err)
	}
	return &Store{root: root}, nil
}

// Hash is a hex-encoded SHA-256 digest, the store's content key.
type Hash string

func (h Hash) path(root string) string {
	s := string(h)
	if len(s) < 3 {
		return filepath.Join(root, s)
	}
	return filepath.Join(root, s[:2], s[2:])
}

// Has reports whether the blob identified by h is already stored.
func (s *Store) Has(h Hash) bool {
	_, err := os.Stat(h.path(s.root))
	return err == nil
}

// Path returns the on-disk path of a stored blob, without checking
// existence.
func (s *Store) Path(h Hash) string {
	return h.path(s.root)
}

// OpenBlob returns a reader for a stored blob.
func (s *Store) OpenBlob(h Hash) (io.ReadCloser, error) {
	const op = errors.Op("cas.Store.OpenBlob")
	f, err := os.Open(h.path(s.root))
	if err != nil {
		return nil, errors.E(op, errors.Download, string(h), err)
	}
	return f, nil
}

// tmpDir returns cas/.tmp, creating it if absent. Every staging file
// for a blob or snapshot write streams through here before its
// destination rename (§4.4: "stream into a temp file in cas/.tmp/").
func (s *Store) tmpDir() (string, error) {
	dir := filepath.Join(s.root, ".tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Put streams r into the store, computing its hash as it writes to a
// temp file, then atomically renaming into place. Returns the content
// hash. If a blob with the computed hash already exists, the temp file
// is discarded and the existing blob is left untouched.
func (s *Store) Put(r io.Reader) (Hash, int64, error) {
	const op = errors.Op("cas.Store.Put")

	tmpDir, err := s.tmpDir()
	if err != nil {
		return "", 0, errors.E(op, err)
	}
	tmp, err := os.CreateTemp(tmpDir, "incoming-*")
	if err != nil {
		return "", 0, errors.E(op, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close()
		return "", 0, errors.E(op, errors.Download, err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, errors.E(op, err)
	}

	hash := Hash(hex.EncodeToString(h.Sum(nil)))
	dest := hash.path(s.root)

	if _, err := os.Stat(dest); err == nil {
		return hash, n, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, errors.E(op, err)
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		return "", 0, errors.E(op, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", 0, errors.E(op, err)
	}
	return hash, n, nil
}

// Verify reads back a stored blob and confirms its digest still
// matches h, guarding against on-disk corruption (§7 Download errors).
func (s *Store) Verify(h Hash) error {
	const op = errors.Op("cas.Store.Verify")
	f, err := s.OpenBlob(h)
	if err != nil {
		return err
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return errors.E(op, errors.Download, string(h), err)
	}
	got := Hash(hex.EncodeToString(sum.Sum(nil)))
	if got != h {
		return errors.E(op, errors.Download, string(h),
			fmt.Sprintf("blob corrupted: expected %s, got %s", h, got))
	}
	return nil
}

// Materialize copies or hardlinks the blob identified by h to dest. It
// tries a hardlink first (cheap, same filesystem) and falls back to a
// full copy, e.g. across filesystem boundaries.
func (s *Store) Materialize(h Hash, dest string) error {
	const op = errors.Op("cas.Store.Materialize")

	src := h.path(s.root)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.E(op, err)
	}

	if err := os.Link(src, dest); err == nil {
		return nil
	}

	return copyFile(src, dest)
}

// copyFile copies src to dest via a same-directory temp file plus
// atomic rename, so a reader never observes a partially-written blob.
// The actual byte copy goes through otiai10/copy (the teacher's own
// cross-filesystem copy dependency) rather than a hand-rolled
// io.Copy loop.
func copyFile(src, dest string) error {
	const op = errors.Op("cas.copyFile")

	tmp := dest + "." + uuid.NewString() + ".tmp"
	if err := copy.Copy(src, tmp); err != nil {
		os.Remove(tmp)
		return errors.E(op, err)
	}
	if err := os.Chmod(tmp, 0o444); err != nil {
		os.Remove(tmp)
		return errors.E(op, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return errors.E(op, err)
	}
	return nil
}

// snapshotPath fans out a cache key the same way a blob hash does, so
// a source's download-cache shares the CAS's directory layout without
// colliding with content-addressed blobs.
func (s *Store) snapshotPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, "snapshots", h[:2], h[2:]+".json")
}

// PutSnapshot stores data under key, the source's download-cache
// write path (§4.3.1/§4.3.3: "persist the snapshot"). Staging goes
// through cas/.tmp/ like a blob write.
func (s *Store) PutSnapshot(key string, data []byte) error {
	const op = errors.Op("cas.Store.PutSnapshot")

	dest := s.snapshotPath(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.E(op, err)
	}
	tmpDir, err := s.tmpDir()
	if err != nil {
		return errors.E(op, err)
	}
	tmp, err := os.CreateTemp(tmpDir, "snapshot-*")
	if err != nil {
		return errors.E(op, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.E(op, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.E(op, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return errors.E(op, err)
	}
	return nil
}

// GetSnapshot returns the bytes previously stored under key. ok is
// false on a cache miss rather than an error.
func (s *Store) GetSnapshot(key string) (data []byte, ok bool, err error) {
	const op = errors.Op("cas.Store.GetSnapshot")

	data, err = os.ReadFile(s.snapshotPath(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.E(op, err)
	}
	return data, true, nil
}
