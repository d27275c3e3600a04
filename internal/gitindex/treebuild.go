package gitindex

import (
	"fmt"
	"sort"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// writeBlob stores content as a new blob object and returns its hash.
func writeBlob(s storer.EncodedObjectStorer, content []byte) (plumbing.Hash, error) {
	obj := s.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.SetEncodedObject(obj)
}

// updateTree rebuilds the tree chain along pathComponents so that the
// leaf holds blobHash, reusing every sibling entry untouched. base may
// be nil (creating new intermediate directories).
func updateTree(s storer.EncodedObjectStorer, base *object.Tree, pathComponents []string, blobHash plumbing.Hash) (plumbing.Hash, error) {
	if len(pathComponents) == 0 {
		return plumbing.ZeroHash, fmt.Errorf("empty path")
	}

	name := pathComponents[0]
	entries := map[string]object.TreeEntry{}
	if base != nil {
		for _, e := range base.Entries {
			entries[e.Name] = e
		}
	}

	if len(pathComponents) == 1 {
		entries[name] = object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: blobHash}
	} else {
		var subTree *object.Tree
		if existing, ok := entries[name]; ok && existing.Mode == filemode.Dir {
			t, err := object.GetTree(s, existing.Hash)
			if err == nil {
				subTree = t
			}
		}
		newSubHash, err := updateTree(s, subTree, pathComponents[1:], blobHash)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries[name] = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: newSubHash}
	}

	return writeTree(s, entries)
}

func writeTree(s storer.EncodedObjectStorer, entries map[string]object.TreeEntry) (plumbing.Hash, error) {
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)

	tree := &object.Tree{}
	for _, n := range names {
		tree.Entries = append(tree.Entries, entries[n])
	}

	obj := s.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.SetEncodedObject(obj)
}

// commitTreeUpdate writes content at pathComponents atop ref's current
// tree, creates a commit with ref's hash as parent, updates the local
// ref in place, and returns the new commit hash.
func commitTreeUpdate(repo *gogit.Repository, ref *plumbing.Reference, pathComponents []string, content []byte, message, authorName, authorEmail string) (plumbing.Hash, error) {
	parentCommit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return plumbing.ZeroHash, err
	}
	baseTree, err := parentCommit.Tree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	blobHash, err := writeBlob(repo.Storer, content)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	newTreeHash, err := updateTree(repo.Storer, baseTree, pathComponents, blobHash)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	now := commitTime()
	commit := &object.Commit{
		Author: object.Signature{
			Name: authorName, Email: authorEmail, When: now,
		},
		Committer: object.Signature{
			Name: authorName, Email: authorEmail, When: now,
		},
		Message:      message,
		TreeHash:     newTreeHash,
		ParentHashes: []plumbing.Hash{ref.Hash()},
	}

	obj := repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	commitHash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	newRef := plumbing.NewHashReference(ref.Name(), commitHash)
	if err := repo.Storer.SetReference(newRef); err != nil {
		return plumbing.ZeroHash, err
	}
	return commitHash, nil
}

// commitTime is overridden in tests; production always stamps wall
// clock time at commit creation.
var commitTime = func() time.Time { return time.Now() }
