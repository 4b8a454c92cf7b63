package ps

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/nickyhof/AtlasDB/core"
)

const (
	tableRefPrefix  = "refs/heads/tables/"
	catalogRef      = plumbing.ReferenceName("refs/heads/_catalog")
	catalogFileName = "catalog.json"
)

func tableRef(table string) plumbing.ReferenceName {
	return plumbing.ReferenceName(tableRefPrefix + table)
}

// escapeKey turns a record key into a valid tree entry name.
func escapeKey(key string) string {
	escaped := url.PathEscape(key)
	if strings.HasPrefix(escaped, ".") {
		escaped = "%2E" + escaped[1:]
	}
	return escaped
}

func unescapeKey(name string) (string, error) {
	return url.PathUnescape(name)
}

// encodable is a git object that serializes itself: *object.Tree,
// *object.Commit or rawBlob.
type encodable interface {
	Encode(plumbing.EncodedObject) error
}

// rawBlob is record data stored verbatim as a blob.
type rawBlob []byte

func (b rawBlob) Encode(obj plumbing.EncodedObject) error {
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(b)))
	w, err := obj.Writer()
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// writeObject encodes o into the object store and returns its hash.
func (p *GitEngine) writeObject(what string, o encodable) (plumbing.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	obj := p.repo.Storer.NewEncodedObject()
	if err := o.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode %s: %w", what, err)
	}
	hash, err := p.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store %s: %w", what, err)
	}
	return hash, nil
}

func (p *GitEngine) createBlob(data []byte) (plumbing.Hash, error) {
	return p.writeObject("blob", rawBlob(data))
}

func (p *GitEngine) readBlob(hash plumbing.Hash) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	obj, err := p.repo.Storer.EncodedObject(plumbing.BlobObject, hash)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, err)
	}
	r, err := obj.Reader()
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// resolveRef returns the commit a ref points at, or ZeroHash if the ref
// does not exist yet.
func (p *GitEngine) resolveRef(name plumbing.ReferenceName) (plumbing.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref, err := p.repo.Storer.Reference(name)
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return plumbing.ZeroHash, nil
	case err != nil:
		return plumbing.ZeroHash, fmt.Errorf("resolve %s: %w", name, err)
	}
	return ref.Hash(), nil
}

// treeEntries reads the flat tree of a commit, keyed by entry name.
// Subdirectories are ignored.
func (p *GitEngine) treeEntries(commitHash plumbing.Hash) (map[string]plumbing.Hash, error) {
	entries := make(map[string]plumbing.Hash)
	if commitHash == plumbing.ZeroHash {
		return entries, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	commit, err := object.GetCommit(p.repo.Storer, commitHash)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", commitHash, err)
	}
	tree, err := object.GetTree(p.repo.Storer, commit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("tree of %s: %w", commitHash, err)
	}
	for _, entry := range tree.Entries {
		if entry.Mode != filemode.Dir {
			entries[entry.Name] = entry.Hash
		}
	}
	return entries, nil
}

// tableEntries returns the records of a table at its current head, keyed
// by record key, along with the head commit.
func (p *GitEngine) tableEntries(table string) (map[string]plumbing.Hash, plumbing.Hash, error) {
	head, err := p.resolveRef(tableRef(table))
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}
	named, err := p.treeEntries(head)
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}

	records := make(map[string]plumbing.Hash, len(named))
	for name, hash := range named {
		key, err := unescapeKey(name)
		if err != nil {
			return nil, plumbing.ZeroHash, fmt.Errorf("record name %q in %s: %w", name, table, err)
		}
		records[key] = hash
	}
	return records, head, nil
}

// buildTree stores a flat tree holding one regular file per record.
func (p *GitEngine) buildTree(records map[string]plumbing.Hash) (plumbing.Hash, error) {
	tree := &object.Tree{Entries: make([]object.TreeEntry, 0, len(records))}
	for key, hash := range records {
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: escapeKey(key),
			Mode: filemode.Regular,
			Hash: hash,
		})
	}
	slices.SortFunc(tree.Entries, func(a, b object.TreeEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return p.writeObject("tree", tree)
}

// createCommit commits tree on top of parent as author and moves ref to
// the new commit. A zero parent starts a new history.
func (p *GitEngine) createCommit(ref plumbing.ReferenceName, parent, tree plumbing.Hash, message string, author core.Identity) (Transaction, error) {
	sig := object.Signature{Name: author.Name, Email: author.Email, When: time.Now()}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   message,
		TreeHash:  tree,
	}
	if parent != plumbing.ZeroHash {
		commit.ParentHashes = []plumbing.Hash{parent}
	}

	hash, err := p.writeObject("commit", commit)
	if err != nil {
		return Transaction{}, err
	}

	p.mu.Lock()
	err = p.repo.Storer.SetReference(plumbing.NewHashReference(ref, hash))
	p.mu.Unlock()
	if err != nil {
		return Transaction{}, fmt.Errorf("update %s: %w", ref, err)
	}

	return Transaction{Id: hash.String(), When: sig.When, Author: author.String()}, nil
}
