package ps

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v6/plumbing"
)

func TestEscapeKey(t *testing.T) {
	tests := []string{"1", "a/b", ".hidden", "..", "with space", "ünïcode", "%41"}
	for _, key := range tests {
		name := escapeKey(key)
		if name == "" || name[0] == '.' {
			t.Errorf("escapeKey(%q) = %q is not a valid tree entry name", key, name)
		}
		for _, c := range name {
			if c == '/' {
				t.Errorf("escapeKey(%q) = %q contains a slash", key, name)
			}
		}
		back, err := unescapeKey(name)
		if err != nil || back != key {
			t.Errorf("unescapeKey(%q) = %q, %v; want %q", name, back, err, key)
		}
	}
}

func TestBlobRoundTrip(t *testing.T) {
	p, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	hash, err := p.createBlob([]byte(`{"id":"1"}`))
	if err != nil {
		t.Fatalf("createBlob failed: %v", err)
	}

	data, err := p.readBlob(hash)
	if err != nil {
		t.Fatalf("readBlob failed: %v", err)
	}
	if string(data) != `{"id":"1"}` {
		t.Errorf("Data mismatch: got %s", data)
	}
}

func TestResolveMissingRef(t *testing.T) {
	p, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	hash, err := p.resolveRef(tableRef("nothing"))
	if err != nil {
		t.Fatalf("resolveRef failed: %v", err)
	}
	if hash != plumbing.ZeroHash {
		t.Errorf("Expected zero hash, got %s", hash)
	}
}

func TestTableBranchLayout(t *testing.T) {
	p, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	createTables(t, p, 1, savedItems)

	err = p.Update(context.Background(), "saved_items", func(tx WriteTx) error {
		return tx.Put("a/b", []byte(`{"id":"a/b"}`))
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	head, err := p.resolveRef(tableRef("saved_items"))
	if err != nil || head == plumbing.ZeroHash {
		t.Fatalf("Expected table branch, got %s (%v)", head, err)
	}

	raw, err := p.treeEntries(head)
	if err != nil {
		t.Fatalf("treeEntries failed: %v", err)
	}
	if _, ok := raw["a%2Fb"]; !ok {
		t.Errorf("Expected escaped entry a%%2Fb, got %v", raw)
	}

	catalogHead, _ := p.resolveRef(catalogRef)
	entries, _ := p.treeEntries(catalogHead)
	if _, ok := entries[catalogFileName]; !ok {
		t.Errorf("Expected %s on catalog branch", catalogFileName)
	}
}

func TestFileEngineReopens(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFileGitEngine(dir, testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	createTables(t, p, 1, savedItems)
	err = p.Update(context.Background(), "saved_items", func(tx WriteTx) error {
		return tx.Put("1", []byte(`{"id":"1"}`))
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	p.Close()

	reopened, err := NewFileGitEngine(dir, testIdentity)
	if err != nil {
		t.Fatalf("Failed to reopen engine: %v", err)
	}
	defer reopened.Close()

	version, err := reopened.Version(context.Background())
	if err != nil || version != 1 {
		t.Errorf("Expected version 1, got %d (%v)", version, err)
	}
	if keys := scanKeys(t, reopened, "saved_items"); len(keys) != 1 {
		t.Errorf("Expected 1 record after reopen, got %v", keys)
	}
}
