package ps

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestRevertTable(t *testing.T) {
	engine, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	createTables(t, engine, 1, savedItems, preferences)
	ctx := context.Background()

	put := func(table, key string) {
		t.Helper()
		err := engine.Update(ctx, table, func(tx WriteTx) error {
			return tx.Put(key, []byte(`{"id":"`+key+`"}`))
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	put("saved_items", "1")
	history, _ := engine.History(ctx, "saved_items", 1)
	checkpoint := history[0].Id

	put("saved_items", "2")
	put("preferences", "theme")
	err = engine.Update(ctx, "saved_items", func(tx WriteTx) error {
		return tx.Delete("1")
	})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	txn, err := engine.Revert(ctx, "saved_items", checkpoint)
	if err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if txn.Id == checkpoint {
		t.Error("Expected the revert to be a new transaction")
	}

	if keys := scanKeys(t, engine, "saved_items"); len(keys) != 1 || keys[0] != "1" {
		t.Errorf("Expected only key 1 after revert, got %v", keys)
	}
	if keys := scanKeys(t, engine, "preferences"); len(keys) != 1 {
		t.Errorf("Revert leaked into preferences: %v", keys)
	}

	history, _ = engine.History(ctx, "saved_items", 0)
	// create, put 1, put 2, delete 1, revert
	if len(history) != 5 {
		t.Errorf("Expected 5 transactions, got %d", len(history))
	}
	if history[0].Id != txn.Id {
		t.Errorf("Expected the revert at the head of the history")
	}
}

func TestRevertToHeadIsNoop(t *testing.T) {
	engine, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	createTables(t, engine, 1, savedItems)
	ctx := context.Background()

	history, _ := engine.History(ctx, "saved_items", 1)
	txn, err := engine.Revert(ctx, "saved_items", history[0].Id)
	if err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if txn.Id != history[0].Id {
		t.Errorf("Expected the head transaction back, got %s", txn.Id)
	}
	if after, _ := engine.History(ctx, "saved_items", 0); len(after) != 1 {
		t.Errorf("Expected no new commit, got %d transactions", len(after))
	}
}

func TestRevertUnknownTransaction(t *testing.T) {
	engine, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	createTables(t, engine, 1, savedItems, preferences)
	ctx := context.Background()

	other, _ := engine.History(ctx, "preferences", 1)

	tests := map[string]string{
		"not a hash":         "HEAD~1",
		"short hash":         "abc123",
		"other table's head": other[0].Id,
	}
	for name, id := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Revert(ctx, "saved_items", id)
			if !errors.Is(err, ErrTransactionNotFound) {
				t.Errorf("Expected ErrTransactionNotFound, got %v", err)
			}
		})
	}

	if _, err := engine.Revert(ctx, "countries", other[0].Id); !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("Expected ErrStoreNotFound, got %v", err)
	}
}

func TestBoltIsNotAReverter(t *testing.T) {
	engine, err := NewBoltEngine(filepath.Join(t.TempDir(), "bolt"))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	var e Engine = engine
	if _, ok := e.(Reverter); ok {
		t.Error("bolt engine keeps no history and must not revert")
	}
}
