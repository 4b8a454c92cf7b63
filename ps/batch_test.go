package ps

import (
	"context"
	"testing"
)

func TestWriteBufferSeesOwnWrites(t *testing.T) {
	engine, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	createTables(t, engine, 1, savedItems)
	ctx := context.Background()

	err = engine.Update(ctx, "saved_items", func(tx WriteTx) error {
		return tx.Put("1", []byte(`{"id":"1"}`))
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	err = engine.Update(ctx, "saved_items", func(tx WriteTx) error {
		if err := tx.Put("2", []byte(`{"id":"2"}`)); err != nil {
			return err
		}
		if err := tx.Delete("1"); err != nil {
			return err
		}

		if _, exists, _ := tx.Get("1"); exists {
			t.Error("Expected buffered delete to hide record 1")
		}
		data, exists, _ := tx.Get("2")
		if !exists || string(data) != `{"id":"2"}` {
			t.Errorf("Expected buffered record 2, got %s", data)
		}

		var keys []string
		tx.Scan(func(key string, value []byte) error {
			keys = append(keys, key)
			return nil
		})
		if len(keys) != 1 || keys[0] != "2" {
			t.Errorf("Expected scan to see only 2, got %v", keys)
		}

		if buf, ok := tx.(*writeBuffer); !ok || buf.OperationCount() != 2 {
			t.Errorf("Expected 2 buffered operations")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func TestWriteBufferRollback(t *testing.T) {
	base := &gitReadTx{table: savedItems}
	tb := newWriteBuffer(base)

	if err := tb.Put("1", []byte(`{}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	tb.Rollback()

	if err := tb.Put("2", []byte(`{}`)); err == nil {
		t.Error("Expected error writing to a rolled back buffer")
	}
	if tb.OperationCount() != 0 {
		t.Errorf("Expected 0 operations after rollback, got %d", tb.OperationCount())
	}
}

func TestWriteBufferRejectsEmptyKey(t *testing.T) {
	tb := newWriteBuffer(&gitReadTx{table: savedItems})
	if err := tb.Put("", []byte(`{}`)); err == nil {
		t.Error("Expected error for empty key")
	}
}

func TestReadOnlyUpdateCreatesNoCommit(t *testing.T) {
	engine, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	createTables(t, engine, 1, savedItems)
	ctx := context.Background()

	before, _ := engine.History(ctx, "saved_items", 0)
	err = engine.Update(ctx, "saved_items", func(tx WriteTx) error {
		_, _, err := tx.Get("1")
		return err
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	after, _ := engine.History(ctx, "saved_items", 0)

	if len(after) != len(before) {
		t.Errorf("Expected no new commit, had %d now %d", len(before), len(after))
	}
}
