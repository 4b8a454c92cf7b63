package ps

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nickyhof/AtlasDB/core"
)

func TestGitHistory(t *testing.T) {
	engine, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	createTables(t, engine, 1, savedItems, preferences)
	ctx := context.Background()

	for _, key := range []string{"1", "2", "3"} {
		err := engine.Update(ctx, "saved_items", func(tx WriteTx) error {
			return tx.Put(key, []byte(`{}`))
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	history, err := engine.History(ctx, "saved_items", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	// Three writes on top of the creating commit.
	if len(history) != 4 {
		t.Fatalf("Expected 4 transactions, got %d", len(history))
	}
	if history[0].Author != "test <test@test.com>" {
		t.Errorf("Unexpected author: %s", history[0].Author)
	}
	if !strings.HasPrefix(history[0].Message, "saved_items: 1 write(s)") {
		t.Errorf("Unexpected message: %q", history[0].Message)
	}
	if !history[0].When.After(history[3].When) && !history[0].When.Equal(history[3].When) {
		t.Errorf("Expected newest first")
	}

	limited, err := engine.History(ctx, "saved_items", 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(limited) != 2 || limited[0].Id != history[0].Id {
		t.Errorf("Expected the two newest transactions, got %v", limited)
	}

	other, _ := engine.History(ctx, "preferences", 0)
	if len(other) != 1 {
		t.Errorf("Expected preferences to keep its own history, got %d", len(other))
	}
}

func TestWithAuthorOverridesCommitter(t *testing.T) {
	engine, err := NewMemoryGitEngine(testIdentity)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	createTables(t, engine, 1, savedItems)

	ctx := WithAuthor(context.Background(), core.Identity{Name: "Ana", Email: "ana@example.com"})
	err = engine.Update(ctx, "saved_items", func(tx WriteTx) error {
		return tx.Put("1", []byte(`{}`))
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	history, _ := engine.History(context.Background(), "saved_items", 2)
	if history[0].Author != "Ana <ana@example.com>" {
		t.Errorf("Expected the context author, got %s", history[0].Author)
	}
	// The creating commit belongs to the engine identity.
	if history[1].Author != "test <test@test.com>" {
		t.Errorf("Expected the engine identity, got %s", history[1].Author)
	}
}

func TestBoltHistoryIsEmpty(t *testing.T) {
	engine, err := NewBoltEngine(filepath.Join(t.TempDir(), "bolt"))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()
	createTables(t, engine, 1, savedItems)

	err = engine.Update(context.Background(), "saved_items", func(tx WriteTx) error {
		return tx.Put("1", []byte(`{"id":"1"}`))
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	for _, limit := range []int{0, 1, 10} {
		history, err := engine.History(context.Background(), "saved_items", limit)
		if err != nil {
			t.Fatalf("History(%d) failed: %v", limit, err)
		}
		if history == nil || len(history) != 0 {
			t.Errorf("History(%d): expected empty non-nil history, got %v", limit, history)
		}
	}

	if _, err := engine.History(context.Background(), "missing", 10); !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("Expected ErrStoreNotFound, got %v", err)
	}
}
