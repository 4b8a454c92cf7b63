package atlasdb

import (
	"context"
	"testing"

	"github.com/nickyhof/AtlasDB/config"
	"github.com/nickyhof/AtlasDB/db"
	"github.com/nickyhof/AtlasDB/errs"
	"go.uber.org/zap/zaptest"
)

type TestFunc func(t *testing.T, store *db.Store)

// runWithEachEngine runs a test function against every configured engine.
func runWithEachEngine(t *testing.T, testFunc TestFunc) {
	for _, engine := range []string{config.EngineMemory, config.EngineGit, config.EngineBolt} {
		t.Run(engine, func(t *testing.T) {
			cfg := config.Default()
			cfg.Engine = engine
			cfg.DataDir = t.TempDir()

			store, err := Open(cfg, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("Failed to open store: %v", err)
			}
			defer store.Close()
			testFunc(t, store)
		})
	}
}

// TestIntegrationWorkflow walks through the explorer app's use of the store.
func TestIntegrationWorkflow(t *testing.T) {
	runWithEachEngine(t, func(t *testing.T, store *db.Store) {
		ctx := context.Background()

		result := store.Execute(ctx, "INSERT INTO saved_items", map[string]any{"id": "1", "type": "Country", "title": "Japan"})
		if !result.Success || len(result.Rows) != 1 || result.Rows[0]["id"] != "1" {
			t.Fatalf("Unexpected insert result: %+v", result)
		}

		result = store.Execute(ctx, "SELECT * FROM saved_items")
		if !result.Success || len(result.Rows) != 1 || result.Rows[0]["title"] != "Japan" {
			t.Fatalf("Unexpected select result: %+v", result)
		}

		store.Execute(ctx, "INSERT INTO saved_items", map[string]any{"id": "2", "type": "Country", "title": "France"})
		result = store.Execute(ctx, "SELECT * FROM saved_items WHERE type = 'Country' AND title = 'Japan'")
		if !result.Success || len(result.Rows) != 1 || result.Rows[0]["title"] != "Japan" {
			t.Fatalf("Expected only Japan, got %+v", result)
		}

		result = store.Execute(ctx, "DELETE FROM saved_items")
		if result.Success || !errs.IsUnsafeOperation(result.Err()) {
			t.Fatalf("Expected unsafe operation, got %+v", result)
		}

		result = store.Execute(ctx, "DELETE FROM saved_items WHERE id = '1'")
		if !result.Success || len(result.Rows) != 0 {
			t.Fatalf("Unexpected delete result: %+v", result)
		}

		result = store.Execute(ctx, "SELECT * FROM saved_items")
		if len(result.Rows) != 1 || result.Rows[0]["id"] != "2" {
			t.Fatalf("Expected only France to remain, got %+v", result)
		}

		store.Execute(ctx, "INSERT INTO search_history", map[string]any{"id": "s1", "query": "kyoto"})
		store.Execute(ctx, "UPDATE preferences", map[string]any{"id": "theme", "value": "dark"})
		result = store.Execute(ctx, "SELECT * FROM preferences WHERE id = 'theme'")
		if len(result.Rows) != 1 || result.Rows[0]["value"] != "dark" {
			t.Fatalf("Unexpected preferences: %+v", result)
		}
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	for _, engine := range []string{config.EngineGit, config.EngineBolt} {
		t.Run(engine, func(t *testing.T) {
			cfg := config.Default()
			cfg.Engine = engine
			cfg.DataDir = t.TempDir()
			ctx := context.Background()

			store, err := Open(cfg, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("Failed to open store: %v", err)
			}
			result := store.Execute(ctx, "INSERT INTO saved_items", map[string]any{"id": "1", "title": "Japan"})
			if !result.Success {
				t.Fatalf("Insert failed: %s", result.Message)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			reopened, err := Open(cfg, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("Failed to reopen store: %v", err)
			}
			defer reopened.Close()

			result = reopened.Execute(ctx, "SELECT * FROM saved_items WHERE id = '1'")
			if !result.Success || len(result.Rows) != 1 {
				t.Fatalf("Expected row to survive reopen, got %+v", result)
			}
		})
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine = "sqlite"
	if _, err := Open(cfg, nil); err == nil {
		t.Fatal("Expected error for unknown engine")
	}
}

func TestNewMemory(t *testing.T) {
	store := NewMemory(nil)
	defer store.Close()

	if state := store.Connection().State(); state != db.StateUninitialized {
		t.Errorf("Expected lazy open, got state %s", state)
	}
	result := store.Execute(context.Background(), "SELECT * FROM saved_items")
	if !result.Success {
		t.Fatalf("Select failed: %s", result.Message)
	}
	if state := store.Connection().State(); state != db.StateReady {
		t.Errorf("Expected ready, got state %s", state)
	}
}
