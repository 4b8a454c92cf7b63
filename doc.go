// Package atlasdb is the embedded record store of the explorer app.
//
// AtlasDB keeps saved items, search history and preferences in a small set
// of tables declared in code. Each table is keyed by a primary key and
// queried through a minimal SQL subset; every call returns a uniform
// Result instead of an error.
//
// # Quick Start
//
// Create an in-memory store:
//
//	store := atlasdb.NewMemory(logger)
//	defer store.Close()
//
//	store.Execute(ctx, "INSERT INTO saved_items", map[string]any{
//	    "id": "1", "type": "Country", "title": "Japan",
//	})
//	res := store.Execute(ctx, "SELECT * FROM saved_items WHERE type = 'Country'")
//
// Or one backed by disk, as configured:
//
//	cfg, _ := config.Load("atlas.yaml")
//	store, err := atlasdb.Open(cfg, logger)
//
// # Supported SQL
//
//	SELECT * FROM <table> [WHERE <col> = '<val>' [AND <col> = '<val>']*]
//	INSERT INTO <table>             -- row in params[0], insert-or-replace
//	UPDATE <table> [WHERE ...]      -- row in params[0], WHERE is not evaluated
//	DELETE FROM <table> WHERE id = '<val>'
//
// There are no joins, ranges, OR predicates or aggregates, and every
// statement runs in its own single-table transaction.
//
// # Engines
//
// The git engine keeps every table on its own branch with one commit per
// write, so each table has a browsable history. The bolt engine keeps
// every table in its own bbolt file. The memory engine is the git engine on an
// in-memory repository.
package atlasdb
