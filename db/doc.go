// Package db executes AtlasDB queries.
//
// A Store owns one Connection. The connection opens its engine on first
// use and brings it to the declared schema version; every Execute then
// runs exactly one command inside one transaction scoped to one table.
//
// # Store Usage
//
//	conn := db.NewConnection(openEngine, schema.Default, db.WithLogger(logger))
//	store := db.NewStore(conn, db.Options{}, logger)
//	defer store.Close()
//
//	res := store.Execute(ctx, "INSERT INTO saved_items", map[string]any{
//	    "id": "JP", "type": "Country", "title": "Japan",
//	})
//	res = store.Execute(ctx, "SELECT * FROM saved_items WHERE type = 'Country'")
//	if !res.Success {
//	    // treat as no-op
//	}
//
// # Results
//
// Execute never panics or returns an error. Every outcome is a Result with
// Rows, Success and Message; failures carry an *errs.Error reachable
// through Result.Err.
//
// INSERT and UPDATE are both insert-or-replace by primary key. UPDATE
// accepts a WHERE clause but does not evaluate it. DELETE must name
// exactly one id.
package db
