// Package core provides core types used throughout AtlasDB.
//
// The package defines Table, Index, Row and Identity.
//
// # Identity
//
// Identity is the author recorded on write transactions (the Git commit
// author for the git engine):
//
//	identity := core.Identity{
//	    Name:  "Atlas",
//	    Email: "atlas@localhost",
//	}
//
// # Table Definition
//
// Tables are declared once in code and created during schema upgrade:
//
//	table := core.Table{
//	    Name:       "saved_items",
//	    PrimaryKey: "id",
//	    Indexes:    []core.Index{{Name: "by_type", Column: "type"}},
//	}
//
// # Rows
//
// A Row is any JSON object. Its primary-key value identifies it:
//
//	row, err := core.RowFromParam(map[string]any{"id": "1", "title": "Japan"})
//	key, err := row.Key("id")
package core
