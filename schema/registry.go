// Package schema declares the tables AtlasDB knows about and brings an
// engine up to the declared version.
//
// Tables and their primary keys are fixed in code. Adding a table means
// appending it to Default and bumping Default.Version; existing tables are
// never dropped or renamed.
package schema

import (
	"github.com/nickyhof/AtlasDB/core"
	"github.com/nickyhof/AtlasDB/errs"
)

// Registry is a versioned set of table declarations.
type Registry struct {
	Version int
	Tables  []core.Table
}

// Default is the schema of the explorer application.
var Default = Registry{
	Version: 2,
	Tables: []core.Table{
		// version 1
		{
			Name:       "saved_items",
			PrimaryKey: "id",
			Indexes:    []core.Index{{Name: "by_type", Column: "type"}},
		},
		// version 2
		{
			Name:       "search_history",
			PrimaryKey: "id",
			Indexes:    []core.Index{{Name: "by_query", Column: "query"}},
		},
		{
			Name:       "preferences",
			PrimaryKey: "id",
		},
	},
}

// Table looks up a declared table by name.
func (r Registry) Table(name string) (core.Table, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return core.Table{}, false
}

// Names returns the declared table names in declaration order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.Tables))
	for _, t := range r.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Validate checks the declarations for mistakes that would only surface
// at upgrade time.
func (r Registry) Validate() error {
	if r.Version < 1 {
		return errs.Newf(errs.KindInvalidInput, "schema version must be at least 1, got %d", r.Version)
	}

	seen := make(map[string]bool, len(r.Tables))
	for _, t := range r.Tables {
		if t.Name == "" {
			return errs.New(errs.KindInvalidInput, "table name must not be empty")
		}
		if seen[t.Name] {
			return errs.Newf(errs.KindInvalidInput, "table %s declared twice", t.Name)
		}
		seen[t.Name] = true

		if t.PrimaryKey == "" {
			return errs.Newf(errs.KindInvalidInput, "table %s has no primary key", t.Name)
		}

		indexes := make(map[string]bool, len(t.Indexes))
		for _, idx := range t.Indexes {
			if idx.Name == "" || idx.Column == "" {
				return errs.Newf(errs.KindInvalidInput, "table %s has an index without name or column", t.Name)
			}
			if indexes[idx.Name] {
				return errs.Newf(errs.KindInvalidInput, "table %s declares index %s twice", t.Name, idx.Name)
			}
			indexes[idx.Name] = true
		}
	}
	return nil
}
