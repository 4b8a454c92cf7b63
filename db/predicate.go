package db

import (
	"github.com/nickyhof/AtlasDB/core"
	"github.com/nickyhof/AtlasDB/sql"
)

// matchesAll reports whether row satisfies every predicate. Field values
// are compared by their literal text, so 42 matches '42' and true matches
// 'true'. A numeric field also matches any literal naming the same number
// (1 matches '1.0'). A missing field or an object/array value never
// matches.
func matchesAll(row core.Row, predicates []sql.Predicate) bool {
	for _, predicate := range predicates {
		value, ok := row[predicate.Column]
		if !ok || !matches(value, predicate.Value) {
			return false
		}
	}
	return true
}

func matches(value any, literal string) bool {
	text, ok := core.FormatValue(value)
	if !ok {
		return false
	}
	if text == literal {
		return true
	}
	if !core.IsNumber(value) {
		return false
	}
	number, ok := core.CanonicalNumber(literal)
	return ok && number == text
}

func selectAll(table string) sql.SelectCommand {
	return sql.SelectCommand{Table: table}
}
