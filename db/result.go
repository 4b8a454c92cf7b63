package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/nickyhof/AtlasDB/core"
	"github.com/nickyhof/AtlasDB/errs"
)

// Result is the envelope every Execute call returns. Rows is never nil so
// it always serialises as a JSON array.
type Result struct {
	Rows    []core.Row `json:"rows"`
	Success bool       `json:"success"`
	Message string     `json:"message"`

	err *errs.Error
}

func Success(rows []core.Row, message string) Result {
	if rows == nil {
		rows = []core.Row{}
	}
	return Result{Rows: rows, Success: true, Message: message}
}

// Failure projects err into a failed Result. Errors that carry no kind are
// reported as engine errors.
func Failure(err error) Result {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Wrap(errs.KindEngine, "unexpected failure", err)
	}
	return Result{Rows: []core.Row{}, Success: false, Message: e.Error(), err: e}
}

// Err returns the failure behind an unsuccessful Result, nil otherwise.
func (result Result) Err() error {
	if result.err == nil {
		return nil
	}
	return result.err
}

// Kind is the error kind of a failed Result, KindUnknown on success.
func (result Result) Kind() errs.Kind {
	if result.err == nil {
		return errs.KindUnknown
	}
	return result.err.Kind
}

// Columns lists every field present in the rows. primaryKey comes first
// when given, the rest are sorted.
func (result Result) Columns(primaryKey string) []string {
	seen := make(map[string]bool)
	for _, row := range result.Rows {
		for column := range row {
			seen[column] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for column := range seen {
		if column != primaryKey {
			columns = append(columns, column)
		}
	}
	sort.Strings(columns)
	if seen[primaryKey] {
		columns = append([]string{primaryKey}, columns...)
	}
	return columns
}

// Display writes the result the way the CLI shows it: a table of rows, if
// any, followed by the message.
func (result Result) Display(w io.Writer, primaryKey string) {
	if !result.Success {
		fmt.Fprintf(w, "Error: %s\n", result.Message)
		return
	}

	if len(result.Rows) > 0 {
		columns := result.Columns(primaryKey)
		table := NewTable(w)
		table.Header(columns)
		for _, row := range result.Rows {
			cells := make([]string, len(columns))
			for i, column := range columns {
				cells[i] = formatCell(row[column], row, column)
			}
			table.Row(cells)
		}
		table.Render()
	}

	fmt.Fprintln(w, result.Message)
}

func formatCell(value any, row core.Row, column string) string {
	if _, present := row[column]; !present {
		return ""
	}
	if text, ok := core.FormatValue(value); ok {
		return text
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "?"
	}
	return string(encoded)
}
