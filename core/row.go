package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrNotObject      = errors.New("row must be a JSON object")
	ErrMissingKey     = errors.New("row is missing its primary key")
	ErrUnsupportedKey = errors.New("primary key must be a string or a number")
)

// Row is a single JSON record. Numbers are held as json.Number so a row
// read back from storage compares equal to the row that was written.
type Row map[string]any

// RowFromParam normalises a caller-supplied payload (map, struct,
// json.RawMessage or []byte) into a Row.
func RowFromParam(param any) (Row, error) {
	var data []byte
	switch v := param.(type) {
	case nil:
		return nil, ErrNotObject
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal row: %w", err)
		}
		data = encoded
	}
	return DecodeRow(data)
}

// DecodeRow decodes a stored record.
func DecodeRow(data []byte) (Row, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var row Row
	if err := decoder.Decode(&row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal row: %w", err)
	}
	if row == nil {
		return nil, ErrNotObject
	}
	return row, nil
}

// Encode serialises the row for storage.
func (row Row) Encode() ([]byte, error) {
	return json.Marshal(row)
}

// Key returns the canonical string form of the row's primary-key value.
// Numbers are canonical too, so 1 and 1.0 name the same row.
func (row Row) Key(primaryKey string) (string, error) {
	value, ok := row[primaryKey]
	if !ok || value == nil {
		return "", fmt.Errorf("%w %q", ErrMissingKey, primaryKey)
	}

	switch v := value.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("%w %q", ErrMissingKey, primaryKey)
		}
		return v, nil
	case json.Number, float64, int, int64:
		text, _ := FormatValue(v)
		return text, nil
	default:
		return "", fmt.Errorf("%w: %q is %T", ErrUnsupportedKey, primaryKey, value)
	}
}

// FormatValue renders a scalar field value the way it appears in a query
// literal. Numbers come out in canonical form. Objects and arrays have no
// literal form and report false.
func FormatValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		if text, ok := CanonicalNumber(v.String()); ok {
			return text, true
		}
		return v.String(), true
	case float64:
		return formatFloat(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "null", true
	default:
		return "", false
	}
}

// IsNumber reports whether value is one of the numeric types a Row holds.
func IsNumber(value any) bool {
	switch value.(type) {
	case json.Number, float64, int, int64:
		return true
	default:
		return false
	}
}

// CanonicalNumber returns the single text form of a decimal number: 1,
// 1.0 and 1e0 are all "1", 2.50 is "2.5". ok is false when text is not a
// finite number.
func CanonicalNumber(text string) (string, bool) {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", false
	}
	return formatFloat(f), true
}

// maxExactInteger is the largest magnitude below which every integral
// float64 converts to int64 without loss.
const maxExactInteger = 1 << 53

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < maxExactInteger {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
