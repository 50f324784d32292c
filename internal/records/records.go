// Package records is the contract with the external record store: the only
// source of truth. The store offers two operations, fetch a whole table and
// upsert one row. It has no transactions, no foreign keys and no queries.
//
// Rows are flat label -> value maps. Labels are free text ("Client ID",
// "Assigned KAM") and values are untyped until one of the accessors parses
// them.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the record store boundary.
type Gateway interface {
	// FetchTable returns every row of the named table.
	FetchTable(ctx context.Context, table string) ([]Row, error)
	// Upsert writes a full row. The row id (or its business id) decides
	// insert vs update; there is no partial update.
	Upsert(ctx context.Context, table string, row Row) (Row, error)
}

// Row is one flat record.
type Row map[string]any

// FieldID is the stable primary key present on every row.
const FieldID = "id"

// Flatten accepts either the nested `{id, fields: {...}}` shape or an
// already-flat row and returns a flat copy. The outer id wins when the inner
// fields do not carry one.
func Flatten(raw map[string]any) Row {
	if raw == nil {
		return Row{}
	}
	fields, nested := raw["fields"].(map[string]any)
	if !nested {
		return Row(raw).Clone()
	}
	row := make(Row, len(fields)+1)
	for key, value := range fields {
		row[key] = value
	}
	if id, ok := raw[FieldID]; ok && isBlank(row[FieldID]) {
		row[FieldID] = id
	}
	return row
}

func (r Row) Clone() Row {
	cloned := make(Row, len(r))
	for key, value := range r {
		cloned[key] = value
	}
	return cloned
}

// ID returns the row's primary key.
func (r Row) ID() string {
	return r.String(FieldID)
}

// Get returns the first non-blank value among keys.
func (r Row) Get(keys ...string) any {
	for _, key := range keys {
		if value, ok := r[key]; ok && !isBlank(value) {
			return value
		}
	}
	return nil
}

// String returns the first non-blank value among keys as text. Single-element
// linked-record lists are unwrapped.
func (r Row) String(keys ...string) string {
	return toString(r.Get(keys...))
}

// Decimal parses the first non-blank value among keys. Unparseable or
// missing values yield (zero, false).
func (r Row) Decimal(keys ...string) (decimal.Decimal, bool) {
	switch v := r.Get(keys...).(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	default:
		text := strings.TrimSpace(toString(v))
		text = strings.NewReplacer(",", "", "₹", "", "INR", "", " ", "").Replace(text)
		d, err := decimal.NewFromString(text)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
}

// Bool treats true, "true", "yes", "1" and "checked" as true.
func (r Row) Bool(keys ...string) bool {
	switch v := r.Get(keys...).(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		switch strings.ToLower(strings.TrimSpace(toString(v))) {
		case "true", "yes", "y", "1", "checked":
			return true
		}
		return false
	}
}

// Time parses RFC3339 (with or without fractional seconds) or a bare date.
func (r Row) Time(keys ...string) (time.Time, bool) {
	switch v := r.Get(keys...).(type) {
	case time.Time:
		return v, true
	case nil:
		return time.Time{}, false
	default:
		text := strings.TrimSpace(toString(v))
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, text); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	}
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := toString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return toString(anySlice(v))
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case decimal.Decimal:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}
