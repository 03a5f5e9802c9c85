package domain

import (
	"bytes"
	"encoding/json"
)

// Row maps a column name to a scalar cell value: string, float64, int or nil.
type Row map[string]any

// Table is a rectangular dataset built from an uploaded export.
type Table struct {
	Name         string
	Columns      []string
	Rows         []Row
	ModuleColumn string
}

func NewTable(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: append([]string(nil), columns...)}
}

func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Append adds a row; cells for columns the table does not declare are dropped.
func (t *Table) Append(row Row) {
	clean := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		clean[c] = row[c]
	}
	t.Rows = append(t.Rows, clean)
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) []any {
	if t == nil {
		return nil
	}
	out := make([]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, r[name])
	}
	return out
}

// WithRows returns a shallow copy of t holding rows instead of t.Rows.
func (t *Table) WithRows(rows []Row) *Table {
	cp := *t
	cp.Columns = append([]string(nil), t.Columns...)
	cp.Rows = rows
	return &cp
}

// MarshalJSON encodes the table as an array of objects whose keys follow
// column order.
func (t *Table) MarshalJSON() ([]byte, error) {
	if t == nil || len(t.Rows) == 0 {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, c := range t.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(c)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(r[c])
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// AsFloat reports the numeric value of a cell.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
