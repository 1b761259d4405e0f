package selectplus

import (
	"fmt"
	"strings"
)

// Row is one record as returned by a Repository, keyed by column name.
type Row map[string]any

// Label selects the display text of an option row. The zero Label falls back
// to the resolver's default label column.
type Label struct {
	column string
	fn     func(Row) string
}

// LabelColumn reads the label from a column of the row.
func LabelColumn(column string) Label {
	return Label{column: column}
}

// LabelFunc computes the label from the whole row.
func LabelFunc(fn func(Row) string) Label {
	return Label{fn: fn}
}

func (l Label) IsZero() bool {
	return l.column == "" && l.fn == nil
}

// IsFunc reports whether the label is computed rather than read from a column.
func (l Label) IsFunc() bool {
	return l.fn != nil
}

// Column returns the label column, if the label is column-based.
func (l Label) Column() (string, bool) {
	if l.fn != nil || l.column == "" {
		return "", false
	}
	return l.column, true
}

func (l Label) apply(row Row) string {
	if l.fn != nil {
		return l.fn(row)
	}
	return stringify(row[l.column])
}

// Rollup summarizes a set of related rows for index and detail views.
type Rollup struct {
	column string
	fn     func([]Row) string
}

// RollupColumn joins the column values of every row with ", ".
func RollupColumn(column string) Rollup {
	return Rollup{column: column}
}

// RollupFunc computes the summary from the rows.
func RollupFunc(fn func([]Row) string) Rollup {
	return Rollup{fn: fn}
}

func (r Rollup) IsZero() bool {
	return r.column == "" && r.fn == nil
}

func (r Rollup) apply(rows []Row) string {
	if r.fn != nil {
		return r.fn(rows)
	}
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, stringify(row[r.column]))
	}
	return strings.Join(parts, ", ")
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
