// Package table holds the uploaded tabular input as an order-preserving header plus rows.
// Rows are always aligned to the header so that writing a table back never changes
// its column count.
package table

import (
	"strings"
)

// Table is a header and its rows, each row exactly len(Header) wide
type Table struct {
	Header []string
	Rows   [][]string

	// Overflow lists the rows (0-based, excluding the header) that had more cells
	// than the header; their extra cells were dropped.
	Overflow []int

	columns map[string]int
}

// New builds a table, padding short rows and truncating long rows to the header width
func New(header []string, rows [][]string) *Table {
	t := &Table{
		Header:  header,
		Rows:    make([][]string, 0, len(rows)),
		columns: make(map[string]int, len(header)),
	}
	for i, name := range header {
		key := NormalizeColumn(name)
		if _, exists := t.columns[key]; !exists {
			t.columns[key] = i
		}
	}
	for i, row := range rows {
		if len(row) > len(header) && hasContent(row[len(header):]) {
			t.Overflow = append(t.Overflow, i)
		}
		t.Rows = append(t.Rows, align(row, len(header)))
	}
	return t
}

func align(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func hasContent(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}

// NormalizeColumn folds case, treats '_' and '-' as spaces and collapses whitespace
func NormalizeColumn(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// Len returns the number of records
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the index of the named column
func (t *Table) Column(name string) (int, bool) {
	idx, ok := t.columns[NormalizeColumn(name)]
	return idx, ok
}

// Record returns a view of row i
func (t *Table) Record(i int) Record {
	return Record{table: t, row: t.Rows[i]}
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	header := append([]string(nil), t.Header...)
	return New(header, t.Rows)
}

// Record is one row bound to its table's header
type Record struct {
	table *Table
	row   []string
}

// Get returns the value of the named column, or "" when the header lacks it
func (r Record) Get(name string) string {
	if idx, ok := r.table.Column(name); ok {
		return r.row[idx]
	}
	return ""
}

// Has reports whether the header carries the named column
func (r Record) Has(name string) bool {
	_, ok := r.table.Column(name)
	return ok
}

// Set writes the named column. Columns absent from the header are never added.
func (r Record) Set(name, value string) bool {
	idx, ok := r.table.Column(name)
	if !ok {
		return false
	}
	r.row[idx] = value
	return true
}

// At returns the value at a column position, or "" when out of range
func (r Record) At(idx int) string {
	if idx < 0 || idx >= len(r.row) {
		return ""
	}
	return r.row[idx]
}

// Values returns the row slice backing the record
func (r Record) Values() []string {
	return r.row
}
