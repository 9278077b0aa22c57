// Package table holds the immutable in-memory dataset a run analyzes:
// named, typed columns of equal length loaded from CSV.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindBoolean     Kind = "boolean"
	KindDatetime    Kind = "datetime"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
)

// categoricalMaxUnique bounds the distinct values a string column may have
// and still be treated as categorical regardless of row count.
const categoricalMaxUnique = 50

// Column is a single named column. Values are stored as their original
// strings; numeric columns also keep parsed floats. Columns are never
// mutated after construction.
type Column struct {
	name    string
	kind    Kind
	raw     []string
	nums    []float64
	missing []bool
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the inferred column kind.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of rows.
func (c *Column) Len() int { return len(c.raw) }

// IsMissing reports whether row i is missing.
func (c *Column) IsMissing(i int) bool { return c.missing[i] }

// Str returns row i as a string ("" when missing).
func (c *Column) Str(i int) string { return c.raw[i] }

// Float returns row i as a float. ok is false for missing values and
// non-numeric columns.
func (c *Column) Float(i int) (v float64, ok bool) {
	if c.nums == nil || c.missing[i] {
		return 0, false
	}
	return c.nums[i], true
}

// Floats returns a copy of the non-missing numeric values.
func (c *Column) Floats() []float64 {
	if c.nums == nil {
		return nil
	}
	out := make([]float64, 0, len(c.nums))
	for i, v := range c.nums {
		if !c.missing[i] {
			out = append(out, v)
		}
	}
	return out
}

// FloatsWithNaN returns a copy of the numeric values with NaN for missing
// rows, keeping row alignment.
func (c *Column) FloatsWithNaN() []float64 {
	out := make([]float64, len(c.raw))
	for i := range out {
		if v, ok := c.Float(i); ok {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Strings returns a copy of the raw values.
func (c *Column) Strings() []string {
	return append([]string(nil), c.raw...)
}

// MissingCount returns the number of missing rows.
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.missing {
		if m {
			n++
		}
	}
	return n
}

// NewStringColumn builds a column from raw strings and infers its kind.
// Missing tokens ("", NA, N/A, null, NaN, None) are recorded as missing.
func NewStringColumn(name string, values []string) *Column {
	c := &Column{
		name:    name,
		raw:     make([]string, len(values)),
		missing: make([]bool, len(values)),
	}
	for i, v := range values {
		v = strings.TrimSpace(v)
		if IsMissingToken(v) {
			c.missing[i] = true
			continue
		}
		c.raw[i] = v
	}
	c.kind = inferKind(c.raw, c.missing)
	if c.kind == KindNumeric {
		c.nums = make([]float64, len(values))
		for i, v := range c.raw {
			if c.missing[i] {
				c.nums[i] = math.NaN()
				continue
			}
			f, _ := parseFloat(v)
			c.nums[i] = f
		}
	}
	return c
}

// NewNumericColumn builds a numeric column. NaN values are missing.
func NewNumericColumn(name string, values []float64) *Column {
	c := &Column{
		name:    name,
		kind:    KindNumeric,
		raw:     make([]string, len(values)),
		nums:    make([]float64, len(values)),
		missing: make([]bool, len(values)),
	}
	for i, v := range values {
		c.nums[i] = v
		if math.IsNaN(v) {
			c.missing[i] = true
			continue
		}
		c.raw[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return c
}

// IsMissingToken reports whether s is one of the recognized missing markers.
func IsMissingToken(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "na", "n/a", "null", "nan", "none":
		return true
	}
	return false
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

var dateLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05",
}

// ParseTime tries the recognized datetime layouts.
func ParseTime(s string) (time.Time, bool) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func inferKind(raw []string, missing []bool) Kind {
	present := 0
	numeric, boolean, dates := true, true, true
	unique := make(map[string]struct{})
	for i, v := range raw {
		if missing[i] {
			continue
		}
		present++
		unique[v] = struct{}{}
		if numeric {
			if _, ok := parseFloat(v); !ok {
				numeric = false
			}
		}
		if boolean && !parseBool(v) {
			boolean = false
		}
		if dates {
			if _, ok := ParseTime(v); !ok {
				dates = false
			}
		}
	}
	switch {
	case present == 0:
		return KindText
	case numeric:
		return KindNumeric
	case boolean:
		return KindBoolean
	case dates:
		return KindDatetime
	case len(unique) <= categoricalMaxUnique || len(unique)*2 <= present:
		return KindCategorical
	default:
		return KindText
	}
}

// Table is an immutable dataset of equal-length named columns.
type Table struct {
	name  string
	rows  int
	cols  []*Column
	index map[string]int
}

// New assembles a table. Columns must share a length and have unique,
// non-empty names.
func New(name string, cols ...*Column) (*Table, error) {
	t := &Table{name: name, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if c.name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := t.index[c.name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.name)
		}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.name, c.Len(), t.rows)
		}
		t.index[c.name] = i
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// Name returns the dataset name (usually the file base name).
func (t *Table) Name() string { return t.name }

// Rows returns the row count.
func (t *Table) Rows() int { return t.rows }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// Columns returns the columns in order. The slice is a copy.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.cols...)
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.name
	}
	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Row returns row i as raw strings.
func (t *Table) Row(i int) []string {
	out := make([]string, len(t.cols))
	for j, c := range t.cols {
		out[j] = c.raw[i]
	}
	return out
}
