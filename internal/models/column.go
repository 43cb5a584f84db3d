package models

import (
	"math"
	"strconv"
	"time"
)

// ColumnKind identifies the semantic type of a column's cells.
type ColumnKind int

const (
	// KindText holds free-form string values (location names, ISO codes, notes).
	KindText ColumnKind = iota
	// KindNumeric holds float64 values (case counts, rates, populations).
	KindNumeric
	// KindDate holds calendar dates.
	KindDate
)

// String returns the string representation of the column kind.
func (k ColumnKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumeric:
		return "numeric"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// DateFormat is the canonical date layout at the CSV boundary.
const DateFormat = "2006-01-02"

// Column is a single named column of a Dataset. Exactly one of the value
// slices is populated depending on Kind; Missing marks cells with no value.
type Column struct {
	Name    string
	Kind    ColumnKind
	Strings []string
	Floats  []float64
	Times   []time.Time
	Missing []bool
}

// NewTextColumn creates a text column from raw string cells. Empty strings
// are treated as missing, matching the CSV boundary convention.
func NewTextColumn(name string, values []string) *Column {
	missing := make([]bool, len(values))
	for i, v := range values {
		missing[i] = v == ""
	}
	return &Column{Name: name, Kind: KindText, Strings: values, Missing: missing}
}

// NewNumericColumn creates a numeric column. NaN cells are marked missing.
func NewNumericColumn(name string, values []float64) *Column {
	missing := make([]bool, len(values))
	for i, v := range values {
		missing[i] = math.IsNaN(v)
	}
	return &Column{Name: name, Kind: KindNumeric, Floats: values, Missing: missing}
}

// NewDateColumn creates a date column. Zero times are marked missing.
func NewDateColumn(name string, values []time.Time) *Column {
	missing := make([]bool, len(values))
	for i, v := range values {
		missing[i] = v.IsZero()
	}
	return &Column{Name: name, Kind: KindDate, Times: values, Missing: missing}
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	return len(c.Missing)
}

// MissingCount returns the number of missing cells.
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.Missing {
		if m {
			n++
		}
	}
	return n
}

// MissingFraction returns the fraction of cells that are missing, in [0, 1].
func (c *Column) MissingFraction() float64 {
	if c.Len() == 0 {
		return 0
	}
	return float64(c.MissingCount()) / float64(c.Len())
}

// CellString renders cell i in the CSV boundary format: dates as YYYY-MM-DD,
// numerics as plain decimal text, missing cells as the empty string.
func (c *Column) CellString(i int) string {
	if c.Missing[i] {
		return ""
	}
	switch c.Kind {
	case KindText:
		return c.Strings[i]
	case KindNumeric:
		return strconv.FormatFloat(c.Floats[i], 'f', -1, 64)
	case KindDate:
		return c.Times[i].Format(DateFormat)
	}
	return ""
}

// Float returns the numeric value of cell i and whether it is present.
func (c *Column) Float(i int) (float64, bool) {
	if c.Kind != KindNumeric || c.Missing[i] {
		return 0, false
	}
	return c.Floats[i], true
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	out.Missing = append([]bool(nil), c.Missing...)
	switch c.Kind {
	case KindText:
		out.Strings = append([]string(nil), c.Strings...)
	case KindNumeric:
		out.Floats = append([]float64(nil), c.Floats...)
	case KindDate:
		out.Times = append([]time.Time(nil), c.Times...)
	}
	return out
}

// Select returns a new column containing only the cells at the given row
// indices, in order.
func (c *Column) Select(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, Missing: make([]bool, len(rows))}
	switch c.Kind {
	case KindText:
		out.Strings = make([]string, len(rows))
		for i, r := range rows {
			out.Strings[i] = c.Strings[r]
			out.Missing[i] = c.Missing[r]
		}
	case KindNumeric:
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
			out.Missing[i] = c.Missing[r]
		}
	case KindDate:
		out.Times = make([]time.Time, len(rows))
		for i, r := range rows {
			out.Times[i] = c.Times[r]
			out.Missing[i] = c.Missing[r]
		}
	}
	return out
}
