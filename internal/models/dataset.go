// Package models provides the tabular data model for COVID-19 observations.
// A Dataset is an ordered, column-oriented table with a dynamic column set;
// the schema descriptor maps recognized column names to semantic kinds and
// drives validation, type coercion, and value clamping.
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ColDate and ColLocation are the mandatory columns every dataset must carry.
const (
	ColDate     = "date"
	ColLocation = "location"
)

// Dataset is an in-memory table of (location, date) observations.
// Datasets are built fresh per pipeline run; transformations return new
// instances and never mutate their input.
type Dataset struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{index: make(map[string]int)}
}

// AddColumn appends a column to the dataset. All columns must have the same
// length; the first column added fixes the row count.
func (d *Dataset) AddColumn(c *Column) error {
	if _, exists := d.index[c.Name]; exists {
		return fmt.Errorf("duplicate column %q", c.Name)
	}
	if len(d.cols) > 0 && c.Len() != d.rows {
		return fmt.Errorf("column %q has %d rows, dataset has %d", c.Name, c.Len(), d.rows)
	}
	if len(d.cols) == 0 {
		d.rows = c.Len()
	}
	d.index[c.Name] = len(d.cols)
	d.cols = append(d.cols, c)
	return nil
}

// MustAddColumn appends a column and panics on error. Intended for
// construction sites where column names are statically known.
func (d *Dataset) MustAddColumn(c *Column) {
	if err := d.AddColumn(c); err != nil {
		panic(err)
	}
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int { return d.rows }

// NumColumns returns the number of columns.
func (d *Dataset) NumColumns() int { return len(d.cols) }

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.cols))
	for i, c := range d.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or false if absent.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.cols[i], true
}

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Columns returns the columns in order.
func (d *Dataset) Columns() []*Column { return d.cols }

// DropColumn removes the named column. Returns false if it does not exist.
func (d *Dataset) DropColumn(name string) bool {
	i, ok := d.index[name]
	if !ok {
		return false
	}
	d.cols = append(d.cols[:i], d.cols[i+1:]...)
	delete(d.index, name)
	for j := i; j < len(d.cols); j++ {
		d.index[d.cols[j].Name] = j
	}
	return true
}

// ReplaceColumn swaps the named column for a new one of the same length,
// keeping its position. The new column may have a different kind.
func (d *Dataset) ReplaceColumn(name string, c *Column) error {
	i, ok := d.index[name]
	if !ok {
		return fmt.Errorf("column %q not found", name)
	}
	if c.Len() != d.rows {
		return fmt.Errorf("column %q has %d rows, dataset has %d", c.Name, c.Len(), d.rows)
	}
	if c.Name != name {
		delete(d.index, name)
		d.index[c.Name] = i
	}
	d.cols[i] = c
	return nil
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := NewDataset()
	for _, c := range d.cols {
		out.MustAddColumn(c.Clone())
	}
	return out
}

// Select returns a new dataset containing only the given row indices, in order.
func (d *Dataset) Select(rows []int) *Dataset {
	out := NewDataset()
	for _, c := range d.cols {
		out.MustAddColumn(c.Select(rows))
	}
	return out
}

// RowKey renders row i as a single string spanning every column, used for
// full-row identity comparisons. The unit separator keeps adjacent cells
// from colliding.
func (d *Dataset) RowKey(i int) string {
	parts := make([]string, len(d.cols))
	for j, c := range d.cols {
		parts[j] = c.CellString(i)
	}
	return strings.Join(parts, "\x1f")
}

// Location returns the location of row i, or "" if the column is absent or
// the cell missing.
func (d *Dataset) Location(i int) string {
	c, ok := d.Column(ColLocation)
	if !ok || c.Kind != KindText || c.Missing[i] {
		return ""
	}
	return c.Strings[i]
}

// Date returns the date of row i, or the zero time if absent or missing.
func (d *Dataset) Date(i int) time.Time {
	c, ok := d.Column(ColDate)
	if !ok || c.Kind != KindDate || c.Missing[i] {
		return time.Time{}
	}
	return c.Times[i]
}

// MaxDate returns the latest present date in the dataset, or the zero time
// when no dates are present.
func (d *Dataset) MaxDate() time.Time {
	c, ok := d.Column(ColDate)
	if !ok || c.Kind != KindDate {
		return time.Time{}
	}
	var max time.Time
	for i := 0; i < c.Len(); i++ {
		if !c.Missing[i] && c.Times[i].After(max) {
			max = c.Times[i]
		}
	}
	return max
}

// SortByLocationDate returns a new dataset with rows sorted ascending by
// (location, date). Missing values sort first. The sort is stable so ties
// keep their input order.
func (d *Dataset) SortByLocationDate() *Dataset {
	rows := make([]int, d.rows)
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		la, lb := d.Location(rows[a]), d.Location(rows[b])
		if la != lb {
			return la < lb
		}
		return d.Date(rows[a]).Before(d.Date(rows[b]))
	})
	return d.Select(rows)
}

// Equal reports whether two datasets have identical columns, kinds, and cell
// values. Used by tests to assert canonical-form idempotence.
func (d *Dataset) Equal(other *Dataset) bool {
	if other == nil || d.rows != other.rows || len(d.cols) != len(other.cols) {
		return false
	}
	for i, c := range d.cols {
		oc := other.cols[i]
		if c.Name != oc.Name || c.Kind != oc.Kind {
			return false
		}
		for r := 0; r < d.rows; r++ {
			if c.Missing[r] != oc.Missing[r] {
				return false
			}
			if !c.Missing[r] && c.CellString(r) != oc.CellString(r) {
				return false
			}
		}
	}
	return true
}

// Locations returns the distinct present locations in first-seen order.
func (d *Dataset) Locations() []string {
	c, ok := d.Column(ColLocation)
	if !ok || c.Kind != KindText {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for i := 0; i < c.Len(); i++ {
		if c.Missing[i] {
			continue
		}
		if !seen[c.Strings[i]] {
			seen[c.Strings[i]] = true
			out = append(out, c.Strings[i])
		}
	}
	return out
}

// LocationGroups returns row indices grouped by location, preserving row
// order within each group and first-seen group order.
func (d *Dataset) LocationGroups() [][]int {
	c, ok := d.Column(ColLocation)
	if !ok || c.Kind != KindText {
		all := make([]int, d.rows)
		for i := range all {
			all[i] = i
		}
		return [][]int{all}
	}
	order := make(map[string]int)
	var groups [][]int
	for i := 0; i < c.Len(); i++ {
		loc := ""
		if !c.Missing[i] {
			loc = c.Strings[i]
		}
		gi, ok := order[loc]
		if !ok {
			gi = len(groups)
			order[loc] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], i)
	}
	return groups
}

// Record is a row view used at the storage and export boundaries: the two
// key fields plus every present numeric cell.
type Record struct {
	Location string
	Date     time.Time
	Values   map[string]float64
}

// Record materializes row i as a Record.
func (d *Dataset) Record(i int) Record {
	rec := Record{
		Location: d.Location(i),
		Date:     d.Date(i),
		Values:   make(map[string]float64),
	}
	for _, c := range d.cols {
		if c.Kind != KindNumeric || c.Missing[i] {
			continue
		}
		rec.Values[c.Name] = c.Floats[i]
	}
	return rec
}
