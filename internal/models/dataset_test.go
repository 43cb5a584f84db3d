package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(n int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestColumnConstructorsMarkMissing(t *testing.T) {
	text := NewTextColumn("continent", []string{"Europe", "", "Asia"})
	assert.Equal(t, 1, text.MissingCount())

	numeric := NewNumericColumn("new_cases", []float64{1, math.NaN(), 3})
	assert.Equal(t, 1, numeric.MissingCount())

	dates := NewDateColumn("date", []time.Time{date(0), {}, date(2)})
	assert.Equal(t, 1, dates.MissingCount())
	assert.InDelta(t, 1.0/3.0, dates.MissingFraction(), 1e-9)
}

func TestColumnCellString(t *testing.T) {
	col := NewNumericColumn("total_cases", []float64{100.5, 150, math.NaN()})
	assert.Equal(t, "100.5", col.CellString(0))
	assert.Equal(t, "150", col.CellString(1))
	assert.Equal(t, "", col.CellString(2))

	dates := NewDateColumn("date", []time.Time{date(0)})
	assert.Equal(t, "2020-01-01", dates.CellString(0))
}

func TestDatasetAddColumnLengthMismatch(t *testing.T) {
	ds := NewDataset()
	require.NoError(t, ds.AddColumn(NewTextColumn("location", []string{"France", "Germany"})))
	err := ds.AddColumn(NewTextColumn("continent", []string{"Europe"}))
	require.Error(t, err)
}

func TestDatasetReplaceColumnKeepsPosition(t *testing.T) {
	ds := NewDataset()
	ds.MustAddColumn(NewTextColumn("date", []string{"2020-01-01"}))
	ds.MustAddColumn(NewTextColumn("location", []string{"France"}))

	require.NoError(t, ds.ReplaceColumn("date", NewDateColumn("date", []time.Time{date(0)})))
	assert.Equal(t, []string{"date", "location"}, ds.ColumnNames())

	col, ok := ds.Column("date")
	require.True(t, ok)
	assert.Equal(t, KindDate, col.Kind)
}

func TestRowKeyIdentity(t *testing.T) {
	ds := NewDataset()
	ds.MustAddColumn(NewTextColumn("location", []string{"France", "France", "Germany"}))
	ds.MustAddColumn(NewNumericColumn("total_cases", []float64{100, 100, 100}))

	assert.Equal(t, ds.RowKey(0), ds.RowKey(1))
	assert.NotEqual(t, ds.RowKey(0), ds.RowKey(2))
}

func TestSortByLocationDate(t *testing.T) {
	ds := NewDataset()
	ds.MustAddColumn(NewDateColumn(ColDate, []time.Time{date(1), date(0), date(0)}))
	ds.MustAddColumn(NewTextColumn(ColLocation, []string{"Germany", "Germany", "France"}))

	sorted := ds.SortByLocationDate()
	assert.Equal(t, "France", sorted.Location(0))
	assert.Equal(t, "Germany", sorted.Location(1))
	assert.Equal(t, date(0), sorted.Date(1))
	assert.Equal(t, date(1), sorted.Date(2))

	// Input order is untouched.
	assert.Equal(t, "Germany", ds.Location(0))
}

func TestLocationGroups(t *testing.T) {
	ds := NewDataset()
	ds.MustAddColumn(NewTextColumn(ColLocation, []string{"France", "France", "Germany", "France"}))

	groups := ds.LocationGroups()
	require.Len(t, groups, 2)
	assert.Equal(t, []int{0, 1, 3}, groups[0])
	assert.Equal(t, []int{2}, groups[1])
}

func TestMaxDateSkipsMissing(t *testing.T) {
	ds := NewDataset()
	ds.MustAddColumn(NewDateColumn(ColDate, []time.Time{date(5), {}, date(2)}))
	assert.Equal(t, date(5), ds.MaxDate())
}

func TestDatasetEqual(t *testing.T) {
	build := func() *Dataset {
		ds := NewDataset()
		ds.MustAddColumn(NewDateColumn(ColDate, []time.Time{date(0)}))
		ds.MustAddColumn(NewNumericColumn("total_cases", []float64{100}))
		return ds
	}
	a, b := build(), build()
	assert.True(t, a.Equal(b))

	col, _ := b.Column("total_cases")
	col.Floats[0] = 200
	assert.False(t, a.Equal(b))
}

func TestRecordOmitsMissingValues(t *testing.T) {
	ds := NewDataset()
	ds.MustAddColumn(NewDateColumn(ColDate, []time.Time{date(0)}))
	ds.MustAddColumn(NewTextColumn(ColLocation, []string{"France"}))
	ds.MustAddColumn(NewNumericColumn("total_cases", []float64{100}))
	ds.MustAddColumn(NewNumericColumn("new_cases", []float64{math.NaN()}))

	rec := ds.Record(0)
	assert.Equal(t, "France", rec.Location)
	assert.Equal(t, 100.0, rec.Values["total_cases"])
	_, present := rec.Values["new_cases"]
	assert.False(t, present)
}

func TestSchemaRecognizesColumns(t *testing.T) {
	s := DefaultSchema()

	assert.True(t, s.IsRecognized("total_cases"))
	assert.True(t, s.IsNumericName("total_cases"))
	assert.True(t, s.IsCountable("new_deaths"))

	// Population is numeric but not a count that clamping applies to.
	assert.True(t, s.IsNumericName("population"))

	// Unrecognized names fall back to keyword heuristics.
	assert.True(t, s.IsNumericName("weekly_cases_smoothed"))
	assert.True(t, s.IsCountable("weekly_cases_smoothed"))
	assert.False(t, s.IsNumericName("continent"))
	assert.Equal(t, []string{"date", "location"}, s.RequiredColumns())
}
