// Package analytics computes derived epidemiological metrics and trend
// classifications over a cleaned dataset.
//
// The Calculator and Detector are read-only consumers: they never mutate
// the dataset they are constructed over and every call returns a fresh
// scalar or result set owned by the caller. The two summary ratios
// (mortality rate, case fatality rate) degrade to a neutral 0.0 with a
// logged warning when their columns are absent; explicit per-metric
// queries fail loud with a metric-unavailable error instead.
package analytics

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/epi-analytics/go-covid-analytics/internal/models"
	"github.com/epi-analytics/go-covid-analytics/internal/validator"
)

// DateRange bounds a filter window. Both ends are inclusive; a zero time
// leaves that end open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Series is a per-row derived sequence aligned to the filtered dataset's
// rows. Undefined entries (insufficient history, division by zero, or a
// missing source cell) carry NaN.
type Series struct {
	Dates     []time.Time
	Locations []string
	Values    []float64
}

// Len returns the number of entries in the series.
func (s *Series) Len() int { return len(s.Values) }

// Defined reports whether entry i carries a value.
func (s *Series) Defined(i int) bool { return !math.IsNaN(s.Values[i]) }

// CountryTotal is one location's total for a metric.
type CountryTotal struct {
	Location string
	Value    float64
}

// Comparison is a metric pivoted by date and location. Values is indexed
// [date][location]; cells with no observation carry NaN.
type Comparison struct {
	Metric     string
	Normalized bool
	Dates      []time.Time
	Locations  []string
	Values     [][]float64
}

// Calculator computes metrics over a cleaned dataset. It holds no state
// beyond the dataset reference and is safe for concurrent calls.
type Calculator struct {
	ds        *models.Dataset
	validator *validator.Validator
	logger    *slog.Logger
}

// NewCalculator creates a calculator over a cleaned dataset.
func NewCalculator(ds *models.Dataset, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		ds:        ds,
		validator: validator.New(nil, logger),
		logger:    logger.With("component", "metrics"),
	}
}

// filter applies the country predicate then the date-range predicate, in
// that order. An empty country matches all locations.
func (c *Calculator) filter(country string, dr *DateRange) *models.Dataset {
	keep := make([]int, 0, c.ds.NumRows())
	for i := 0; i < c.ds.NumRows(); i++ {
		if country != "" && c.ds.Location(i) != country {
			continue
		}
		if dr != nil && !dr.Contains(c.ds.Date(i)) {
			continue
		}
		keep = append(keep, i)
	}
	return c.ds.Select(keep)
}

// MortalityRate returns cumulative deaths over cumulative cases, times
// 100, as of the filtered subset's latest date. When country is omitted
// the latest values are summed across all locations so the result is a
// single global snapshot. Returns 0.0 when either column is absent or
// cases total zero; division by zero means "no information" here, not an
// error.
func (c *Calculator) MortalityRate(country string, dr *DateRange) float64 {
	if err := c.validator.CheckColumns(c.ds, "total_cases", "total_deaths"); err != nil {
		c.logger.Warn("mortality rate unavailable, returning neutral value", "error", err)
		return 0.0
	}
	sub := c.filter(country, dr)
	if sub.NumRows() == 0 {
		c.logger.Warn("mortality rate filter matched no rows", "country", country)
		return 0.0
	}

	maxDate := sub.MaxDate()
	casesCol, _ := sub.Column("total_cases")
	deathsCol, _ := sub.Column("total_deaths")
	var cases, deaths float64
	for i := 0; i < sub.NumRows(); i++ {
		if !sub.Date(i).Equal(maxDate) {
			continue
		}
		if v, ok := casesCol.Float(i); ok {
			cases += v
		}
		if v, ok := deathsCol.Float(i); ok {
			deaths += v
		}
	}
	if cases == 0 {
		c.logger.Warn("mortality rate has zero case total", "country", country)
		return 0.0
	}
	return deaths / cases * 100
}

// CaseFatalityRate returns the sum of new deaths over the sum of new
// cases across the filtered window, times 100. Same neutral-zero policy
// as MortalityRate.
func (c *Calculator) CaseFatalityRate(country string, dr *DateRange) float64 {
	if err := c.validator.CheckColumns(c.ds, "new_cases", "new_deaths"); err != nil {
		c.logger.Warn("case fatality rate unavailable, returning neutral value", "error", err)
		return 0.0
	}
	sub := c.filter(country, dr)
	casesCol, _ := sub.Column("new_cases")
	deathsCol, _ := sub.Column("new_deaths")
	var cases, deaths float64
	for i := 0; i < sub.NumRows(); i++ {
		if v, ok := casesCol.Float(i); ok {
			cases += v
		}
		if v, ok := deathsCol.Float(i); ok {
			deaths += v
		}
	}
	if cases == 0 {
		c.logger.Warn("case fatality rate has zero case total", "country", country)
		return 0.0
	}
	return deaths / cases * 100
}

// GrowthRate returns the percentage change of metric against its value
// window periods earlier, computed within each location's series. The
// first window entries of every location are undefined, as is any entry
// whose lagged value is zero or missing.
func (c *Calculator) GrowthRate(metric, country string, window int) (*Series, error) {
	if err := c.validator.CheckColumns(c.ds, metric); err != nil {
		return nil, err
	}
	sub := c.filter(country, nil)
	col, _ := sub.Column(metric)
	s := newSeries(sub)
	for _, rows := range sub.LocationGroups() {
		for pos, r := range rows {
			if pos < window {
				continue
			}
			cur, okCur := col.Float(r)
			lag, okLag := col.Float(rows[pos-window])
			if !okCur || !okLag || lag == 0 {
				continue
			}
			s.Values[r] = (cur - lag) / lag * 100
		}
	}
	return s, nil
}

// DailyAverage returns the trailing rolling mean of metric within each
// location's series. The mean is taken over however many points are
// available near the start of a series rather than padding with
// undefined entries.
func (c *Calculator) DailyAverage(metric, country string, window int) (*Series, error) {
	if err := c.validator.CheckColumns(c.ds, metric); err != nil {
		return nil, err
	}
	sub := c.filter(country, nil)
	col, _ := sub.Column(metric)
	s := newSeries(sub)
	for _, rows := range sub.LocationGroups() {
		for pos, r := range rows {
			start := pos - window + 1
			if start < 0 {
				start = 0
			}
			var sum float64
			n := 0
			for _, rr := range rows[start : pos+1] {
				if v, ok := col.Float(rr); ok {
					sum += v
					n++
				}
			}
			if n > 0 {
				s.Values[r] = sum / float64(n)
			}
		}
	}
	return s, nil
}

// TotalByCountry returns each location's maximum value of metric, which
// for cumulative counters is the latest total, sorted descending by
// value. Ties order by location name so repeated calls agree.
func (c *Calculator) TotalByCountry(metric string) ([]CountryTotal, error) {
	if err := c.validator.CheckColumns(c.ds, metric); err != nil {
		return nil, err
	}
	col, _ := c.ds.Column(metric)
	totals := make(map[string]float64)
	for i := 0; i < c.ds.NumRows(); i++ {
		v, ok := col.Float(i)
		if !ok {
			continue
		}
		loc := c.ds.Location(i)
		if cur, seen := totals[loc]; !seen || v > cur {
			totals[loc] = v
		}
	}
	out := make([]CountryTotal, 0, len(totals))
	for loc, v := range totals {
		out = append(out, CountryTotal{Location: loc, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Location < out[j].Location
	})
	return out, nil
}

// CompareCountries pivots metric by date and location for the named
// countries. With normalize set and a population column present, values
// are reported per million inhabitants; without a population column the
// raw metric is used.
func (c *Calculator) CompareCountries(countries []string, metric string, normalize bool) (*Comparison, error) {
	if err := c.validator.CheckColumns(c.ds, metric); err != nil {
		return nil, err
	}
	col, _ := c.ds.Column(metric)
	popCol, hasPop := c.ds.Column("population")
	normalized := normalize && hasPop
	if normalize && !hasPop {
		c.logger.Warn("population column absent, comparison uses raw values", "metric", metric)
	}

	wanted := make(map[string]int, len(countries))
	for i, loc := range countries {
		wanted[loc] = i
	}

	dateIndex := make(map[time.Time]int)
	var dates []time.Time
	for i := 0; i < c.ds.NumRows(); i++ {
		if _, ok := wanted[c.ds.Location(i)]; !ok {
			continue
		}
		d := c.ds.Date(i)
		if _, seen := dateIndex[d]; !seen {
			dateIndex[d] = len(dates)
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for i, d := range dates {
		dateIndex[d] = i
	}

	values := make([][]float64, len(dates))
	for i := range values {
		row := make([]float64, len(countries))
		for j := range row {
			row[j] = math.NaN()
		}
		values[i] = row
	}
	for i := 0; i < c.ds.NumRows(); i++ {
		ci, ok := wanted[c.ds.Location(i)]
		if !ok {
			continue
		}
		v, ok := col.Float(i)
		if !ok {
			continue
		}
		if normalized {
			pop, ok := popCol.Float(i)
			if !ok || pop == 0 {
				continue
			}
			v = v / pop * 1_000_000
		}
		values[dateIndex[c.ds.Date(i)]][ci] = v
	}

	return &Comparison{
		Metric:     metric,
		Normalized: normalized,
		Dates:      dates,
		Locations:  append([]string(nil), countries...),
		Values:     values,
	}, nil
}

// newSeries allocates an all-undefined series aligned to ds's rows.
func newSeries(ds *models.Dataset) *Series {
	n := ds.NumRows()
	s := &Series{
		Dates:     make([]time.Time, n),
		Locations: make([]string, n),
		Values:    make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.Dates[i] = ds.Date(i)
		s.Locations[i] = ds.Location(i)
		s.Values[i] = math.NaN()
	}
	return s
}
