// Package cleaner implements the data cleaning pipeline that turns raw
// tabular input into the canonical form the analytics layer relies on.
//
// The pipeline runs five steps in fixed order: deduplicate rows, fix column
// types, handle missing values, validate values, and sort. Type fixing must
// precede missing-value handling because interpolation needs numeric cells,
// and value validation follows missing-value handling because clamping acts
// on materialized numeric columns. Malformed individual cells never abort a
// run; they are coerced to missing and resolved by the per-column policy.
package cleaner

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/epi-analytics/go-covid-analytics/internal/models"
	"github.com/epi-analytics/go-covid-analytics/internal/validator"
)

// Config holds the cleaning thresholds. All fractions are in [0, 1].
type Config struct {
	// MaxMissingFraction drops a column entirely when exceeded.
	MaxMissingFraction float64
	// LowMissingThreshold selects interpolation over zero-fill for numeric
	// columns with few missing cells.
	LowMissingThreshold float64
	// CategoricalFillThreshold selects most-frequent fill over the literal
	// "Unknown" sentinel for text columns.
	CategoricalFillThreshold float64
	// Interpolation names the interpolation method. Only "linear" is
	// supported.
	Interpolation string
}

// DefaultConfig returns the default cleaning configuration.
func DefaultConfig() Config {
	return Config{
		MaxMissingFraction:       0.5,
		LowMissingThreshold:      0.05,
		CategoricalFillThreshold: 0.10,
		Interpolation:            "linear",
	}
}

// UnknownSentinel is the fill value for text columns with too many missing
// cells to trust the most frequent value.
const UnknownSentinel = "Unknown"

// Accepted date layouts, most common first. Anything else coerces to missing.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// Cleaner runs the cleaning pipeline. It never mutates its input dataset.
type Cleaner struct {
	cfg       Config
	schema    *models.Schema
	validator *validator.Validator
	logger    *slog.Logger
}

// New creates a cleaner. A nil schema uses the default OWID schema.
func New(cfg Config, schema *models.Schema, logger *slog.Logger) *Cleaner {
	if schema == nil {
		schema = models.DefaultSchema()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		cfg:       cfg,
		schema:    schema,
		validator: validator.New(schema, logger),
		logger:    logger.With("component", "cleaner"),
	}
}

// Clean runs the complete pipeline and returns a new dataset in canonical
// form together with a report of everything that changed. The only hard
// failure is a dataset missing the mandatory schema columns.
func (c *Cleaner) Clean(ctx context.Context, ds *models.Dataset) (*models.Dataset, *models.CleaningReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := c.validator.Validate(ds); err != nil {
		return nil, nil, err
	}

	report := &models.CleaningReport{
		RowsBefore: ds.NumRows(),
		Filled:     make(map[string]models.FillStrategy),
	}
	c.logger.Info("cleaning started", "rows", ds.NumRows(), "columns", ds.NumColumns())

	out := c.removeDuplicates(ds, report)
	out = c.fixTypes(out, report)
	out = c.handleMissing(out, report)
	out = c.validateValues(out, report)
	out = out.SortByLocationDate()

	report.RowsAfter = out.NumRows()
	c.logger.Info("cleaning completed",
		"rows_before", report.RowsBefore,
		"rows_after", report.RowsAfter,
		"duplicates_removed", report.DuplicatesRemoved,
		"invalid_dates_dropped", report.InvalidDatesDropped,
		"negatives_clamped", report.NegativesClamped,
		"columns_dropped", len(report.DroppedColumns))
	return out, report, nil
}

// removeDuplicates drops rows identical across all columns, keeping the
// first occurrence. Partial duplicates with differing metric values are
// distinct observations and survive.
func (c *Cleaner) removeDuplicates(ds *models.Dataset, report *models.CleaningReport) *models.Dataset {
	seen := make(map[string]bool, ds.NumRows())
	keep := make([]int, 0, ds.NumRows())
	for i := 0; i < ds.NumRows(); i++ {
		key := ds.RowKey(i)
		if seen[key] {
			continue
		}
		seen[key] = true
		keep = append(keep, i)
	}
	report.DuplicatesRemoved = ds.NumRows() - len(keep)
	if report.DuplicatesRemoved > 0 {
		c.logger.Info("duplicates removed", "count", report.DuplicatesRemoved)
	}
	return ds.Select(keep)
}

// fixTypes parses the date column into calendar dates and coerces columns
// the schema classifies as numeric into float cells. Unparseable cells
// become missing; each column's outcome is surfaced in the report.
func (c *Cleaner) fixTypes(ds *models.Dataset, report *models.CleaningReport) *models.Dataset {
	out := ds.Clone()

	if col, ok := out.Column(models.ColDate); ok && col.Kind == models.KindText {
		parsed, failures := parseDates(col)
		out.ReplaceColumn(models.ColDate, parsed)
		report.Coercions = append(report.Coercions, coercion(models.ColDate, models.KindDate, col, failures))
	}

	for _, name := range out.ColumnNames() {
		if name == models.ColDate {
			continue
		}
		col, _ := out.Column(name)
		if col.Kind != models.KindText || !c.schema.IsNumericName(name) {
			continue
		}
		parsed, failures := parseNumerics(col)
		out.ReplaceColumn(name, parsed)
		report.Coercions = append(report.Coercions, coercion(name, models.KindNumeric, col, failures))
		if failures > 0 {
			c.logger.Warn("numeric coercion had failures", "column", name, "failures", failures)
		}
	}
	return out
}

func coercion(name string, kind models.ColumnKind, original *models.Column, failures int) models.ColumnCoercion {
	present := original.Len() - original.MissingCount()
	outcome := models.CoercionSuccess
	switch {
	case present > 0 && failures == present:
		outcome = models.CoercionFailed
	case failures > 0:
		outcome = models.CoercionPartial
	}
	return models.ColumnCoercion{
		Column:   name,
		Kind:     kind,
		KindName: kind.String(),
		Cells:    original.Len(),
		Failures: failures,
		Outcome:  outcome,
	}
}

func parseDates(col *models.Column) (*models.Column, int) {
	times := make([]time.Time, col.Len())
	failures := 0
	for i := 0; i < col.Len(); i++ {
		if col.Missing[i] {
			continue
		}
		t, ok := parseDate(strings.TrimSpace(col.Strings[i]))
		if !ok {
			failures++
			continue
		}
		times[i] = t
	}
	return models.NewDateColumn(col.Name, times), failures
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumerics(col *models.Column) (*models.Column, int) {
	floats := make([]float64, col.Len())
	missing := make([]bool, col.Len())
	failures := 0
	for i := 0; i < col.Len(); i++ {
		if col.Missing[i] {
			missing[i] = true
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(col.Strings[i]), 64)
		if err != nil {
			failures++
			missing[i] = true
			continue
		}
		floats[i] = f
	}
	return &models.Column{Name: col.Name, Kind: models.KindNumeric, Floats: floats, Missing: missing}, failures
}

// handleMissing applies the per-column missing-value policy. The decision
// is made once per column from its missing fraction: drop the column when
// above MaxMissingFraction, interpolate numeric columns with few gaps,
// zero-fill other numeric columns, and fill text columns with the most
// frequent value or the "Unknown" sentinel. The date column is exempt:
// its missing cells mark unparseable dates and those rows are dropped in
// the validation step.
func (c *Cleaner) handleMissing(ds *models.Dataset, report *models.CleaningReport) *models.Dataset {
	out := ds.Clone()

	for _, name := range out.ColumnNames() {
		if name == models.ColDate {
			continue
		}
		col, _ := out.Column(name)
		missing := col.MissingCount()
		if missing == 0 {
			continue
		}
		frac := col.MissingFraction()

		if frac > c.cfg.MaxMissingFraction {
			out.DropColumn(name)
			report.DroppedColumns = append(report.DroppedColumns, name)
			c.logger.Info("column dropped", "column", name, "missing_fraction", frac)
			continue
		}

		switch col.Kind {
		case models.KindNumeric:
			if frac < c.cfg.LowMissingThreshold {
				interpolateByLocation(out, col)
				report.Filled[name] = models.FillInterpolate
			} else {
				fillZero(col)
				report.Filled[name] = models.FillZero
			}
		default:
			if frac < c.cfg.CategoricalFillThreshold {
				fillText(col, mostFrequent(col))
				report.Filled[name] = models.FillMostFrequent
			} else {
				fillText(col, UnknownSentinel)
				report.Filled[name] = models.FillUnknown
			}
		}
	}
	return out
}

// interpolateByLocation fills missing numeric cells linearly within each
// location's series, extrapolating flat at both boundaries. Groups with no
// present value at all are left missing.
func interpolateByLocation(ds *models.Dataset, col *models.Column) {
	for _, rows := range ds.LocationGroups() {
		interpolateGroup(col, rows)
	}
}

func interpolateGroup(col *models.Column, rows []int) {
	// Positions within the group that carry a value.
	var defined []int
	for pos, r := range rows {
		if !col.Missing[r] {
			defined = append(defined, pos)
		}
	}
	if len(defined) == 0 {
		return
	}

	for pos, r := range rows {
		if !col.Missing[r] {
			continue
		}
		prev, next := neighbors(defined, pos)
		var v float64
		switch {
		case prev < 0:
			v = col.Floats[rows[defined[0]]]
		case next < 0:
			v = col.Floats[rows[defined[len(defined)-1]]]
		default:
			lo, hi := col.Floats[rows[prev]], col.Floats[rows[next]]
			span := float64(next - prev)
			v = lo + (hi-lo)*float64(pos-prev)/span
		}
		col.Floats[r] = v
		col.Missing[r] = false
	}
}

// neighbors returns the nearest defined positions before and after pos,
// or -1 when none exists on that side.
func neighbors(defined []int, pos int) (prev, next int) {
	prev, next = -1, -1
	i := sort.SearchInts(defined, pos)
	if i > 0 {
		prev = defined[i-1]
	}
	if i < len(defined) {
		next = defined[i]
	}
	return prev, next
}

func fillZero(col *models.Column) {
	for i := range col.Missing {
		if col.Missing[i] {
			col.Floats[i] = 0
			col.Missing[i] = false
		}
	}
}

func fillText(col *models.Column, value string) {
	for i := range col.Missing {
		if col.Missing[i] {
			col.Strings[i] = value
			col.Missing[i] = false
		}
	}
}

// mostFrequent returns the modal value of a text column. Ties resolve to
// the lexicographically smallest value so cleaning stays deterministic.
func mostFrequent(col *models.Column) string {
	counts := make(map[string]int)
	for i := 0; i < col.Len(); i++ {
		if !col.Missing[i] {
			counts[col.Strings[i]]++
		}
	}
	best, bestN := UnknownSentinel, 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

// validateValues clamps negative values to zero in count columns and drops
// rows whose date failed to parse.
func (c *Cleaner) validateValues(ds *models.Dataset, report *models.CleaningReport) *models.Dataset {
	out := ds.Clone()

	for _, col := range out.Columns() {
		if col.Kind != models.KindNumeric || !c.schema.IsCountable(col.Name) {
			continue
		}
		clamped := 0
		for i := 0; i < col.Len(); i++ {
			if !col.Missing[i] && col.Floats[i] < 0 {
				col.Floats[i] = 0
				clamped++
			}
		}
		if clamped > 0 {
			report.NegativesClamped += clamped
			c.logger.Info("negative values corrected", "column", col.Name, "count", clamped)
		}
	}

	if dateCol, ok := out.Column(models.ColDate); ok && dateCol.Kind == models.KindDate {
		keep := make([]int, 0, out.NumRows())
		for i := 0; i < out.NumRows(); i++ {
			if !dateCol.Missing[i] {
				keep = append(keep, i)
			}
		}
		if dropped := out.NumRows() - len(keep); dropped > 0 {
			report.InvalidDatesDropped = dropped
			c.logger.Info("invalid dates removed", "count", dropped)
			out = out.Select(keep)
		}
	}
	return out
}
