package models

import "time"

// CoercionOutcome summarizes how a column's type coercion went.
type CoercionOutcome string

const (
	// CoercionSuccess means every non-missing cell parsed.
	CoercionSuccess CoercionOutcome = "success"
	// CoercionPartial means some cells failed to parse and became missing.
	CoercionPartial CoercionOutcome = "partial"
	// CoercionFailed means no cell parsed.
	CoercionFailed CoercionOutcome = "failed"
)

// ColumnCoercion reports the outcome of coercing one column, surfaced to the
// caller instead of being silently swallowed.
type ColumnCoercion struct {
	Column   string          `json:"column"`
	Kind     ColumnKind      `json:"-"`
	KindName string          `json:"kind"`
	Cells    int             `json:"cells"`
	Failures int             `json:"failures"`
	Outcome  CoercionOutcome `json:"outcome"`
}

// FillStrategy names the missing-value strategy applied to a column.
type FillStrategy string

const (
	FillInterpolate  FillStrategy = "interpolate"
	FillZero         FillStrategy = "zero"
	FillMostFrequent FillStrategy = "most_frequent"
	FillUnknown      FillStrategy = "unknown_sentinel"
)

// CleaningReport records everything the cleaner changed during one run.
type CleaningReport struct {
	RowsBefore          int                     `json:"rows_before"`
	RowsAfter           int                     `json:"rows_after"`
	DuplicatesRemoved   int                     `json:"duplicates_removed"`
	InvalidDatesDropped int                     `json:"invalid_dates_dropped"`
	NegativesClamped    int                     `json:"negatives_clamped"`
	DroppedColumns      []string                `json:"dropped_columns,omitempty"`
	Coercions           []ColumnCoercion        `json:"coercions,omitempty"`
	Filled              map[string]FillStrategy `json:"filled,omitempty"`
}

// QualityReport summarizes a dataset for callers that want a quick health
// check before or after cleaning.
type QualityReport struct {
	Rows            int            `json:"rows"`
	Columns         int            `json:"columns"`
	MissingByColumn map[string]int `json:"missing_by_column,omitempty"`
	DuplicateRows   int            `json:"duplicate_rows"`
	DateMin         time.Time      `json:"date_min"`
	DateMax         time.Time      `json:"date_max"`
	Countries       int            `json:"countries"`
}

// Quality computes a QualityReport for the dataset.
func Quality(d *Dataset) *QualityReport {
	rep := &QualityReport{
		Rows:            d.NumRows(),
		Columns:         d.NumColumns(),
		MissingByColumn: make(map[string]int),
	}
	for _, c := range d.Columns() {
		if n := c.MissingCount(); n > 0 {
			rep.MissingByColumn[c.Name] = n
		}
	}

	seen := make(map[string]int, d.NumRows())
	for i := 0; i < d.NumRows(); i++ {
		seen[d.RowKey(i)]++
	}
	for _, n := range seen {
		if n > 1 {
			rep.DuplicateRows += n - 1
		}
	}

	if c, ok := d.Column(ColDate); ok && c.Kind == KindDate {
		for i := 0; i < c.Len(); i++ {
			if c.Missing[i] {
				continue
			}
			t := c.Times[i]
			if rep.DateMin.IsZero() || t.Before(rep.DateMin) {
				rep.DateMin = t
			}
			if t.After(rep.DateMax) {
				rep.DateMax = t
			}
		}
	}
	rep.Countries = len(d.Locations())
	return rep
}
