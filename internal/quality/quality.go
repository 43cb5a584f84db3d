// Package quality inspects cleaned datasets for completeness. The main
// concern is date coverage: epidemiological series are daily, so any
// calendar day between a location's first and last observation that has
// no row is a gap worth surfacing before analysis.
package quality

import (
	"log/slog"
	"sort"
	"time"

	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

const day = 24 * time.Hour

// Gap is a run of consecutive missing calendar days for one location.
type Gap struct {
	Location string    `json:"location"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Days     int       `json:"days"`
}

// Coverage describes how completely one location's date range is
// observed. Expected counts every calendar day from First to Last
// inclusive; Observed counts distinct days that actually have a row.
type Coverage struct {
	Location string    `json:"location"`
	First    time.Time `json:"first"`
	Last     time.Time `json:"last"`
	Expected int       `json:"expected_days"`
	Observed int       `json:"observed_days"`
	Gaps     []Gap     `json:"gaps,omitempty"`
}

// Complete reports whether every expected day is observed.
func (c Coverage) Complete() bool { return c.Observed == c.Expected }

// Detector finds date coverage gaps in a dataset.
type Detector struct {
	logger *slog.Logger
}

func NewDetector(log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{logger: log.With("component", "quality")}
}

// DetectGaps scans every location for missing calendar days. Rows with
// a missing date or location are ignored; locations with no dated rows
// produce no coverage entry. Results are ordered by location name.
func (d *Detector) DetectGaps(ds *models.Dataset) []Coverage {
	var out []Coverage
	for _, group := range ds.LocationGroups() {
		loc := ds.Location(group[0])
		if loc == "" {
			continue
		}
		cov, ok := coverageFor(ds, loc, group)
		if !ok {
			continue
		}
		if !cov.Complete() {
			d.logger.Warn("date coverage gaps detected",
				"location", loc,
				"gaps", len(cov.Gaps),
				"missing_days", cov.Expected-cov.Observed)
		}
		out = append(out, cov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// TotalMissingDays sums the missing days across all coverage entries.
func TotalMissingDays(covs []Coverage) int {
	total := 0
	for _, c := range covs {
		total += c.Expected - c.Observed
	}
	return total
}

func coverageFor(ds *models.Dataset, loc string, rows []int) (Coverage, bool) {
	seen := make(map[time.Time]bool, len(rows))
	var dates []time.Time
	for _, i := range rows {
		t := ds.Date(i)
		if t.IsZero() {
			continue
		}
		t = t.Truncate(day)
		if !seen[t] {
			seen[t] = true
			dates = append(dates, t)
		}
	}
	if len(dates) == 0 {
		return Coverage{}, false
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	first, last := dates[0], dates[len(dates)-1]
	cov := Coverage{
		Location: loc,
		First:    first,
		Last:     last,
		Expected: int(last.Sub(first)/day) + 1,
		Observed: len(dates),
	}
	for i := 1; i < len(dates); i++ {
		missing := int(dates[i].Sub(dates[i-1])/day) - 1
		if missing <= 0 {
			continue
		}
		cov.Gaps = append(cov.Gaps, Gap{
			Location: loc,
			Start:    dates[i-1].Add(day),
			End:      dates[i].Add(-day),
			Days:     missing,
		})
	}
	return cov, true
}
