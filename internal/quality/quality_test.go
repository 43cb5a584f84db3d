package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

func onDay(n int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func coverageDataset(t *testing.T, locations []string, days []int) *models.Dataset {
	t.Helper()
	dates := make([]time.Time, len(days))
	for i, n := range days {
		dates[i] = onDay(n)
	}
	ds := models.NewDataset()
	ds.MustAddColumn(models.NewDateColumn(models.ColDate, dates))
	ds.MustAddColumn(models.NewTextColumn(models.ColLocation, locations))
	return ds
}

func TestDetectGapsCompleteCoverage(t *testing.T) {
	ds := coverageDataset(t,
		[]string{"France", "France", "France"},
		[]int{0, 1, 2})

	covs := NewDetector(nil).DetectGaps(ds)

	require.Len(t, covs, 1)
	assert.True(t, covs[0].Complete())
	assert.Equal(t, 3, covs[0].Expected)
	assert.Equal(t, 3, covs[0].Observed)
	assert.Empty(t, covs[0].Gaps)
}

func TestDetectGapsFindsMissingRuns(t *testing.T) {
	// Days 1-2 and day 5 are absent.
	ds := coverageDataset(t,
		[]string{"France", "France", "France", "France"},
		[]int{0, 3, 4, 6})

	covs := NewDetector(nil).DetectGaps(ds)

	require.Len(t, covs, 1)
	cov := covs[0]
	assert.Equal(t, 7, cov.Expected)
	assert.Equal(t, 4, cov.Observed)
	require.Len(t, cov.Gaps, 2)
	assert.Equal(t, onDay(1), cov.Gaps[0].Start)
	assert.Equal(t, onDay(2), cov.Gaps[0].End)
	assert.Equal(t, 2, cov.Gaps[0].Days)
	assert.Equal(t, onDay(5), cov.Gaps[1].Start)
	assert.Equal(t, onDay(5), cov.Gaps[1].End)
	assert.Equal(t, 1, cov.Gaps[1].Days)
	assert.Equal(t, 3, TotalMissingDays(covs))
}

func TestDetectGapsPerLocation(t *testing.T) {
	ds := coverageDataset(t,
		[]string{"Germany", "France", "Germany", "France"},
		[]int{0, 0, 2, 1})

	covs := NewDetector(nil).DetectGaps(ds)

	require.Len(t, covs, 2)
	assert.Equal(t, "France", covs[0].Location)
	assert.True(t, covs[0].Complete())
	assert.Equal(t, "Germany", covs[1].Location)
	require.Len(t, covs[1].Gaps, 1)
	assert.Equal(t, 1, covs[1].Gaps[0].Days)
}

func TestDetectGapsIgnoresDuplicateDays(t *testing.T) {
	ds := coverageDataset(t,
		[]string{"France", "France", "France"},
		[]int{0, 0, 1})

	covs := NewDetector(nil).DetectGaps(ds)

	require.Len(t, covs, 1)
	assert.Equal(t, 2, covs[0].Observed)
	assert.True(t, covs[0].Complete())
}

func TestDetectGapsSkipsUndatedLocations(t *testing.T) {
	ds := models.NewDataset()
	ds.MustAddColumn(models.NewDateColumn(models.ColDate, []time.Time{{}, onDay(0)}))
	ds.MustAddColumn(models.NewTextColumn(models.ColLocation, []string{"Atlantis", "France"}))

	covs := NewDetector(nil).DetectGaps(ds)

	require.Len(t, covs, 1)
	assert.Equal(t, "France", covs[0].Location)
}
