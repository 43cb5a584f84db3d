package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epi-analytics/go-covid-analytics/internal/errors"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

func datasetWith(t *testing.T, names ...string) *models.Dataset {
	t.Helper()
	ds := models.NewDataset()
	for _, name := range names {
		ds.MustAddColumn(models.NewTextColumn(name, []string{"x"}))
	}
	return ds
}

func TestValidateAcceptsCompleteSchema(t *testing.T) {
	ds := datasetWith(t, models.ColDate, models.ColLocation, "total_cases")
	require.NoError(t, New(nil, nil).Validate(ds))
}

func TestValidateReportsAllMissingColumns(t *testing.T) {
	err := New(nil, nil).Validate(datasetWith(t, "total_cases"))

	require.Error(t, err)
	assert.True(t, errors.IsSchemaError(err))
	assert.Contains(t, err.Error(), models.ColDate)
	assert.Contains(t, err.Error(), models.ColLocation)
}

func TestValidateIgnoresExtraColumns(t *testing.T) {
	ds := datasetWith(t, models.ColDate, models.ColLocation, "continent", "unexpected_metric")
	require.NoError(t, New(nil, nil).Validate(ds))
}

func TestCheckColumnsFailsLoudOnFirstAbsent(t *testing.T) {
	v := New(nil, nil)
	ds := datasetWith(t, models.ColDate, models.ColLocation, "total_cases")

	require.NoError(t, v.CheckColumns(ds, "total_cases"))

	err := v.CheckColumns(ds, "total_cases", "total_deaths", "new_cases")
	require.Error(t, err)
	assert.True(t, errors.IsMetricUnavailable(err))
	assert.Contains(t, err.Error(), "total_deaths")
}

func TestNewDefaultsToOWIDSchema(t *testing.T) {
	v := New(nil, nil)
	assert.Equal(t, models.DefaultSchema().RequiredColumns(), v.Schema().RequiredColumns())
}
