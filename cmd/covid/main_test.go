package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epi-analytics/go-covid-analytics/internal/analytics"
	"github.com/epi-analytics/go-covid-analytics/internal/config"
	"github.com/epi-analytics/go-covid-analytics/internal/exporter"
	"github.com/epi-analytics/go-covid-analytics/internal/logger"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

func testCLI(t *testing.T) *CLI {
	t.Helper()
	cfg := config.DefaultConfig()
	logs, err := logger.NewManager(cfg.Logging)
	require.NoError(t, err)
	return &CLI{
		config:   cfg,
		logs:     logs,
		exporter: exporter.New(logs.Logger()),
	}
}

func franceCSV(t *testing.T) string {
	t.Helper()
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, 10)
	locations := make([]string, 10)
	cases := make([]float64, 10)
	deaths := make([]float64, 10)
	for i := 0; i < 10; i++ {
		dates[i] = start.AddDate(0, 0, i)
		locations[i] = "France"
		cases[i] = float64(100 + 50*i)
		deaths[i] = float64(10 + 5*i)
	}
	ds := models.NewDataset()
	ds.MustAddColumn(models.NewDateColumn(models.ColDate, dates))
	ds.MustAddColumn(models.NewTextColumn(models.ColLocation, locations))
	ds.MustAddColumn(models.NewNumericColumn("total_cases", cases))
	ds.MustAddColumn(models.NewNumericColumn("total_deaths", deaths))

	path := filepath.Join(t.TempDir(), "cleaned.csv")
	require.NoError(t, exporter.New(nil).ExportCSV(path, ds))
	return path
}

func TestLoadDatasetRepairsColumnTypes(t *testing.T) {
	cli := testCLI(t)

	ds, err := cli.loadDataset(context.Background(), franceCSV(t))
	require.NoError(t, err)

	dateCol, ok := ds.Column(models.ColDate)
	require.True(t, ok)
	assert.Equal(t, models.KindDate, dateCol.Kind)
	casesCol, ok := ds.Column("total_cases")
	require.True(t, ok)
	assert.Equal(t, models.KindNumeric, casesCol.Kind)
}

func TestMetricsOverExportedCSV(t *testing.T) {
	cli := testCLI(t)

	ds, err := cli.loadDataset(context.Background(), franceCSV(t))
	require.NoError(t, err)

	calc := analytics.NewCalculator(ds, cli.logs.Logger())
	assert.InDelta(t, 10.0, calc.MortalityRate("France", nil), 1e-9)
}

func TestTrendOverExportedCSV(t *testing.T) {
	cli := testCLI(t)

	ds, err := cli.loadDataset(context.Background(), franceCSV(t))
	require.NoError(t, err)

	det := analytics.NewDetector(ds, analytics.DefaultDetectorConfig(), nil)
	summary, err := det.Summary("total_cases", "France")
	require.NoError(t, err)
	assert.Equal(t, analytics.TrendIncreasing, summary.Trend)
}

func TestLoadDatasetRequiresInput(t *testing.T) {
	cli := testCLI(t)
	_, err := cli.loadDataset(context.Background(), "")
	require.Error(t, err)
}
