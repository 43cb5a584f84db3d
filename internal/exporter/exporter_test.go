package exporter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/epi-analytics/go-covid-analytics/internal/errors"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

func exportDataset(t *testing.T) *models.Dataset {
	t.Helper()
	ds := models.NewDataset()
	ds.MustAddColumn(models.NewDateColumn(models.ColDate, []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
	}))
	ds.MustAddColumn(models.NewTextColumn(models.ColLocation, []string{"France", "France"}))
	ds.MustAddColumn(models.NewNumericColumn("total_cases", []float64{100.5, 150}))
	return ds
}

func TestWriteCSVBoundaryFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(nil).WriteCSV(&buf, exportDataset(t)))

	want := "date,location,total_cases\n" +
		"2020-01-01,France,100.5\n" +
		"2020-01-02,France,150\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVMissingValuesAreEmpty(t *testing.T) {
	ds := models.NewDataset()
	ds.MustAddColumn(models.NewTextColumn(models.ColLocation, []string{"France"}))
	ds.MustAddColumn(models.NewNumericColumn("new_cases", []float64{0}))
	col, _ := ds.Column("new_cases")
	col.Missing[0] = true

	var buf bytes.Buffer
	require.NoError(t, New(nil).WriteCSV(&buf, ds))
	assert.Equal(t, "location,new_cases\nFrance,\n", buf.String())
}

func TestExportCSVCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	require.NoError(t, New(nil).ExportCSV(path, exportDataset(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2020-01-01,France,100.5")
}

func TestExportCSVFailureReportsExporter(t *testing.T) {
	// A regular file where the parent directory should be.
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	err := New(nil).ExportCSV(filepath.Join(blocked, "out.csv"), exportDataset(t))
	require.Error(t, err)

	var ce *apperrors.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, apperrors.ErrorTypeExport, ce.Type)
	assert.Equal(t, "exporter", ce.Component)
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quality.json")
	require.NoError(t, New(nil).ExportJSON(path, models.Quality(exportDataset(t))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.EqualValues(t, 2, decoded["rows"])
}
