// Package exporter writes datasets and analytics results to flat files
// at the pipeline boundary. CSV output uses the boundary format: a
// header row, comma separation, dates as YYYY-MM-DD, numerics as plain
// decimal text, and missing values as empty fields.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/epi-analytics/go-covid-analytics/internal/errors"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

// Exporter writes pipeline output to disk.
type Exporter struct {
	logger *slog.Logger
}

// New creates an exporter.
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger.With("component", "exporter")}
}

// WriteCSV writes a dataset to w in the boundary format.
func (e *Exporter) WriteCSV(w io.Writer, ds *models.Dataset) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(ds.ColumnNames()); err != nil {
		return apperrors.NewExportError("write_csv", err)
	}
	cols := ds.Columns()
	row := make([]string, len(cols))
	for i := 0; i < ds.NumRows(); i++ {
		for j, col := range cols {
			row[j] = col.CellString(i)
		}
		if err := writer.Write(row); err != nil {
			return apperrors.NewExportError("write_csv", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportCSV writes a dataset to path, creating parent directories as
// needed.
func (e *Exporter) ExportCSV(path string, ds *models.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewExportError("export_csv", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewExportError("export_csv", err)
	}
	defer f.Close()

	if err := e.WriteCSV(f, ds); err != nil {
		return err
	}
	e.logger.Info("dataset exported", "path", path, "rows", ds.NumRows())
	return nil
}

// WriteJSON writes any analytics result to w as indented JSON.
func (e *Exporter) WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return apperrors.NewExportError("write_json", err)
	}
	return nil
}

// ExportJSON writes an analytics result to path as indented JSON.
func (e *Exporter) ExportJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewExportError("export_json", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewExportError("export_json", err)
	}
	defer f.Close()

	if err := e.WriteJSON(f, v); err != nil {
		return err
	}
	e.logger.Info("result exported", "path", path)
	return nil
}
