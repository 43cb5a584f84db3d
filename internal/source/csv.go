package source

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/epi-analytics/go-covid-analytics/internal/errors"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

// ReadCSV parses comma-separated tabular data into a dataset of text
// columns. The first row is the header; empty cells mark missing values.
// A UTF-8 byte order mark on the first header cell is stripped. Type
// repair is the cleaner's job, so every column comes back as text.
func ReadCSV(r io.Reader) (*models.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperrors.NewLoadError("read_csv", fmt.Errorf("empty input"))
	}
	if err != nil {
		return nil, apperrors.NewLoadError("read_csv", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	cells := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewLoadError("read_csv", err)
		}
		for i := range header {
			v := ""
			if i < len(record) {
				v = record[i]
			}
			cells[i] = append(cells[i], v)
		}
	}

	ds := models.NewDataset()
	for i, name := range header {
		if name == "" {
			continue
		}
		if err := ds.AddColumn(models.NewTextColumn(name, cells[i])); err != nil {
			return nil, apperrors.NewLoadError("read_csv", err)
		}
	}
	return ds, nil
}

// FromCSV loads a dataset from a CSV file on disk.
func FromCSV(path string) (*models.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewLoadError("read_file", err)
	}
	return ReadCSV(bytes.NewReader(data))
}
