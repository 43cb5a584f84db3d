// Package validator provides the schema gate for incoming datasets. It
// checks mandatory column presence against the explicit schema descriptor
// before the cleaner runs, and offers the per-metric column checks the
// analytics layer uses to fail fast on absent columns. It is a pure check:
// value ranges are the cleaner's job.
package validator

import (
	"log/slog"

	"github.com/epi-analytics/go-covid-analytics/internal/errors"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

// Validator checks datasets against the schema descriptor.
type Validator struct {
	schema *models.Schema
	logger *slog.Logger
}

// New creates a validator over the given schema. A nil schema uses the
// default OWID schema.
func New(schema *models.Schema, logger *slog.Logger) *Validator {
	if schema == nil {
		schema = models.DefaultSchema()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{schema: schema, logger: logger.With("component", "validator")}
}

// Validate checks that every required column is present. It returns a
// schema error listing the missing columns, or nil. No value inspection
// happens here.
func (v *Validator) Validate(ds *models.Dataset) error {
	var missing []string
	for _, name := range v.schema.RequiredColumns() {
		if !ds.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		v.logger.Error("schema validation failed", "missing_columns", missing)
		return errors.NewSchemaError(missing)
	}
	v.logger.Debug("schema validated", "columns", ds.NumColumns(), "rows", ds.NumRows())
	return nil
}

// CheckColumns reports the first of the named columns absent from the
// dataset as a metric-unavailable error. Analytics methods that must fail
// loud call this before touching data.
func (v *Validator) CheckColumns(ds *models.Dataset, names ...string) error {
	for _, name := range names {
		if !ds.HasColumn(name) {
			return errors.NewMetricUnavailable(name)
		}
	}
	return nil
}

// Schema returns the schema descriptor the validator consults.
func (v *Validator) Schema() *models.Schema {
	return v.schema
}
