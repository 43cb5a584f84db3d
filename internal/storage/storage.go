// Package storage defines the persistence layer for cleaned observation
// data. Backends store one row per (location, date) pair with the
// recognized metric columns, and provide abstractions that enable
// dependency injection in the pipeline and the CLI.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

// ObservationWriter persists cleaned datasets.
type ObservationWriter interface {
	// StoreDataset upserts every row of a cleaned dataset. Rows are keyed
	// by (location, date); storing the same key twice keeps the later
	// values.
	StoreDataset(ctx context.Context, ds *models.Dataset) error
}

// ObservationReader retrieves stored observations.
type ObservationReader interface {
	// Query retrieves observations matching the request, with pagination
	// and ordering.
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)

	// GetLatest retrieves the most recent observation for a location.
	// Returns nil when the location has no data.
	GetLatest(ctx context.Context, location string) (*models.Record, error)
}

// Manager handles storage lifecycle and operational concerns.
type Manager interface {
	// Initialize prepares the backend. Idempotent.
	Initialize(ctx context.Context) error

	// Close shuts the backend down. The instance must not be used after.
	Close() error

	// GetStats returns operational statistics for monitoring.
	GetStats(ctx context.Context) (*Stats, error)

	HealthChecker
}

// HealthChecker verifies a backend is operational with a lightweight
// probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// FullStorage combines all storage capabilities. Backends implement this
// to plug into the pipeline.
type FullStorage interface {
	ObservationWriter
	ObservationReader
	Manager
}

// QueryRequest defines parameters for querying stored observations.
type QueryRequest struct {
	// Location filters to one location; empty matches all.
	Location string

	// Start is the earliest date to include (inclusive, zero = open).
	Start time.Time

	// End is the latest date to include (inclusive, zero = open).
	End time.Time

	// Limit caps the number of results (0 = no limit).
	Limit int

	// Offset skips results for pagination.
	Offset int

	// OrderBy is "date_asc" (default) or "date_desc". Rows on the same
	// date order by location.
	OrderBy string
}

// QueryResponse contains the results of an observation query.
type QueryResponse struct {
	Rows       []models.Record
	Total      int
	HasMore    bool
	NextOffset int
	QueryTime  time.Duration
}

// Stats provides operational metrics about a storage backend.
type Stats struct {
	TotalRows        int64
	TotalLocations   int
	EarliestData     time.Time
	LatestData       time.Time
	StorageSize      int64
	QueryPerformance map[string]time.Duration
}

// StorageError represents a failed storage operation with enough context
// to debug it.
type StorageError struct {
	Operation string
	Table     string
	Err       error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage operation %s on table %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError creates a StorageError with the provided details.
func NewStorageError(operation, table string, err error) *StorageError {
	return &StorageError{Operation: operation, Table: table, Err: err}
}

// NewQueryError creates a StorageError for query operations.
func NewQueryError(table string, err error) *StorageError {
	return &StorageError{Operation: "query", Table: table, Err: err}
}

// NewInsertError creates a StorageError for insert operations.
func NewInsertError(table string, err error) *StorageError {
	return &StorageError{Operation: "insert", Table: table, Err: err}
}
