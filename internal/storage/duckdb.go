package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

const observationsTable = "observations"

// DuckDBStorage implements FullStorage on DuckDB. The table carries a
// fixed column per recognized metric; datasets with extra columns store
// only the recognized subset, and absent metrics persist as NULL.
type DuckDBStorage struct {
	db      *sql.DB
	dbPath  string
	logger  *slog.Logger
	mu      sync.RWMutex
	metrics []string

	queryMu    sync.Mutex
	queryTimes map[string][]time.Duration
}

// NewDuckDBStorage opens a DuckDB database. dbPath may be ":memory:" or
// a file path for persistent storage.
func NewDuckDBStorage(dbPath string, logger *slog.Logger) (*DuckDBStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, NewStorageError("open", "", fmt.Errorf("failed to open DuckDB database: %w", err))
	}

	// Single writer pattern as recommended for DuckDB.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &DuckDBStorage{
		db:         db,
		dbPath:     dbPath,
		logger:     logger.With("component", "storage", "backend", "duckdb"),
		metrics:    models.DefaultSchema().NumericColumns(),
		queryTimes: make(map[string][]time.Duration),
	}, nil
}

// Initialize creates the observations table. Safe to call repeatedly.
func (d *DuckDBStorage) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info("initializing DuckDB storage", "db_path", d.dbPath)

	var cols strings.Builder
	for _, m := range d.metrics {
		fmt.Fprintf(&cols, "\t\t%s DOUBLE,\n", m)
	}
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		location VARCHAR NOT NULL,
		date DATE NOT NULL,
%s		PRIMARY KEY (location, date)
	)`, observationsTable, cols.String())

	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return NewStorageError("initialize", observationsTable, err)
	}
	d.logger.Info("DuckDB storage initialized")
	return nil
}

// StoreDataset implements ObservationWriter using per-row upserts inside
// a single transaction.
func (d *DuckDBStorage) StoreDataset(ctx context.Context, ds *models.Dataset) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := time.Now()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return NewInsertError(observationsTable, err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(d.metrics)+2)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (location, date, %s) VALUES (%s)",
		observationsTable,
		strings.Join(d.metrics, ", "),
		strings.Join(placeholders, ", "),
	)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return NewInsertError(observationsTable, err)
	}
	defer stmt.Close()

	for i := 0; i < ds.NumRows(); i++ {
		rec := ds.Record(i)
		args := make([]any, 0, len(d.metrics)+2)
		args = append(args, rec.Location, rec.Date)
		for _, m := range d.metrics {
			if v, ok := rec.Values[m]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return NewInsertError(observationsTable, fmt.Errorf("row %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return NewInsertError(observationsTable, err)
	}
	d.recordQueryTime("store", time.Since(start))
	d.logger.Debug("dataset stored", "rows", ds.NumRows())
	return nil
}

// Query implements ObservationReader.
func (d *DuckDBStorage) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	start := time.Now()

	where, args := d.buildFilter(req)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", observationsTable, where)
	if err := d.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, NewQueryError(observationsTable, err)
	}

	order := "date ASC, location ASC"
	if req.OrderBy == "date_desc" {
		order = "date DESC, location ASC"
	}
	query := fmt.Sprintf(
		"SELECT location, date, %s FROM %s%s ORDER BY %s",
		strings.Join(d.metrics, ", "), observationsTable, where, order,
	)
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", req.Limit)
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", req.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewQueryError(observationsTable, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		rec, err := d.scanRecord(rows)
		if err != nil {
			return nil, NewQueryError(observationsTable, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, NewQueryError(observationsTable, err)
	}

	elapsed := time.Since(start)
	d.recordQueryTime("query", elapsed)
	return &QueryResponse{
		Rows:       records,
		Total:      total,
		HasMore:    req.Limit > 0 && req.Offset+len(records) < total,
		NextOffset: req.Offset + len(records),
		QueryTime:  elapsed,
	}, nil
}

// GetLatest implements ObservationReader.
func (d *DuckDBStorage) GetLatest(ctx context.Context, location string) (*models.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT location, date, %s FROM %s WHERE location = ? ORDER BY date DESC LIMIT 1",
		strings.Join(d.metrics, ", "), observationsTable,
	)
	rows, err := d.db.QueryContext(ctx, query, location)
	if err != nil {
		return nil, NewQueryError(observationsTable, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := d.scanRecord(rows)
	if err != nil {
		return nil, NewQueryError(observationsTable, err)
	}
	return &rec, nil
}

// GetStats implements Manager.
func (d *DuckDBStorage) GetStats(ctx context.Context) (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &Stats{QueryPerformance: make(map[string]time.Duration)}
	query := fmt.Sprintf(
		"SELECT COUNT(*), COUNT(DISTINCT location), MIN(date), MAX(date) FROM %s",
		observationsTable,
	)
	var earliest, latest sql.NullTime
	err := d.db.QueryRowContext(ctx, query).Scan(&stats.TotalRows, &stats.TotalLocations, &earliest, &latest)
	if err != nil {
		return nil, NewQueryError(observationsTable, err)
	}
	if earliest.Valid {
		stats.EarliestData = earliest.Time
	}
	if latest.Valid {
		stats.LatestData = latest.Time
	}

	d.queryMu.Lock()
	for op, times := range d.queryTimes {
		var sum time.Duration
		for _, t := range times {
			sum += t
		}
		if len(times) > 0 {
			stats.QueryPerformance[op] = sum / time.Duration(len(times))
		}
	}
	d.queryMu.Unlock()
	return stats, nil
}

// HealthCheck implements HealthChecker with a trivial probe query.
func (d *DuckDBStorage) HealthCheck(ctx context.Context) error {
	var one int
	if err := d.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return NewStorageError("health_check", "", err)
	}
	return nil
}

// Close implements Manager.
func (d *DuckDBStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.db.Close(); err != nil {
		return NewStorageError("close", "", err)
	}
	return nil
}

func (d *DuckDBStorage) buildFilter(req QueryRequest) (string, []any) {
	var clauses []string
	var args []any
	if req.Location != "" {
		clauses = append(clauses, "location = ?")
		args = append(args, req.Location)
	}
	if !req.Start.IsZero() {
		clauses = append(clauses, "date >= ?")
		args = append(args, req.Start)
	}
	if !req.End.IsZero() {
		clauses = append(clauses, "date <= ?")
		args = append(args, req.End)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (d *DuckDBStorage) scanRecord(rows *sql.Rows) (models.Record, error) {
	rec := models.Record{Values: make(map[string]float64, len(d.metrics))}
	dest := make([]any, 0, len(d.metrics)+2)
	dest = append(dest, &rec.Location, &rec.Date)
	vals := make([]sql.NullFloat64, len(d.metrics))
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return models.Record{}, err
	}
	for i, m := range d.metrics {
		if vals[i].Valid {
			rec.Values[m] = vals[i].Float64
		}
	}
	return rec, nil
}

func (d *DuckDBStorage) recordQueryTime(operation string, elapsed time.Duration) {
	d.queryMu.Lock()
	defer d.queryMu.Unlock()
	times := append(d.queryTimes[operation], elapsed)
	if len(times) > 100 {
		times = times[len(times)-100:]
	}
	d.queryTimes[operation] = times
}
