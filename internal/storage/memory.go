package storage

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

// MemoryStorage implements FullStorage with an in-memory map. It is the
// default backend for interactive runs and tests; all operations are
// safe for concurrent use.
type MemoryStorage struct {
	mu     sync.RWMutex
	rows   map[observationKey]models.Record
	logger *slog.Logger

	queryMu    sync.Mutex
	queryTimes map[string][]time.Duration
}

type observationKey struct {
	location string
	date     time.Time
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage(logger *slog.Logger) *MemoryStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStorage{
		rows:       make(map[observationKey]models.Record),
		logger:     logger.With("component", "storage", "backend", "memory"),
		queryTimes: make(map[string][]time.Duration),
	}
}

// Initialize implements Manager. Nothing to prepare for the memory
// backend.
func (m *MemoryStorage) Initialize(ctx context.Context) error {
	return ctx.Err()
}

// StoreDataset implements ObservationWriter.
func (m *MemoryStorage) StoreDataset(ctx context.Context, ds *models.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	m.mu.Lock()
	for i := 0; i < ds.NumRows(); i++ {
		rec := ds.Record(i)
		m.rows[observationKey{location: rec.Location, date: rec.Date}] = rec
	}
	total := len(m.rows)
	m.mu.Unlock()

	m.recordQueryTime("store", time.Since(start))
	m.logger.Debug("dataset stored", "rows", ds.NumRows(), "total_rows", total)
	return nil
}

// Query implements ObservationReader.
func (m *MemoryStorage) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	m.mu.RLock()
	matched := make([]models.Record, 0, len(m.rows))
	for key, rec := range m.rows {
		if req.Location != "" && key.location != req.Location {
			continue
		}
		if !req.Start.IsZero() && key.date.Before(req.Start) {
			continue
		}
		if !req.End.IsZero() && key.date.After(req.End) {
			continue
		}
		matched = append(matched, rec)
	}
	m.mu.RUnlock()

	desc := req.OrderBy == "date_desc"
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			if desc {
				return matched[i].Date.After(matched[j].Date)
			}
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].Location < matched[j].Location
	})

	total := len(matched)
	if req.Offset > 0 {
		if req.Offset >= total {
			matched = nil
		} else {
			matched = matched[req.Offset:]
		}
	}
	hasMore := false
	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
		hasMore = true
	}

	elapsed := time.Since(start)
	m.recordQueryTime("query", elapsed)
	return &QueryResponse{
		Rows:       matched,
		Total:      total,
		HasMore:    hasMore,
		NextOffset: req.Offset + len(matched),
		QueryTime:  elapsed,
	}, nil
}

// GetLatest implements ObservationReader.
func (m *MemoryStorage) GetLatest(ctx context.Context, location string) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.Record
	for key, rec := range m.rows {
		if key.location != location {
			continue
		}
		if latest == nil || key.date.After(latest.Date) {
			r := rec
			latest = &r
		}
	}
	return latest, nil
}

// GetStats implements Manager.
func (m *MemoryStorage) GetStats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	stats := &Stats{
		TotalRows:        int64(len(m.rows)),
		QueryPerformance: make(map[string]time.Duration),
	}
	locations := make(map[string]bool)
	for key := range m.rows {
		locations[key.location] = true
		if stats.EarliestData.IsZero() || key.date.Before(stats.EarliestData) {
			stats.EarliestData = key.date
		}
		if key.date.After(stats.LatestData) {
			stats.LatestData = key.date
		}
	}
	stats.TotalLocations = len(locations)
	m.mu.RUnlock()

	m.queryMu.Lock()
	for op, times := range m.queryTimes {
		var sum time.Duration
		for _, t := range times {
			sum += t
		}
		if len(times) > 0 {
			stats.QueryPerformance[op] = sum / time.Duration(len(times))
		}
	}
	m.queryMu.Unlock()

	return stats, nil
}

// HealthCheck implements HealthChecker.
func (m *MemoryStorage) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Close implements Manager. Drops all data.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	m.rows = make(map[observationKey]models.Record)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) recordQueryTime(operation string, d time.Duration) {
	m.queryMu.Lock()
	defer m.queryMu.Unlock()
	times := append(m.queryTimes[operation], d)
	// Keep a bounded window so long-lived processes don't grow unbounded.
	if len(times) > 100 {
		times = times[len(times)-100:]
	}
	m.queryTimes[operation] = times
}
