// Package pipeline orchestrates a full run: fetch, validate, clean,
// store, and summarize. Each run gets a fresh dataset snapshot and a
// unique run ID threaded through the logs; nothing is shared between
// runs.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/epi-analytics/go-covid-analytics/internal/cleaner"
	"github.com/epi-analytics/go-covid-analytics/internal/config"
	"github.com/epi-analytics/go-covid-analytics/internal/logger"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
	"github.com/epi-analytics/go-covid-analytics/internal/quality"
	"github.com/epi-analytics/go-covid-analytics/internal/storage"
	"github.com/epi-analytics/go-covid-analytics/internal/validator"
)

// Source supplies a raw dataset to a run.
type Source interface {
	Fetch(ctx context.Context) (*models.Dataset, error)
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Cleaned  *models.Dataset
	Report   *models.CleaningReport
	Quality  *models.QualityReport
	Coverage []quality.Coverage
}

// Pipeline wires a source, the cleaner, and a storage backend together.
type Pipeline struct {
	source  Source
	cleaner *cleaner.Cleaner
	store   storage.FullStorage
	logger  *slog.Logger
}

// New creates a pipeline. The storage backend may be nil to skip
// persistence.
func New(src Source, cfg config.CleanerConfig, store storage.FullStorage, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		source: src,
		cleaner: cleaner.New(cleaner.Config{
			MaxMissingFraction:       cfg.MaxMissingFraction,
			LowMissingThreshold:      cfg.LowMissingThreshold,
			CategoricalFillThreshold: cfg.CategoricalFillThreshold,
			Interpolation:            cfg.Interpolation,
		}, nil, log),
		store:  store,
		logger: log.With("component", "pipeline"),
	}
}

// Run executes one full pass. Validation failures abort before the
// cleaner runs; all other cell-level problems are resolved by the
// cleaner and surfaced in the result's report.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	runID := uuid.New().String()
	ctx = logger.WithRunID(ctx, runID)
	log := p.logger.With("run_id", runID)
	started := time.Now()

	log.Info("pipeline run started")

	raw, err := p.source.Fetch(ctx)
	if err != nil {
		log.Error("fetch failed", "error", err)
		return nil, err
	}
	log.Info("dataset fetched", "rows", raw.NumRows(), "columns", raw.NumColumns())

	if err := validator.New(nil, log).Validate(raw); err != nil {
		return nil, err
	}

	cleaned, report, err := p.cleaner.Clean(ctx, raw)
	if err != nil {
		return nil, err
	}

	if p.store != nil {
		if err := p.store.StoreDataset(ctx, cleaned); err != nil {
			log.Error("store failed", "error", err)
			return nil, err
		}
		log.Info("dataset persisted", "rows", cleaned.NumRows())
	}

	result := &RunResult{
		RunID:    runID,
		Started:  started,
		Duration: time.Since(started),
		Cleaned:  cleaned,
		Report:   report,
		Quality:  models.Quality(cleaned),
		Coverage: quality.NewDetector(log).DetectGaps(cleaned),
	}
	log.Info("pipeline run completed",
		"duration", result.Duration,
		"rows", cleaned.NumRows(),
		"locations", result.Quality.Countries,
		"missing_days", quality.TotalMissingDays(result.Coverage))
	return result, nil
}
