package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/epi-analytics/go-covid-analytics/internal/config"
	apperrors "github.com/epi-analytics/go-covid-analytics/internal/errors"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

const (
	cacheKey          = "owid-covid-data"
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
	retryMultiplier   = 2.0
	rateLimitBurst    = 2
	userAgent         = "go-covid-analytics/1.0"
)

// Adapter fetches the canonical public dataset over HTTP, consulting a
// TTL disk cache first and falling back to the backup URL, then
// optionally to synthetic data, when the network path fails. The cache
// may be nil to fetch uncached.
type Adapter struct {
	cfg     config.SourceConfig
	cache   *Cache
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewAdapter creates an adapter for the given source configuration.
func NewAdapter(cfg config.SourceConfig, cache *Cache, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Adapter{
		cfg:   cfg,
		cache: cache,
		client: &http.Client{
			Timeout: cfg.SourceTimeout(),
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rateLimitBurst),
		logger:  logger.With("component", "source"),
	}
}

// Fetch returns the current dataset. Resolution order: fresh cache
// entry, primary URL, backup URL, then the synthetic generator when the
// configuration allows it. A successful download refreshes the cache.
func (a *Adapter) Fetch(ctx context.Context) (*models.Dataset, error) {
	if a.cache != nil {
		if data, ok := a.cache.Get(cacheKey); ok {
			ds, err := ReadCSV(bytes.NewReader(data))
			if err == nil {
				a.logger.Info("dataset loaded from cache", "rows", ds.NumRows())
				return ds, nil
			}
			a.logger.Warn("cached dataset unreadable, refetching", "error", err)
		}
	}

	data, err := a.download(ctx, a.cfg.PrimaryURL)
	if err != nil && a.cfg.BackupURL != "" {
		a.logger.Warn("primary source failed, trying backup", "error", err)
		data, err = a.download(ctx, a.cfg.BackupURL)
	}
	if err != nil {
		if a.cfg.FallbackToSynthetic {
			a.logger.Warn("all sources failed, generating synthetic data", "error", err)
			return Synthetic(0, 0, 42), nil
		}
		return nil, apperrors.NewLoadError("fetch", err)
	}

	ds, err := ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		if cerr := a.cache.Put(cacheKey, data); cerr != nil {
			a.logger.Warn("cache write failed", "error", cerr)
		}
	}
	a.logger.Info("dataset downloaded", "rows", ds.NumRows(), "bytes", len(data))
	return ds, nil
}

// Invalidate drops the cached dataset so the next Fetch hits the network.
func (a *Adapter) Invalidate() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Invalidate(cacheKey)
}

// download GETs url with rate limiting and exponential-backoff retries.
// Client errors other than 429 are permanent; network failures and
// server errors retry up to the configured attempt count.
func (a *Adapter) download(ctx context.Context, url string) ([]byte, error) {
	attempts := a.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}

	backoffConfig := backoff.NewExponentialBackOff()
	backoffConfig.InitialInterval = initialRetryDelay
	backoffConfig.MaxInterval = maxRetryDelay
	backoffConfig.Multiplier = retryMultiplier
	backoffConfig.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(backoffConfig, uint64(attempts-1)), ctx)

	var body []byte
	operation := func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "text/csv")
		req.Header.Set("User-Agent", userAgent)

		resp, err := a.client.Do(req)
		if err != nil {
			a.logger.Warn("request failed, will retry", "url", url, "error", err)
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			a.logger.Warn("retryable status", "url", url, "status", resp.StatusCode)
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("client error %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}
