package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

func observationDataset(t *testing.T) *models.Dataset {
	t.Helper()
	dates := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	ds := models.NewDataset()
	ds.MustAddColumn(models.NewDateColumn(models.ColDate, dates))
	ds.MustAddColumn(models.NewTextColumn(models.ColLocation, []string{"France", "France", "Germany"}))
	ds.MustAddColumn(models.NewNumericColumn("total_cases", []float64{100, 150, 300}))
	return ds
}

func TestMemoryStorageStoreAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage(nil)
	require.NoError(t, store.Initialize(ctx))
	require.NoError(t, store.StoreDataset(ctx, observationDataset(t)))

	resp, err := store.Query(ctx, QueryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Rows, 3)
	// Default ordering is date ascending, location breaking ties.
	assert.Equal(t, "France", resp.Rows[0].Location)
	assert.Equal(t, "Germany", resp.Rows[1].Location)

	resp, err = store.Query(ctx, QueryRequest{Location: "France"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
}

func TestMemoryStorageUpsertsByKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage(nil)
	require.NoError(t, store.StoreDataset(ctx, observationDataset(t)))
	// Storing the same dataset again must not duplicate rows.
	require.NoError(t, store.StoreDataset(ctx, observationDataset(t)))

	resp, err := store.Query(ctx, QueryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
}

func TestMemoryStorageDateRangeAndPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage(nil)
	require.NoError(t, store.StoreDataset(ctx, observationDataset(t)))

	day1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	resp, err := store.Query(ctx, QueryRequest{Start: day1, End: day1})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)

	resp, err = store.Query(ctx, QueryRequest{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 2)
	assert.True(t, resp.HasMore)
	assert.Equal(t, 2, resp.NextOffset)

	resp, err = store.Query(ctx, QueryRequest{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 1)
	assert.False(t, resp.HasMore)
}

func TestMemoryStorageGetLatest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage(nil)
	require.NoError(t, store.StoreDataset(ctx, observationDataset(t)))

	rec, err := store.GetLatest(ctx, "France")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Equal(t, 150.0, rec.Values["total_cases"])

	rec, err = store.GetLatest(ctx, "Atlantis")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStorageStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage(nil)
	require.NoError(t, store.StoreDataset(ctx, observationDataset(t)))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRows)
	assert.Equal(t, 2, stats.TotalLocations)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), stats.EarliestData)
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), stats.LatestData)
}

func TestMemoryStorageClose(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage(nil)
	require.NoError(t, store.StoreDataset(ctx, observationDataset(t)))
	require.NoError(t, store.Close())

	resp, err := store.Query(ctx, QueryRequest{})
	require.NoError(t, err)
	assert.Zero(t, resp.Total)
}

func TestMemoryStorageHealthCheck(t *testing.T) {
	store := NewMemoryStorage(nil)
	assert.NoError(t, store.HealthCheck(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, store.HealthCheck(cancelled))
}
