package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epi-analytics/go-covid-analytics/internal/config"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
)

const sampleCSV = "date,location,total_cases,total_deaths\n" +
	"2020-01-01,France,100,10\n" +
	"2020-01-02,France,150,\n"

func testSourceConfig(url string) config.SourceConfig {
	return config.SourceConfig{
		PrimaryURL:        url,
		Timeout:           "5s",
		RequestsPerSecond: 100,
		RetryAttempts:     2,
	}
}

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 2, ds.NumRows())
	assert.Equal(t, []string{"date", "location", "total_cases", "total_deaths"}, ds.ColumnNames())

	deaths, ok := ds.Column("total_deaths")
	require.True(t, ok)
	assert.Equal(t, 1, deaths.MissingCount())
}

func TestReadCSVStripsByteOrderMark(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("\uFEFF" + sampleCSV))
	require.NoError(t, err)
	assert.True(t, ds.HasColumn(models.ColDate))
}

func TestReadCSVRejectsEmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
}

func TestReadCSVToleratesRaggedRows(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("date,location,total_cases\n2020-01-01,France\n"))
	require.NoError(t, err)

	cases, ok := ds.Column("total_cases")
	require.True(t, ok)
	assert.Equal(t, 1, cases.MissingCount())
}

func TestSyntheticIsDeterministic(t *testing.T) {
	a := Synthetic(3, 30, 42)
	b := Synthetic(3, 30, 42)
	assert.True(t, a.Equal(b))

	c := Synthetic(3, 30, 43)
	assert.False(t, a.Equal(c))
}

func TestSyntheticShape(t *testing.T) {
	ds := Synthetic(2, 10, 42)
	assert.Equal(t, 20, ds.NumRows())
	assert.Equal(t, []string{"France", "Germany"}, ds.Locations())

	for _, name := range []string{"total_cases", "total_deaths", "new_cases", "new_deaths"} {
		col, ok := ds.Column(name)
		require.True(t, ok, name)
		assert.Zero(t, col.MissingCount())
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, err := NewCache(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)

	_, ok := cache.Get("key")
	assert.False(t, ok)

	require.NoError(t, cache.Put("key", []byte("payload")))
	data, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, cache.Invalidate("key"))
	_, ok = cache.Get("key")
	assert.False(t, ok)
}

func TestCacheExpiresByModTime(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir, time.Minute, nil)
	require.NoError(t, err)
	require.NoError(t, cache.Put("stale", []byte("old")))

	// Age the entry past the TTL.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(dir, entries[0].Name()), old, old))

	_, ok := cache.Get("stale")
	assert.False(t, ok)
}

func TestAdapterFetchesAndCaches(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(sampleCSV))
	}))
	defer server.Close()

	cache, err := NewCache(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)
	adapter := NewAdapter(testSourceConfig(server.URL), cache, nil)

	ds, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NumRows())
	assert.Equal(t, 1, hits)

	// Second fetch is served from cache.
	ds, err = adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NumRows())
	assert.Equal(t, 1, hits)
}

func TestAdapterFallsBackToBackup(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primary.Close()
	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleCSV))
	}))
	defer backup.Close()

	cfg := testSourceConfig(primary.URL)
	cfg.BackupURL = backup.URL
	adapter := NewAdapter(cfg, nil, nil)

	ds, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NumRows())
}

func TestAdapterRetriesServerErrors(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(sampleCSV))
	}))
	defer server.Close()

	adapter := NewAdapter(testSourceConfig(server.URL), nil, nil)
	ds, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NumRows())
	assert.Equal(t, 2, hits)
}

func TestAdapterSyntheticFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testSourceConfig(server.URL)
	cfg.FallbackToSynthetic = true
	adapter := NewAdapter(cfg, nil, nil)

	ds, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Greater(t, ds.NumRows(), 0)
}

func TestAdapterErrorWithoutFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	adapter := NewAdapter(testSourceConfig(server.URL), nil, nil)
	_, err := adapter.Fetch(context.Background())
	require.Error(t, err)
}

func TestFromCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	ds, err := FromCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NumRows())

	_, err = FromCSV(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}
