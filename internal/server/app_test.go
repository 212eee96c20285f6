package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cafeteria-menu/internal/config"
	"github.com/JakeFAU/cafeteria-menu/internal/menu"
	"github.com/JakeFAU/cafeteria-menu/internal/storage/memory"
)

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Fetcher.BaseURL = baseURL
	cfg.Fetcher.TimeoutSeconds = 5
	cfg.Ingest.LookaheadDays = 0
	cfg.Ingest.Restaurants = []menu.Restaurant{{Code: "re12", Name: "학생식당"}}
	cfg.Storage.Backend = config.StorageMemory
	return cfg
}

func TestBuildWithoutDatabaseUsesMemoryStore(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.IsType(t, &memory.MealStore{}, app.store)
	require.Nil(t, app.ready)
	require.Nil(t, app.publisher)
	require.IsType(t, &memory.BlobStore{}, app.blobs)
}

func TestBuildLocalStorage(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.BaseDir = filepath.Join(t.TempDir(), "pages")

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	info, err := os.Stat(cfg.Storage.BaseDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestBuildRejectsBadDSN(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.DB.DSN = "postgres://%zz"

	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "meal store init failed")
}

func TestRunOnceStoresFetchedMeals(t *testing.T) {
	page, err := os.ReadFile(filepath.Join("..", "parser", "testdata", "re12.html"))
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/web/www/re12" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}))
	t.Cleanup(srv.Close)

	app, err := Build(context.Background(), testConfig(t, srv.URL))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	report := app.RunOnce(context.Background())
	require.Equal(t, 1, report.Pages)
	require.Zero(t, report.FetchFailures)
	require.Equal(t, 2, report.Stored)

	blobs, ok := app.blobs.(*memory.BlobStore)
	require.True(t, ok)
	require.Len(t, blobs.Paths(), 1)

	meals, err := app.store.ListMeals(context.Background(), "re12", app.clock.Now())
	require.NoError(t, err)
	require.Len(t, meals, 2)
}
