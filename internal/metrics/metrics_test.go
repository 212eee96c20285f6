package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRestaurant(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"student cafeteria", "re12", "re12"},
		{"single digit", "re1", "re1"},
		{"uppercase", "RE12", "unknown"},
		{"injected", "re12; drop", "unknown"},
		{"too long", "re12345", "unknown"},
		{"empty", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeRestaurant(tc.input))
		})
	}
}

func TestObservers(t *testing.T) {
	Init()
	Init()

	ObserveFetch("re13", nil, 120*time.Millisecond)
	ObserveFetch("re13", errors.New("timeout"), time.Second)
	require.InDelta(t, 1, testutil.ToFloat64(fetchTotal.WithLabelValues("re13", "ok")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(fetchTotal.WithLabelValues("re13", "error")), 0)

	ObserveStored("re13", "lunch", 3)
	ObserveStored("re13", "lunch", 0)
	require.InDelta(t, 3, testutil.ToFloat64(mealsStoredTotal.WithLabelValues("re13", "lunch")), 0)

	ObserveStorageFailure("bogus")
	require.InDelta(t, 1, testutil.ToFloat64(storageFailuresTotal.WithLabelValues("unknown")), 0)

	ObserveEmptyPage("re13")
	require.InDelta(t, 1, testutil.ToFloat64(emptyPagesTotal.WithLabelValues("re13")), 0)

	SetRunInProgress(true)
	require.InDelta(t, 1, testutil.ToFloat64(ingestRunInProgress), 0)
	SetRunInProgress(false)
	require.InDelta(t, 0, testutil.ToFloat64(ingestRunInProgress), 0)

	ObserveRun("completed", 10*time.Second)
	ObserveRun("rejected", 0)
	require.InDelta(t, 1, testutil.ToFloat64(ingestRunsTotal.WithLabelValues("rejected")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(ingestRunDurationSeconds))
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/probe/{code}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before200 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	before404 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	for _, path := range []string{"/probe/re12", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, before200+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 0)
	require.InDelta(t, before404+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")), 0)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func FuzzSanitizeRestaurant(f *testing.F) {
	for _, tc := range []string{"re12", "re", "http://x", "re0000"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		got := SanitizeRestaurant(orig)
		if got != "unknown" && got != orig {
			t.Errorf("SanitizeRestaurant(%q) = %q", orig, got)
		}
	})
}
