package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	storemem "github.com/JakeFAU/cafeteria-menu/internal/storage/memory"
)

func TestRunRecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	o := newTestOrchestrator(t, Config{LookaheadDays: 1}, Dependencies{
		Fetcher: newStubFetcher(map[string]string{"re12/2025-03-05": "wed"}),
		Parser:  stubParser{"wed": lunchOnly("김치찌개")},
		Store:   storemem.NewMealStore(),
		Tracer:  tp.Tracer("test"),
	})

	report := o.Run(context.Background())
	require.Equal(t, 1, report.FetchFailures)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	var run sdktrace.ReadOnlySpan
	var pages []sdktrace.ReadOnlySpan
	for _, s := range spans {
		switch s.Name() {
		case "ingest.run":
			run = s
		case "ingest.page":
			pages = append(pages, s)
		}
	}
	require.NotNil(t, run)
	require.Len(t, pages, 2)

	failed := 0
	for _, p := range pages {
		require.Equal(t, run.SpanContext().SpanID(), p.Parent().SpanID())
		if p.Status().Code == codes.Error {
			failed++
		}
	}
	require.Equal(t, 1, failed)
}
