package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitPacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.hanyang.ac.kr/web/www/re11"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.hanyang.ac.kr/web/www/re12"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWaitTracksHostsIndependently(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 0.5, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/menu"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/menu"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorContains(t, l.Wait(ctx, "https://a.example"), "rate limit wait")
}

func TestZeroRateDisablesPacing(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for range 20 {
		require.NoError(t, l.Wait(context.Background(), "https://a.example"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
