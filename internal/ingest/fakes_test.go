package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JakeFAU/cafeteria-menu/internal/menu"
)

type fetchCall struct {
	code             string
	year, month, day int
}

func (c fetchCall) date() string {
	return fmt.Sprintf("%04d-%02d-%02d", c.year, c.month, c.day)
}

// stubFetcher returns pages keyed by "code/YYYY-MM-DD" and errors for missing keys.
type stubFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	calls   []fetchCall
	started chan struct{}
	release chan struct{}
}

func newStubFetcher(pages map[string]string) *stubFetcher {
	return &stubFetcher{pages: pages}
}

func (f *stubFetcher) Fetch(ctx context.Context, code string, year, month, day int) (string, error) {
	call := fetchCall{code: code, year: year, month: month, day: day}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	first := len(f.calls) == 1
	f.mu.Unlock()

	if first && f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", &menu.NetworkError{URL: code, Err: ctx.Err()}
		}
	}

	html, ok := f.pages[code+"/"+call.date()]
	if !ok {
		return "", &menu.NetworkError{URL: code, StatusCode: 500, Err: errors.New("unexpected status")}
	}
	return html, nil
}

func (f *stubFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

// stubParser maps page bodies to prepared menus.
type stubParser map[string]menu.Menu

func (p stubParser) Parse(html string) menu.Menu {
	return p[html]
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

// failingStore wraps a MealStore and fails replaces for one meal type.
type failingStore struct {
	menu.MealStore
	failOn menu.MealType
}

func (s failingStore) ReplaceMeals(
	ctx context.Context,
	key menu.MealKey,
	dayOfWeek string,
	items []menu.MenuItem,
) (menu.ReplaceResult, error) {
	if key.MealType == s.failOn {
		return menu.ReplaceResult{}, &menu.StorageError{Key: key, Op: "commit", Err: errors.New("connection lost")}
	}
	return s.MealStore.ReplaceMeals(ctx, key, dayOfWeek, items)
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}
