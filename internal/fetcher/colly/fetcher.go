// Package collyfetcher implements menu.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/cafeteria-menu/internal/menu"
)

// DefaultBaseURL is the cafeteria portal origin.
const DefaultBaseURL = "https://www.hanyang.ac.kr"

const portletPrefix = "_foodView_WAR_foodportlet_"

var errCanceled = errors.New("colly fetch canceled")

// browserHeaders are required by the portal; requests without them are refused.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "ko-KR,ko;q=0.8,en-US;q=0.5,en;q=0.3",
	"Upgrade-Insecure-Requests": "1",
}

// DefaultUserAgent mimics a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// LegacyTLS re-enables the CBC and RSA key-exchange suites the portal
	// still negotiates. Modern defaults are rejected by the remote host.
	LegacyTLS bool
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
	// Limiter, when set, paces requests before they are sent.
	Limiter Limiter
}

// Limiter blocks until a request to rawURL may be sent.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements menu.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	base          *url.URL
	baseCollector *colly.Collector
}

var _ menu.Fetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.DetectCharset = true
	c.ParseHTTPErrorResponse = true
	c.UserAgent = cfg.UserAgent
	c.SetRequestTimeout(cfg.Timeout)

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport(cfg.LegacyTLS)
	}
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		base:          base,
		baseCollector: c,
	}, nil
}

// URL builds the portal address for a restaurant and 1-based calendar date.
func (f *Fetcher) URL(restaurantCode string, year, month, day int) (string, error) {
	if strings.TrimSpace(restaurantCode) == "" {
		return "", fmt.Errorf("%w: restaurant code is required", menu.ErrInvalidRequest)
	}
	if year <= 0 {
		return "", fmt.Errorf("%w: year must be > 0", menu.ErrInvalidRequest)
	}
	if month < 1 || month > 12 {
		return "", fmt.Errorf("%w: month must be between 1 and 12", menu.ErrInvalidRequest)
	}
	if day < 1 || day > 31 {
		return "", fmt.Errorf("%w: day must be between 1 and 31", menu.ErrInvalidRequest)
	}

	q := url.Values{}
	q.Set("p_p_id", "foodView_WAR_foodportlet")
	q.Set("p_p_lifecycle", "0")
	q.Set("p_p_state", "normal")
	q.Set("p_p_mode", "view")
	q.Set("p_p_col_id", "column-1")
	q.Set("p_p_col_pos", "1")
	q.Set("p_p_col_count", "2")
	q.Set(portletPrefix+"sFoodDateDay", strconv.Itoa(day))
	q.Set(portletPrefix+"sFoodDateYear", strconv.Itoa(year))
	q.Set(portletPrefix+"action", "view")
	// The portal's month parameter is zero-based.
	q.Set(portletPrefix+"sFoodDateMonth", strconv.Itoa(month-1))

	u := *f.base
	u.Path = u.Path + "/web/www/" + url.PathEscape(restaurantCode)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch performs a single GET for the menu page. There is no retry; any
// transport failure or non-success status is returned as *menu.NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, restaurantCode string, year, month, day int) (string, error) {
	target, err := f.URL(restaurantCode, year, month, day)
	if err != nil {
		return "", err
	}

	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, target); err != nil {
			return "", &menu.NetworkError{URL: target, Err: err}
		}
	}

	var (
		body     string
		status   int
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	configureCollectorHooks(collector, &body, &status, &fetchErr)

	if err := runCollector(ctx, collector, target); err != nil {
		if errors.Is(err, errCanceled) {
			// The visit goroutine may still be writing; leave its state alone.
			return "", &menu.NetworkError{URL: target, Err: err}
		}
		return "", &menu.NetworkError{URL: target, StatusCode: status, Err: err}
	}
	if fetchErr != nil {
		return "", &menu.NetworkError{URL: target, StatusCode: status, Err: fetchErr}
	}
	if status < 200 || status > 299 {
		return "", &menu.NetworkError{URL: target, StatusCode: status, Err: errors.New("unexpected status")}
	}
	return body, nil
}

func configureCollectorHooks(hooks collectorHooks, body *string, status *int, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for k, v := range browserHeaders {
			r.Headers.Set(k, v)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
		*body = string(r.Body)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, target string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errCanceled, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport(legacyTLS bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	if legacyTLS {
		t.TLSClientConfig = legacyTLSConfig()
	}
	return t
}
