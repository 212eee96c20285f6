// Package ingest runs the fetch, parse, and replace pipeline over the
// configured restaurants and lookahead window.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/cafeteria-menu/internal/clock/system"
	"github.com/JakeFAU/cafeteria-menu/internal/hash/sha256"
	"github.com/JakeFAU/cafeteria-menu/internal/id/uuid"
	"github.com/JakeFAU/cafeteria-menu/internal/menu"
	"github.com/JakeFAU/cafeteria-menu/internal/metrics"
)

const (
	snapshotContentType = "text/html; charset=utf-8"
	tracerName          = "github.com/JakeFAU/cafeteria-menu/internal/ingest"
)

// Config controls Orchestrator behavior.
type Config struct {
	Restaurants   []menu.Restaurant
	LookaheadDays int
	// Location defines "today". Nil means UTC.
	Location *time.Location
	// SnapshotPrefix prefixes archived page paths.
	SnapshotPrefix string
	// Topic receives run reports when a Publisher is set.
	Topic string
}

// Dependencies are the collaborators of an Orchestrator. Fetcher, Parser, and
// Store are required; the rest fall back to defaults or are skipped.
type Dependencies struct {
	Fetcher   menu.Fetcher
	Parser    menu.Parser
	Store     menu.MealStore
	Blobs     menu.BlobStore
	Publisher menu.Publisher
	Hasher    menu.Hasher
	Clock     menu.Clock
	IDs       menu.IDGenerator
	Logger    *zap.Logger
	// Tracer defaults to the global provider.
	Tracer trace.Tracer
}

// Orchestrator executes ingestion runs. It is safe for concurrent use; at
// most one run executes at a time.
type Orchestrator struct {
	cfg       Config
	fetcher   menu.Fetcher
	parser    menu.Parser
	store     menu.MealStore
	blobs     menu.BlobStore
	publisher menu.Publisher
	hasher    menu.Hasher
	clock     menu.Clock
	ids       menu.IDGenerator
	logger    *zap.Logger
	tracer    trace.Tracer

	lock RunLock

	mu   sync.RWMutex
	last *Report
}

// New constructs an Orchestrator.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("meal store is required")
	}
	if len(cfg.Restaurants) == 0 {
		return nil, fmt.Errorf("at least one restaurant is required")
	}
	if cfg.LookaheadDays < 0 {
		return nil, fmt.Errorf("lookahead days must be >= 0")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = system.New(cfg.Location)
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	metrics.Init()

	return &Orchestrator{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		parser:    deps.Parser,
		store:     deps.Store,
		blobs:     deps.Blobs,
		publisher: deps.Publisher,
		hasher:    deps.Hasher,
		clock:     deps.Clock,
		ids:       deps.IDs,
		logger:    deps.Logger.Named("ingest"),
		tracer:    deps.Tracer,
	}, nil
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool {
	return o.lock.Held()
}

// LastReport returns the most recent finished run, if any.
func (o *Orchestrator) LastReport() (Report, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return Report{}, false
	}
	return *o.last, true
}

// Run performs one ingestion pass. If another run is active it returns
// immediately with Rejected set. Failures of individual pages or keys are
// counted in the report and never abort the run; cancellation of ctx stops it
// between units.
func (o *Orchestrator) Run(ctx context.Context) Report {
	if !o.lock.TryAcquire() {
		o.logger.Warn("ingestion already running, request rejected")
		metrics.ObserveRun("rejected", 0)
		return Report{Rejected: true}
	}
	defer o.lock.Release()
	metrics.SetRunInProgress(true)
	defer metrics.SetRunInProgress(false)

	runID, err := o.ids.NewID()
	if err != nil {
		o.logger.Warn("generate run id failed", zap.Error(err))
	}
	ctx, span := o.tracer.Start(ctx, "ingest.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("ingest.restaurants", len(o.cfg.Restaurants)),
		attribute.Int("ingest.lookahead_days", o.cfg.LookaheadDays),
	))
	defer span.End()

	report := Report{RunID: runID, StartedAt: o.clock.Now()}
	logger := o.logger.With(zap.String("run_id", runID))
	if sc := span.SpanContext(); sc.HasTraceID() {
		logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
	}
	logger.Info("ingestion run started",
		zap.Int("restaurants", len(o.cfg.Restaurants)),
		zap.Int("lookahead_days", o.cfg.LookaheadDays),
	)

	today := startOfDay(report.StartedAt.In(o.cfg.Location))
	o.runRestaurants(ctx, logger, today, &report)

	report.FinishedAt = o.clock.Now()
	o.mu.Lock()
	last := report
	o.last = &last
	o.mu.Unlock()

	metrics.ObserveRun(report.outcome(), report.Duration())
	span.SetAttributes(
		attribute.String("ingest.outcome", report.outcome()),
		attribute.Int("ingest.pages", report.Pages),
		attribute.Int("ingest.stored", report.Stored),
		attribute.Int("ingest.fetch_failures", report.FetchFailures),
		attribute.Int("ingest.storage_failures", report.StorageFailures),
	)
	logger.Info("ingestion run finished",
		zap.String("outcome", report.outcome()),
		zap.Int("pages", report.Pages),
		zap.Int("stored", report.Stored),
		zap.Int("fetch_failures", report.FetchFailures),
		zap.Int("storage_failures", report.StorageFailures),
		zap.Duration("duration", report.Duration()),
	)
	o.publishReport(ctx, logger, report)
	return report
}

func (o *Orchestrator) runRestaurants(ctx context.Context, logger *zap.Logger, today time.Time, report *Report) {
	for _, restaurant := range o.cfg.Restaurants {
		if ctx.Err() != nil {
			report.Canceled = true
			return
		}
		rlog := logger.With(zap.String("restaurant", restaurant.Code))
		if err := o.store.EnsureRestaurant(ctx, restaurant); err != nil {
			report.StorageFailures++
			metrics.ObserveStorageFailure(restaurant.Code)
			rlog.Error("ensure restaurant failed, skipping", zap.Error(err))
			continue
		}
		for offset := 0; offset <= o.cfg.LookaheadDays; offset++ {
			if ctx.Err() != nil {
				report.Canceled = true
				return
			}
			o.processDate(ctx, rlog, restaurant, today.AddDate(0, 0, offset), report)
		}
	}
}

func (o *Orchestrator) processDate(
	ctx context.Context,
	logger *zap.Logger,
	restaurant menu.Restaurant,
	date time.Time,
	report *Report,
) {
	dateStr := date.Format(time.DateOnly)
	logger = logger.With(zap.String("date", dateStr))
	ctx, span := o.tracer.Start(ctx, "ingest.page", trace.WithAttributes(
		attribute.String("restaurant.code", restaurant.Code),
		attribute.String("menu.date", dateStr),
	))
	defer span.End()
	year, month, day := date.Date()

	start := time.Now()
	html, err := o.fetcher.Fetch(ctx, restaurant.Code, year, int(month), day)
	metrics.ObserveFetch(restaurant.Code, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		report.FetchFailures++
		logger.Warn("fetch failed, skipping date", zap.Error(err))
		return
	}
	report.Pages++
	o.archive(ctx, logger, restaurant.Code, date, html, report)

	parsed := o.parser.Parse(html)
	if parsed.Empty() {
		report.EmptyPages++
		metrics.ObserveEmptyPage(restaurant.Code)
		logger.Debug("page has no menu items")
		return
	}
	dayOfWeek := parsed.DayOfWeek
	if dayOfWeek == "" {
		dayOfWeek = KoreanWeekday(date.Weekday())
	}

	for _, mealType := range menu.MealTypes {
		items := parsed.Items(mealType)
		if len(items) == 0 {
			continue
		}
		o.replace(ctx, logger, menu.MealKey{
			RestaurantCode: restaurant.Code,
			Date:           date,
			MealType:       mealType,
		}, dayOfWeek, items, report)
	}
}

func (o *Orchestrator) replace(
	ctx context.Context,
	logger *zap.Logger,
	key menu.MealKey,
	dayOfWeek string,
	items []menu.MenuItem,
	report *Report,
) {
	logger = logger.With(zap.String("meal_type", string(key.MealType)))
	res, err := o.store.ReplaceMeals(ctx, key, dayOfWeek, items)
	for _, itemErr := range res.ItemErrors {
		logger.Warn("menu item skipped", zap.Error(itemErr))
	}
	report.ItemFailures += len(res.ItemErrors)
	if err != nil {
		report.StorageFailures++
		metrics.ObserveStorageFailure(key.RestaurantCode)
		logger.Error("replace meals failed, previous records kept", zap.Error(err))
		return
	}
	report.Stored += res.Inserted
	report.Replaced += res.Deleted
	metrics.ObserveStored(key.RestaurantCode, string(key.MealType), res.Inserted)
	logger.Debug("meals replaced",
		zap.Int64("deleted", res.Deleted),
		zap.Int("inserted", res.Inserted),
	)
}

func (o *Orchestrator) archive(
	ctx context.Context,
	logger *zap.Logger,
	code string,
	date time.Time,
	html string,
	report *Report,
) {
	if o.blobs == nil {
		return
	}
	digest, err := o.hasher.Hash([]byte(html))
	if err != nil {
		report.SnapshotFailures++
		logger.Warn("hash page failed", zap.Error(err))
		return
	}
	path := o.snapshotPath(code, date, digest)
	uri, err := o.blobs.PutObject(ctx, path, snapshotContentType, strings.NewReader(html))
	if err != nil {
		report.SnapshotFailures++
		logger.Warn("archive page failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("page archived", zap.String("uri", uri))
}

func (o *Orchestrator) snapshotPath(code string, date time.Time, digest string) string {
	name := fmt.Sprintf("%s/%s/%s.html", code, date.Format(time.DateOnly), sha256.Short(digest, 16))
	prefix := strings.Trim(o.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (o *Orchestrator) publishReport(ctx context.Context, logger *zap.Logger, report Report) {
	if o.cfg.Topic == "" || o.publisher == nil {
		return
	}
	// A canceled run still reports; give the publish its own budget.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	id, err := o.publisher.Publish(pubCtx, o.cfg.Topic, report)
	if err != nil {
		logger.Warn("publish run report failed", zap.String("topic", o.cfg.Topic), zap.Error(err))
		return
	}
	logger.Info("run report published", zap.String("topic", o.cfg.Topic), zap.String("message_id", id))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var koreanWeekdays = [...]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}

// KoreanWeekday names a weekday the way the cafeteria pages do.
func KoreanWeekday(d time.Weekday) string {
	return koreanWeekdays[d]
}
