// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cafeteria-menu/internal/api"
	"github.com/JakeFAU/cafeteria-menu/internal/clock/system"
	"github.com/JakeFAU/cafeteria-menu/internal/config"
	collyfetcher "github.com/JakeFAU/cafeteria-menu/internal/fetcher/colly"
	"github.com/JakeFAU/cafeteria-menu/internal/hash/sha256"
	"github.com/JakeFAU/cafeteria-menu/internal/id/uuid"
	"github.com/JakeFAU/cafeteria-menu/internal/ingest"
	"github.com/JakeFAU/cafeteria-menu/internal/logging"
	"github.com/JakeFAU/cafeteria-menu/internal/menu"
	"github.com/JakeFAU/cafeteria-menu/internal/parser"
	"github.com/JakeFAU/cafeteria-menu/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/cafeteria-menu/internal/publisher/pubsub"
	"github.com/JakeFAU/cafeteria-menu/internal/scheduler"
	gcsstorage "github.com/JakeFAU/cafeteria-menu/internal/storage/gcs"
	localstorage "github.com/JakeFAU/cafeteria-menu/internal/storage/local"
	memorystorage "github.com/JakeFAU/cafeteria-menu/internal/storage/memory"
	pgstore "github.com/JakeFAU/cafeteria-menu/internal/storage/postgres"
	"github.com/JakeFAU/cafeteria-menu/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	clock        *system.Clock
	store        menu.MealStore
	ready        api.Pinger
	blobs        menu.BlobStore
	publisher    menu.Publisher
	orchestrator *ingest.Orchestrator
	parser       *parser.Parser

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	app := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(loc),
		parser: parser.New(parser.Config{BaseURL: cfg.Parser.BaseURL}),
	}
	logger.Info("building application dependencies",
		zap.Int("restaurants", len(cfg.Ingest.Restaurants)),
		zap.Int("lookahead_days", cfg.Ingest.LookaheadDays),
		zap.String("time_zone", loc.String()),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	app.closers = append(app.closers, namedCloser{"tracer provider", func() error {
		return shutdownTracing(context.Background())
	}})

	if err := app.setupDatabase(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupStorage(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupOrchestrator(loc); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, meals are kept in memory only")
		a.store = memorystorage.NewMealStore()
		return nil
	}
	if a.cfg.DB.Migrate {
		version, dirty, err := pgstore.RunMigrations(a.cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		a.logger.Info("database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	store, err := pgstore.NewMealStore(ctx, pgstore.MealStoreConfig{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.MaxConnLifetime(),
	})
	if err != nil {
		return fmt.Errorf("meal store init failed: %w", err)
	}
	a.store = store
	a.ready = store
	a.closers = append(a.closers, namedCloser{"meal store", func() error { store.Close(); return nil }})
	a.logger.Info("postgres meal store initialized")
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blobs = store
		a.closers = append(a.closers, namedCloser{"gcs client", store.Close})
		a.logger.Info("archiving pages to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = store
		a.logger.Info("archiving pages to local disk", zap.String("path", a.cfg.Storage.BaseDir))
	case config.StorageMemory:
		a.blobs = memorystorage.NewBlobStore()
		a.logger.Info("archiving pages in memory")
	default:
		a.logger.Info("page archiving disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, run reports are not published")
		return nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = pub
	a.closers = append(a.closers, namedCloser{"pubsub client", pub.Close})
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupOrchestrator(loc *time.Location) error {
	fetcher, err := collyfetcher.New(collyfetcher.Config{
		BaseURL:   a.cfg.Fetcher.BaseURL,
		UserAgent: a.cfg.Fetcher.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
		LegacyTLS: a.cfg.Fetcher.LegacyTLS,
		Limiter: ratelimit.New(ratelimit.Config{
			RequestsPerSecond: a.cfg.Fetcher.RequestsPerSecond,
			Burst:             a.cfg.Fetcher.Burst,
		}),
	})
	if err != nil {
		return fmt.Errorf("fetcher init failed: %w", err)
	}
	a.orchestrator, err = ingest.New(ingest.Config{
		Restaurants:    a.cfg.Ingest.Restaurants,
		LookaheadDays:  a.cfg.Ingest.LookaheadDays,
		Location:       loc,
		SnapshotPrefix: a.cfg.Storage.Prefix,
		Topic:          a.cfg.PubSub.TopicName,
	}, ingest.Dependencies{
		Fetcher:   fetcher,
		Parser:    a.parser,
		Store:     a.store,
		Blobs:     a.blobs,
		Publisher: a.publisher,
		Hasher:    sha256.New(),
		Clock:     a.clock,
		IDs:       uuid.New(),
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunOnce performs a single ingestion run.
func (a *App) RunOnce(ctx context.Context) ingest.Report {
	return a.orchestrator.Run(ctx)
}

// Serve starts the scheduler and HTTP server and blocks until a signal or ctx
// cancellation, then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	apiServer, err := api.NewServer(api.Options{
		Ingester: a.orchestrator,
		Parser:   a.parser,
		Meals:    a.store,
		Ready:    a.ready,
		Clock:    a.clock,
		Location: a.clock.Location(),
		APIKey:   apiKey,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("api init failed: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Schedule:   a.cfg.Ingest.Schedule,
		Location:   a.clock.Location(),
		RunOnStart: a.cfg.Ingest.RunOnStart,
	}, a.orchestrator, a.logger)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	sched.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", zap.Error(err))
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("admin runs did not finish", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduled run did not finish", zap.Error(err))
	}
	return runErr
}

// Close releases infrastructure clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	// Sync reports EINVAL on terminal stderr.
	_ = a.logger.Sync()
}
