package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/cafeteria-menu/internal/ingest"
	"github.com/JakeFAU/cafeteria-menu/internal/menu"
	"github.com/JakeFAU/cafeteria-menu/internal/metrics"
)

const defaultRequestTimeout = 60 * time.Second

// Ingester is the orchestrator surface the admin routes need.
type Ingester interface {
	Run(ctx context.Context) ingest.Report
	Running() bool
	LastReport() (ingest.Report, bool)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators. Ingester and Parser are required.
type Options struct {
	Ingester Ingester
	Parser   menu.Parser
	// Meals backs the read route; nil answers 503.
	Meals menu.MealStore
	// Ready is consulted by /readyz; nil means always ready.
	Ready    Pinger
	Clock    menu.Clock
	Location *time.Location
	// APIKey, when set, is required on every /v1 route.
	APIKey         string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server wires HTTP handlers to the orchestrator, parser, and store.
type Server struct {
	router   chi.Router
	opts     Options
	logger   *zap.Logger
	meals    *MealsHandler
	baseCtx  context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	if opts.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	metrics.Init()

	logger := opts.Logger.Named("api")
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:    opts,
		logger:  logger,
		meals:   NewMealsHandler(opts.Meals, opts.Clock, opts.Location, logger),
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/admin/ingest", s.triggerIngest)
		r.Get("/admin/ingest", s.ingestStatus)
		r.Post("/parse", s.parse)
		r.Get("/restaurants/{code}/meals", s.meals.ListMeals)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown cancels background runs started through the admin route and waits
// for them to return or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for background runs: %w", ctx.Err())
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.opts.Ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type ingestStatusResponse struct {
	Running    bool           `json:"running"`
	LastReport *ingest.Report `json:"last_report"`
}

// triggerIngest acknowledges immediately and runs in the background. A run
// already in progress answers 409; the lock still guards the race between
// this check and the background start.
func (s *Server) triggerIngest(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ingester.Running() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "running"})
		return
	}
	reqID := requestIDFromContext(r.Context())
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		report := s.opts.Ingester.Run(s.baseCtx)
		if report.Rejected {
			s.logger.Info("admin ingest rejected, another run is in progress", zap.String("request_id", reqID))
			return
		}
		s.logger.Info("admin ingest finished",
			zap.String("request_id", reqID),
			zap.String("run_id", report.RunID),
			zap.Int("stored", report.Stored),
		)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) ingestStatus(w http.ResponseWriter, _ *http.Request) {
	resp := ingestStatusResponse{Running: s.opts.Ingester.Running()}
	if last, ok := s.opts.Ingester.LastReport(); ok {
		resp.LastReport = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

const maxParseBody = 5 << 20

func (s *Server) parse(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxParseBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body must contain the menu page HTML")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Parser.Parse(string(body)))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
