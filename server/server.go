// Package server exposes the HTTP API: generation, simulation, pipeline
// management, the SSE event stream, health and prometheus metrics. Handlers
// stay thin; domain behavior lives in the packages they call into, and every
// failure leaves through the same error envelope.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chainweave/forge/auth"
	"github.com/chainweave/forge/config"
	"github.com/chainweave/forge/eventbus"
	"github.com/chainweave/forge/generator"
	"github.com/chainweave/forge/metrics"
	"github.com/chainweave/forge/pipeline"
	"github.com/chainweave/forge/sandbox"
	"github.com/chainweave/forge/storage"
)

// generateService is the slice of *generator.Orchestrator the server needs.
type generateService interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
}

// simulateService is the slice of *sandbox.Runner the server needs.
type simulateService interface {
	Simulate(ctx context.Context, source, configJSON string) (*sandbox.Result, error)
}

// pipelineExecutor is the slice of *pipeline.Executor the server needs.
type pipelineExecutor interface {
	Execute(ctx context.Context, pipelineID string, trigger map[string]any) (*pipeline.Result, error)
}

// pipelineSuggester is the slice of *pipeline.Suggester the server needs.
type pipelineSuggester interface {
	Suggest(ctx context.Context) ([]pipeline.Suggestion, error)
}

// dataStore is the slice of *storage.Store the handlers need.
type dataStore interface {
	GetWorkflow(ctx context.Context, id string) (*storage.Workflow, error)
	GetWorkflows(ctx context.Context, ids []string) (map[string]*storage.Workflow, error)
	CreateExecution(ctx context.Context, e *storage.Execution) error
	CreatePipeline(ctx context.Context, p *storage.Pipeline) error
	GetPipeline(ctx context.Context, id string) (*storage.Pipeline, error)
	ListPipelines(ctx context.Context, activeOnly bool, limit int) ([]*storage.Pipeline, error)
	UpdatePipeline(ctx context.Context, p *storage.Pipeline) error
	DeactivatePipeline(ctx context.Context, id string) error
	ListPipelineExecutions(ctx context.Context, pipelineID string, limit int) ([]*storage.PipelineExecution, error)
	Ping(ctx context.Context) error
}

// Deps carries everything the server calls into.
type Deps struct {
	Store     dataStore
	Bus       *eventbus.Bus
	Generator generateService
	Sandbox   simulateService
	Executor  pipelineExecutor
	Suggester pipelineSuggester
	Verifier  auth.Verifier
	Recorder  *metrics.Recorder
	// Gatherer backs GET /metrics; nil serves an empty registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg       *config.Config
	store     dataStore
	bus       *eventbus.Bus
	generator generateService
	sandbox   simulateService
	executor  pipelineExecutor
	suggester pipelineSuggester
	verifier  auth.Verifier
	recorder  *metrics.Recorder
	logger    *slog.Logger
	router    chi.Router
	started   time.Time
}

// New assembles the router and returns the server.
func New(cfg *config.Config, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.Recorder == nil {
		d.Recorder = metrics.NewRecorder(nil)
	}
	s := &Server{
		cfg:       cfg,
		store:     d.Store,
		bus:       d.Bus,
		generator: d.Generator,
		sandbox:   d.Sandbox,
		executor:  d.Executor,
		suggester: d.Suggester,
		verifier:  d.Verifier,
		recorder:  d.Recorder,
		logger:    logger.With("component", "server"),
		started:   time.Now(),
	}

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type", "Last-Event-ID",
			"X-Owner-Address", "X-Owner-Signature", "X-Owner-Timestamp",
		},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(s.accessLog)

	r.Post("/generate", s.handleGenerate)
	r.Post("/simulate", s.handleSimulate)

	r.Route("/pipelines", func(r chi.Router) {
		r.Get("/", s.handleListPipelines)
		r.Post("/", s.handleCreatePipeline)
		r.Get("/suggest", s.handleSuggestPipelines)
		r.Get("/metrics", s.handlePipelineMetrics)
		r.Post("/check-compatibility", s.handleCheckCompatibility)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.requirePipelineID)
			r.Get("/", s.handleGetPipeline)
			r.With(s.requireOwner).Put("/", s.handleUpdatePipeline)
			r.With(s.requireOwner).Delete("/", s.handleDeletePipeline)
			r.Post("/execute", s.handleExecutePipeline)
			r.Get("/history", s.handlePipelineHistory)
		})
	})

	r.Get("/events", s.handleEvents)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully
// within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.router,
		// No WriteTimeout: /events streams indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", "port", s.cfg.Server.Port)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// writeJSON marshals v to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response write failed", "error", err)
	}
}

// decodeJSON decodes a request body into v, rejecting unknown garbage early.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
