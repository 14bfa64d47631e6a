package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/genesis/internal/api/handlers"
	mw "github.com/Harshitk-cp/genesis/internal/api/middleware"
	"github.com/Harshitk-cp/genesis/internal/buildconfig"
	"github.com/Harshitk-cp/genesis/internal/cache"
	"github.com/Harshitk-cp/genesis/internal/config"
	"github.com/Harshitk-cp/genesis/internal/domain"
	"github.com/Harshitk-cp/genesis/internal/events"
	"github.com/Harshitk-cp/genesis/internal/llm"
	"github.com/Harshitk-cp/genesis/internal/service"
	"github.com/Harshitk-cp/genesis/internal/store"
	"github.com/Harshitk-cp/genesis/internal/strategy"
)

// Options selects the backing stores and probe content provider. With neither DB nor Cache set
// all state lives in memory.
type Options struct {
	DB       *pgxpool.Pool
	Cache    *cache.DB
	Provider domain.ProbeContentProvider
	Registry *strategy.Registry
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router   *chi.Mux
	Engine   *service.GenesisEngine
	Sessions *service.SessionManager
	Sweeper  *service.Sweeper
	Bus      *events.Bus
	Notifier *events.PGNotifier
	Metrics  *prometheus.Registry
}

func NewApp(opts Options, logger *zap.Logger) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(reg)

	registry := opts.Registry
	if registry == nil {
		registry = strategy.NewDefaultRegistry()
	}

	provider := opts.Provider
	if provider == nil {
		p, err := llm.NewClient(config.LLMProvider(), config.LLMAPIKey(), config.LLMModel())
		if err != nil {
			logger.Warn("LLM client initialization failed, using template probes",
				zap.String("provider", config.LLMProvider()), zap.Error(err))
			p = llm.NewTemplateClient()
		} else {
			logger.Info("LLM client initialized", zap.String("provider", p.Name()))
		}
		provider = p
	}

	// Events
	bus := events.NewBus(logger)
	bus.Subscribe(events.AllEvents, events.LogHandler(logger))
	publisher := events.Multi{bus}

	// Services
	generator := service.NewProbeGenerator(provider, logger)
	generator.SetTimeout(config.ProbeTimeout())
	generator.SetTTL(config.ProbeTTL())
	generator.SetMetrics(metrics)

	engine := service.NewGenesisEngine(registry, generator, logger)
	engine.SetMetrics(metrics)

	sessions := service.NewSessionManager(engine, logger)
	sessions.SetMetrics(metrics)
	sessions.SetLimits(config.MaxProbesPerSession(), config.MaxProbesPerField())

	app := &App{Router: chi.NewRouter(), Engine: engine, Sessions: sessions, Bus: bus, Metrics: reg}
	var profiles domain.ProfileReader

	// Stores
	switch {
	case opts.DB != nil:
		engine.SetStore(store.NewHypothesisStore(opts.DB))
		profileStore := store.NewProfileStore(opts.DB)
		engine.SetTracker(profileStore)
		profiles = profileStore
		sessions.SetStore(store.NewSessionStore(opts.DB))
		app.Notifier = events.NewPGNotifier(opts.DB, config.EventChannel(), logger)
		publisher = append(publisher, app.Notifier)
		logger.Info("using postgres storage")
	case opts.Cache != nil:
		snapshots := cache.NewSnapshotStore(opts.Cache)
		engine.SetStore(snapshots)
		engine.SetTracker(snapshots)
		sessions.SetStore(snapshots)
		profiles = snapshots
		logger.Info("using badger storage")
	default:
		logger.Warn("no storage configured, state is kept in memory only")
	}
	engine.SetPublisher(publisher)
	sessions.SetPublisher(publisher)

	app.Sweeper = service.NewSweeper(engine, sessions, logger)
	app.Sweeper.SetInterval(config.SweepInterval())
	app.Sweeper.SetIdleTimeout(config.SessionIdleTimeout())

	// Handlers
	hypothesisHandler := handlers.NewHypothesisHandler(engine)
	sessionHandler := handlers.NewSessionHandler(sessions)
	strategyHandler := handlers.NewStrategyHandler(registry)
	profileHandler := handlers.NewProfileHandler(profiles)

	r := app.Router
	httpMetrics := mw.NewHTTPMetrics(reg)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpMetrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler(opts))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	limit := mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst(), mw.UserKey)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/strategies", strategyHandler.List)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(limit)
			r.Post("/declarations", hypothesisHandler.Declare)
			r.Get("/hypotheses", hypothesisHandler.List)
			r.Get("/hypotheses/next", hypothesisHandler.Next)
			r.Post("/confirmations", hypothesisHandler.Confirm)
			r.Post("/sessions", sessionHandler.Open)
			r.Get("/profile", profileHandler.List)
		})

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(limit)
			r.Get("/", sessionHandler.Get)
			r.Get("/progress", sessionHandler.Progress)
			r.Post("/probes/next", sessionHandler.NextProbe)
			r.Post("/responses", sessionHandler.Respond)
			r.Post("/pause", sessionHandler.Pause)
			r.Post("/resume", sessionHandler.Resume)
			r.Post("/complete", sessionHandler.Complete)
		})
	})

	return app
}

func healthHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		storage := "memory"
		switch {
		case opts.DB != nil:
			storage = "postgres"
			if err := opts.DB.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "storage": storage, "error": err.Error()})
				return
			}
		case opts.Cache != nil:
			storage = "badger"
			if opts.Cache.IsClosed() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "storage": storage, "error": "database closed"})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"storage": storage,
			"version": buildconfig.Version(),
		})
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.HypothesisStore      = (*store.HypothesisStore)(nil)
	_ domain.SessionStore         = (*store.SessionStore)(nil)
	_ domain.ProfileTracker       = (*store.ProfileStore)(nil)
	_ domain.HypothesisStore      = (*cache.SnapshotStore)(nil)
	_ domain.SessionStore         = (*cache.SnapshotStore)(nil)
	_ domain.ProfileTracker       = (*cache.SnapshotStore)(nil)
	_ domain.ProfileReader        = (*store.ProfileStore)(nil)
	_ domain.ProfileReader        = (*cache.SnapshotStore)(nil)
	_ domain.EventPublisher       = (*events.Bus)(nil)
	_ domain.EventPublisher       = (*events.PGNotifier)(nil)
	_ domain.EventPublisher       = events.Multi(nil)
	_ domain.ProbeContentProvider = (*llm.OpenAIClient)(nil)
	_ domain.ProbeContentProvider = (*llm.AnthropicClient)(nil)
	_ domain.ProbeContentProvider = (*llm.GeminiClient)(nil)
	_ domain.ProbeContentProvider = (*llm.MockClient)(nil)
	_ domain.ProbeContentProvider = (*llm.TemplateClient)(nil)
)
