// Package runtime assembles the orchestrator service from configuration and
// manages its lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/infohyun/aramcrm-sub000/internal/actions"
	"github.com/infohyun/aramcrm-sub000/internal/adapters/events"
	"github.com/infohyun/aramcrm-sub000/internal/agent"
	"github.com/infohyun/aramcrm-sub000/internal/classifier"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/orchestrator"
	"github.com/infohyun/aramcrm-sub000/internal/pipeline"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
	"github.com/infohyun/aramcrm-sub000/internal/provider"
	"github.com/infohyun/aramcrm-sub000/internal/server"
	"github.com/infohyun/aramcrm-sub000/internal/storage"
	"github.com/infohyun/aramcrm-sub000/internal/telemetry"
	"github.com/infohyun/aramcrm-sub000/internal/tokens"
	"github.com/infohyun/aramcrm-sub000/internal/usage"
)

// App is the running orchestrator service.
type App struct {
	// Dependencies (injected via options, defaulted from config otherwise)
	config  ports.ConfigProvider
	storage ports.StorageProvider
	events  ports.EventPublisher
	gateway ports.Gateway
	logger  *slog.Logger

	// Built by Start
	orch          *orchestrator.Orchestrator
	server        *server.Server
	metrics       *telemetry.MetricsProvider
	traceShutdown func(context.Context) error
	serveErr      chan error

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates an App with the given options. A config provider is required.
func New(opts ...Option) (*App, error) {
	app := &App{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if app.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfigProvider)")
	}
	return app, nil
}

// Start loads the config, builds every component and starts serving HTTP in
// the background.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)

	cfg, err := a.config.Load(a.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := a.build(cfg); err != nil {
		return err
	}

	a.serveErr = make(chan error, 1)
	go func() {
		a.serveErr <- a.server.Start()
	}()

	go a.watchConfig()

	a.logger.Info("orchestrator started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("events", cfg.Events.Type))
	return nil
}

func (a *App) build(cfg *config.Config) error {
	if cfg.Telemetry.TracingEnabled && a.traceShutdown == nil {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, nil, a.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		a.traceShutdown = shutdown
	}

	mp, err := telemetry.InitMetrics(cfg.Telemetry.ServiceName, cfg.Telemetry.MetricsEnabled)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	a.metrics = mp

	if a.storage == nil {
		store, err := storage.Open(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.storage = store
	}

	if a.events == nil {
		pub, err := events.New(cfg.Events, a.logger)
		if err != nil {
			return fmt.Errorf("create event publisher: %w", err)
		}
		a.events = pub
	}

	counter := tokens.NewDefaultRegistry()
	if a.gateway == nil {
		provider.RegisterBuiltins()
		gw, err := provider.NewGateway(cfg.LLM, counter)
		if err != nil {
			return fmt.Errorf("create llm gateway: %w", err)
		}
		a.gateway = gw
	} else {
		a.gateway = provider.Wrap(a.gateway, cfg.LLM, counter)
	}

	registry := agent.NewRegistry(a.logger)
	agent.RegisterBuiltins(registry, agent.Deps{
		Gateway: a.gateway,
		FAQ:     a.storage,
		Logger:  a.logger,
	})

	tracker := usage.NewTracker(a.storage, tokens.Pricing{
		InputPerMillion:  cfg.Pricing.InputPerMillion,
		OutputPerMillion: cfg.Pricing.OutputPerMillion,
	}, mp.Metrics, a.logger)

	hooks, err := pipeline.WebhookStagesFromConfig(cfg.Orchestrator.Webhooks)
	if err != nil {
		return fmt.Errorf("configure webhooks: %w", err)
	}

	opts, err := orchestrator.OptionsFromConfig(cfg.Orchestrator)
	if err != nil {
		return fmt.Errorf("orchestrator options: %w", err)
	}

	a.orch = orchestrator.New(orchestrator.Deps{
		Agents:     registry,
		Classifier: classifier.New(a.gateway, a.logger),
		Store:      a.storage,
		Actions: actions.NewExecutor(a.storage,
			actions.WithPublisher(a.events),
			actions.WithLogger(a.logger)),
		Tracker:   tracker,
		Publisher: a.events,
		Metrics:   mp.Metrics,
		Logger:    a.logger,
		Stages:    hooks,
	}, opts)

	requestTimeout, err := config.ParseDuration(cfg.Server.RequestTimeout, 0)
	if err != nil {
		return fmt.Errorf("server.request_timeout: %w", err)
	}
	a.server = server.New(cfg.Server.Port, requestTimeout, a.logger)
	api := &server.API{
		Orchestrator: a.orch,
		Usage:        tracker,
		Agents:       registry,
		Store:        a.storage,
	}
	if cfg.Telemetry.MetricsEnabled {
		api.Metrics = mp.Handler
	}
	api.Mount(a.server.Router)

	a.logger.Info("components ready",
		slog.Int("agents", len(registry.ListRegistered())),
		slog.Int("webhooks", len(hooks)))
	return nil
}

// Handler returns the HTTP handler. It is nil before Start.
func (a *App) Handler() http.Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	return a.server.Router
}

// Orchestrator returns the orchestrator built by Start.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.orch
}

// Done receives the result of the HTTP server once it stops.
func (a *App) Done() <-chan error {
	return a.serveErr
}

// watchConfig applies orchestrator settings from reloaded config files.
// Storage, provider and event settings need a restart.
func (a *App) watchConfig() {
	onChange := func(cfg *config.Config) {
		opts, err := orchestrator.OptionsFromConfig(cfg.Orchestrator)
		if err != nil {
			a.logger.Error("ignoring reloaded orchestrator settings", slog.String("error", err.Error()))
			return
		}
		a.mu.Lock()
		orch := a.orch
		a.mu.Unlock()
		if orch == nil {
			return
		}
		orch.SetOptions(opts)
		a.logger.Info("orchestrator settings reloaded",
			slog.Bool("translation_enabled", opts.TranslationEnabled),
			slog.Bool("sentiment_enabled", opts.SentimentEnabled),
			slog.Bool("qa_enabled", opts.QAEnabled),
			slog.Int("max_agents", opts.MaxAgents))
	}

	if err := a.config.Watch(a.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// Shutdown stops the HTTP server and closes every resource. Close errors
// are logged; the first one is returned.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down orchestrator")

	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	closeStep := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.logger.Error("failed to close "+name, slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if a.server != nil {
		closeStep("server", func() error { return a.server.Shutdown(ctx) })
	}
	if a.events != nil {
		closeStep("events", a.events.Close)
	}
	if a.storage != nil {
		closeStep("storage", a.storage.Close)
	}
	if a.config != nil {
		closeStep("config", a.config.Close)
	}
	if a.metrics != nil {
		closeStep("metrics", func() error { return a.metrics.Shutdown(ctx) })
	}
	if a.traceShutdown != nil {
		closeStep("tracer", func() error { return a.traceShutdown(ctx) })
	}

	a.logger.Info("orchestrator shutdown complete")
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
