package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/redlinehq/redline/internal/adapter/agents"
	"github.com/redlinehq/redline/internal/adapter/broker"
	rlhttp "github.com/redlinehq/redline/internal/adapter/http"
	"github.com/redlinehq/redline/internal/adapter/llm"
	"github.com/redlinehq/redline/internal/adapter/mcp"
	"github.com/redlinehq/redline/internal/adapter/memory"
	rlnats "github.com/redlinehq/redline/internal/adapter/nats"
	"github.com/redlinehq/redline/internal/adapter/natskv"
	rlotel "github.com/redlinehq/redline/internal/adapter/otel"
	"github.com/redlinehq/redline/internal/adapter/ristretto"
	"github.com/redlinehq/redline/internal/adapter/tiered"
	"github.com/redlinehq/redline/internal/adapter/ws"
	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/logger"
	mw "github.com/redlinehq/redline/internal/middleware"
	"github.com/redlinehq/redline/internal/port/a2a"
	"github.com/redlinehq/redline/internal/port/analyzer"
	"github.com/redlinehq/redline/internal/port/broadcast"
	"github.com/redlinehq/redline/internal/port/cache"
	"github.com/redlinehq/redline/internal/resilience"
	"github.com/redlinehq/redline/internal/secrets"
	"github.com/redlinehq/redline/internal/service"
	"github.com/redlinehq/redline/internal/synthesis"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	fallback := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(fallback)

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, cfgPath)

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"llm_url", cfg.LLM.URL,
		"nats", cfg.NATS.URL != "",
		"mcp", cfg.MCP.Enabled,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Secrets ---

	// A mounted secret file wins over the environment; the plain config
	// value is the last resort.
	vault, err := secrets.NewVault(secrets.Chain(
		secrets.EnvLoader("REDLINE_LLM_API_KEY", "REDLINE_MCP_API_KEY"),
		secrets.FileLoader(map[string]string{"REDLINE_LLM_API_KEY": cfg.LLM.APIKeyFile}),
	))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	llmKey := vault.Get("REDLINE_LLM_API_KEY")
	if llmKey == "" {
		llmKey = cfg.LLM.APIKey
	}
	slog.Info("secrets loaded", "keys", vault.Keys(), "llm_key", vault.Redacted("REDLINE_LLM_API_KEY"))

	// --- Telemetry ---
	otelShutdown, err := rlotel.Init(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	// --- Stores, event hub, result cache ---
	jobs := memory.NewJobs(cfg.Store.JobTTL, log)
	jobs.StartSweeper(ctx, cfg.Store.SweepInterval)
	docs := memory.NewDocuments()

	var hub broadcast.Broadcaster = broker.New(broker.Options{
		SubscriberBuffer:  cfg.Events.SubscriberBuffer,
		KeepaliveInterval: cfg.Events.KeepaliveInterval,
		// Closed streams stay replayable as long as their job is
		// queryable.
		RetainClosed: cfg.Store.JobTTL,
	}, log)

	local, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("result cache: %w", err)
	}
	var results cache.Cache = local

	// Optional NATS tier: mirrors every event stream to JetStream and
	// shares finished results across replicas.
	if cfg.NATS.URL != "" {
		queue, err := rlnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()

		kv, err := queue.KeyValue(ctx, "redline-results", cfg.Store.JobTTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		results = tiered.New(local, natskv.New(kv), cfg.Store.JobTTL)
		hub = rlnats.NewMirror(hub, queue, log)
	}
	defer hub.Shutdown()

	// --- Reviewers ---
	llmClient := llm.NewClient(cfg.LLM.URL, llmKey)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	llmClient.SetLimiter(rate.NewLimiter(rate.Limit(cfg.Rate.RequestsPerSecond), cfg.Rate.Burst))

	pricing := make(map[string]llm.Pricing, len(cfg.LLM.Pricing))
	for model, p := range cfg.LLM.Pricing {
		pricing[model] = llm.Pricing{InputPer1M: p.InputPer1M, OutputPer1M: p.OutputPer1M}
	}
	modelFor := make(map[agent.ID]string, len(cfg.LLM.AgentModels))
	for id, model := range cfg.LLM.AgentModels {
		modelFor[agent.ID(id)] = model
	}

	opts := agents.Options{
		Client:      llmClient,
		Model:       cfg.LLM.DefaultModel,
		ModelFor:    modelFor,
		PanelModels: cfg.LLM.PanelModels,
		MaxTokens:   cfg.LLM.MaxTokens,
		Pricer:      llm.NewPricer(pricing),
		Log:         log,
	}
	roster := []analyzer.Agent{
		agents.NewBriefing(opts),
		agents.NewDomain(opts),
		agents.NewClarity(opts),
		agents.NewRigorFind(opts),
		agents.NewRigorRewrite(opts),
		agents.NewAdversary(opts),
		agents.NewAdversaryPanel(opts),
	}

	// --- Services ---
	orch := service.NewOrchestrator(jobs, hub, roster, synthesis.New(log), cfg.Orchestrator, cfg.Agents.Disabled, log)
	if cfg.Otel.Enabled {
		metrics, err := rlotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
		orch.SetMetrics(metrics)
	}

	svc := service.NewReviewService(jobs, docs, hub, orch, results, cfg.Store.JobTTL, log)
	defer svc.Shutdown()

	// --- HTTP ---
	handlers := &rlhttp.Handlers{
		Reviews: svc,
		WS:      ws.NewStreamer(svc, log),
		Version: version,
		Log:     log,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(rlhttp.CORS(cfg.Server.CORSOrigin))
	if cfg.Otel.Enabled {
		r.Use(func(next http.Handler) http.Handler {
			return rlotel.HTTPMiddleware(cfg.Logging.Service, next)
		})
	}
	r.Use(rlhttp.SecurityHeaders)
	r.Use(rlhttp.Logger)
	r.Use(mw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Server.RateRPS > 0 {
		limiter := mw.NewRateLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst)
		stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
		defer stopCleanup()
		r.Use(limiter.Handler)
	}

	rlhttp.MountRoutes(r, handlers)
	a2a.NewHandler(cfg.Server.BaseURL, version, svc).MountRoutes(r)

	// --- MCP ---
	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(mcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "redline",
			Version: version,
			APIKey:  vault.Get("REDLINE_MCP_API_KEY"),
		}, mcp.ServerDeps{Reviews: svc})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mcpSrv.Stop(stopCtx); err != nil {
				slog.Warn("mcp shutdown", "error", err)
			}
		}()
	}

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No absolute write deadline: event streams stay open for the
		// life of a review.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// SIGHUP re-reads config and secrets. Running components keep their
	// construction-time settings.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			if err := vault.Reload(); err != nil {
				slog.Error("secrets reload failed", "error", err)
				continue
			}
			slog.Info("configuration reloaded", "path", cfgPath)
		}
	}()

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
