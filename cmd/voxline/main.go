// Command voxline is the main entry point for the Voxline voice versioning server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/corvid-labs/voxline/internal/api"
	"github.com/corvid-labs/voxline/internal/config"
	"github.com/corvid-labs/voxline/internal/confidence"
	"github.com/corvid-labs/voxline/internal/decision"
	"github.com/corvid-labs/voxline/internal/health"
	"github.com/corvid-labs/voxline/internal/observe"
	"github.com/corvid-labs/voxline/internal/playback"
	"github.com/corvid-labs/voxline/internal/quality"
	"github.com/corvid-labs/voxline/internal/resilience"
	"github.com/corvid-labs/voxline/internal/service"
	"github.com/corvid-labs/voxline/internal/timeline"
	"github.com/corvid-labs/voxline/internal/vecindex"
	"github.com/corvid-labs/voxline/pkg/provider/embedder"
	embmock "github.com/corvid-labs/voxline/pkg/provider/embedder/mock"
	"github.com/corvid-labs/voxline/pkg/provider/embedder/rest"
	"github.com/corvid-labs/voxline/pkg/provider/synth"
	synthmock "github.com/corvid-labs/voxline/pkg/provider/synth/mock"
	synthoai "github.com/corvid-labs/voxline/pkg/provider/synth/openai"
	"github.com/corvid-labs/voxline/pkg/provider/synth/xtts"
	"github.com/corvid-labs/voxline/pkg/voice"
)

const (
	defaultListenAddr = ":8080"

	// defaultEmbeddingDims matches the ECAPA-TDNN speaker model the REST
	// embedder defaults to.
	defaultEmbeddingDims = 192
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxline: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxline: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("voxline starting",
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxline",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	dims := cfg.Storage.EmbeddingDimensions
	if dims <= 0 {
		dims = defaultEmbeddingDims
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	var (
		store    timeline.Store
		index    vecindex.Index
		pool     *pgxpool.Pool
		checkers []health.Checker
	)
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			slog.Error("invalid postgres_dsn", "err", err)
			return 1
		}
		// pgvector types must be registered on every connection before the
		// vector columns can be scanned.
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			slog.Error("failed to open postgres pool", "err", err)
			return 1
		}
		defer pool.Close()

		pgStore := timeline.NewPostgresStore(pool, dims)
		pgIndex := vecindex.NewPostgresIndex(pool, dims)
		if err := pgStore.Migrate(ctx); err != nil {
			slog.Error("timeline migration failed", "err", err)
			return 1
		}
		if err := pgIndex.Migrate(ctx); err != nil {
			slog.Error("vector index migration failed", "err", err)
			return 1
		}
		store, index = pgStore, pgIndex
		checkers = append(checkers, health.Checker{Name: "postgres", Check: pool.Ping})
		slog.Info("postgres storage ready", "dims", dims)
	} else {
		store = timeline.NewMemStore()
		index = vecindex.NewMemIndex(dims)
		slog.Warn("no postgres_dsn configured — using in-memory storage, data is lost on restart")
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	emb, err := buildEmbedder(cfg.Providers.Embedder, dims)
	if err != nil {
		slog.Error("failed to build embedder provider", "err", err)
		return 1
	}
	syn, err := buildSynth(cfg.Providers.Synth)
	if err != nil {
		slog.Error("failed to build synthesis provider", "err", err)
		return 1
	}
	slog.Info("providers ready", "embedder", emb.ModelID(), "synth", syn.Name())

	// ── Engines ───────────────────────────────────────────────────────────────
	svc, err := service.New(
		store, index,
		decision.New(store, index, newConfidence(cfg.Confidence), dims, decisionOptions(cfg.Decision)...),
		playback.New(store, playbackOptions(cfg.Playback)...),
		quality.New(qualityOptions(cfg.Quality)...),
		emb, syn,
		serviceOptions(cfg)...,
	)
	if err != nil {
		slog.Error("failed to assemble service", "err", err)
		return 1
	}
	defer svc.Close()

	if err := svc.WarmLoad(ctx); err != nil {
		slog.Error("index warm load failed", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.RateLimitChanged {
			svc.SetRateLimit(new.RateLimit.RequestsPerSecond, new.RateLimit.Burst)
			slog.Info("rate limit changed",
				"requests_per_second", new.RateLimit.RequestsPerSecond,
				"burst", new.RateLimit.Burst,
			)
		}
		if d.DecisionChanged || d.QualityChanged || d.PlaybackChanged {
			slog.Warn("engine threshold changes take effect after a restart")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── HTTP server ───────────────────────────────────────────────────────────
	printStartupSummary(cfg, listenAddr)

	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           api.NewServer(svc, health.New(checkers...), observe.DefaultMetrics()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildEmbedder constructs the embedder named in entry. An empty name falls
// back to the mock provider so the server can run without an embedding
// server for local development. Real backends run behind a circuit breaker
// so a dead embedding server fails fast instead of eating the timeout on
// every request.
func buildEmbedder(entry config.ProviderEntry, dims int) (embedder.Provider, error) {
	switch entry.Name {
	case "rest":
		var opts []rest.Option
		if entry.Model != "" {
			opts = append(opts, rest.WithModelID(entry.Model))
		}
		p, err := rest.New(entry.BaseURL, dims, opts...)
		if err != nil {
			return nil, err
		}
		return resilience.NewEmbedderFallback(p, "rest", resilience.FallbackConfig{}), nil
	case "mock", "":
		if entry.Name == "" {
			slog.Warn("no embedder configured — using mock provider")
		}
		result := make(voice.Embedding, dims)
		result[0] = 1
		return &embmock.Provider{EmbedResult: result, Dims: dims}, nil
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", entry.Name)
	}
}

// buildSynth constructs the synthesis provider named in entry. An empty
// name falls back to the mock provider. When the entry is an XTTS server
// and also carries an API key, an OpenAI catalogue voice is registered as
// a fallback: it cannot match the versioned voice but keeps playback
// available during primary outages.
func buildSynth(entry config.ProviderEntry) (synth.Provider, error) {
	switch entry.Name {
	case "xtts":
		var opts []xtts.Option
		if entry.Model != "" {
			opts = append(opts, xtts.WithLanguage(entry.Model))
		}
		p, err := xtts.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		group := resilience.NewSynthFallback(p, "xtts", resilience.FallbackConfig{})
		if entry.APIKey != "" {
			fb, err := synthoai.New(entry.APIKey, "")
			if err != nil {
				return nil, err
			}
			group.AddFallback("openai", fb)
		}
		return group, nil
	case "openai":
		var opts []synthoai.Option
		if entry.BaseURL != "" {
			opts = append(opts, synthoai.WithBaseURL(entry.BaseURL))
		}
		p, err := synthoai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return resilience.NewSynthFallback(p, "openai", resilience.FallbackConfig{}), nil
	case "mock", "":
		if entry.Name == "" {
			slog.Warn("no synthesis provider configured — using mock provider")
		}
		return &synthmock.Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown synthesis provider %q", entry.Name)
	}
}

// ── Engine wiring ─────────────────────────────────────────────────────────────
//
// Zero config values mean "use the engine default", so options are only
// appended for fields the operator actually set.

func newConfidence(cfg config.ConfidenceConfig) *confidence.Engine {
	var opts []confidence.Option
	if cfg.SimilarityWeight != 0 || cfg.DeviceWeight != 0 || cfg.SNRWeight != 0 {
		opts = append(opts, confidence.WithWeights(cfg.SimilarityWeight, cfg.DeviceWeight, cfg.SNRWeight))
	}
	if cfg.DeviceFloor != 0 {
		opts = append(opts, confidence.WithDeviceFloor(cfg.DeviceFloor))
	}
	return confidence.New(opts...)
}

func decisionOptions(cfg config.DecisionConfig) []decision.Option {
	var opts []decision.Option
	if cfg.MergeThreshold != 0 || cfg.NewVersionThreshold != 0 {
		opts = append(opts, decision.WithThresholds(cfg.MergeThreshold, cfg.NewVersionThreshold))
	}
	if cfg.TopK > 0 {
		opts = append(opts, decision.WithTopK(cfg.TopK))
	}
	return opts
}

func qualityOptions(cfg config.QualityConfig) []quality.Option {
	var opts []quality.Option
	if cfg.MinDurationSeconds != 0 {
		opts = append(opts, quality.WithMinDuration(cfg.MinDurationSeconds))
	}
	if cfg.MinSNRdB != 0 {
		opts = append(opts, quality.WithMinSNR(cfg.MinSNRdB))
	}
	return opts
}

func playbackOptions(cfg config.PlaybackConfig) []playback.Option {
	var opts []playback.Option
	if cfg.ExactEpsilonYears != 0 {
		opts = append(opts, playback.WithExactEpsilon(cfg.ExactEpsilonYears))
	}
	if cfg.GapPenaltySlope != 0 || cfg.GapPenaltyCap != 0 {
		opts = append(opts, playback.WithGapPenalty(cfg.GapPenaltySlope, cfg.GapPenaltyCap))
	}
	if cfg.PredictionCeiling != 0 {
		opts = append(opts, playback.WithPredictionCeiling(cfg.PredictionCeiling))
	}
	if cfg.DampingTauYears != 0 {
		opts = append(opts, playback.WithDampingTau(cfg.DampingTauYears))
	}
	return opts
}

func serviceOptions(cfg *config.Config) []service.Option {
	var opts []service.Option
	if cfg.Providers.Timeout > 0 {
		opts = append(opts, service.WithProviderTimeout(cfg.Providers.Timeout))
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		opts = append(opts, service.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}
	return opts
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenAddr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Voxline — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Embedder", cfg.Providers.Embedder.Name, cfg.Providers.Embedder.Model)
	printProvider("Synth", cfg.Providers.Synth.Name, cfg.Providers.Synth.Model)
	storage := "in-memory"
	if cfg.Storage.PostgresDSN != "" {
		storage = "postgres"
	}
	fmt.Printf("║  Storage         : %-19s ║\n", storage)
	fmt.Printf("║  Listen addr     : %-19s ║\n", listenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(mock)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the default logger. The returned LevelVar lets the
// config watcher change verbosity without a restart.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
