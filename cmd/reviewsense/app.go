package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hrygo/reviewsense/ai/core/errs"
	"github.com/hrygo/reviewsense/ai/core/llm"
	"github.com/hrygo/reviewsense/ai/metrics"
	"github.com/hrygo/reviewsense/ai/summary"
	"github.com/hrygo/reviewsense/internal/profile"
	"github.com/hrygo/reviewsense/store"
	"github.com/hrygo/reviewsense/store/db"
	redisstore "github.com/hrygo/reviewsense/store/redis"
)

// app is the composition root shared by the subcommands.
type app struct {
	profile *profile.Profile
	store   *store.Store
	metrics *metrics.PrometheusExporter
	redis   *redis.Client
}

// newApp loads the profile, opens the database and migrates it.
func newApp(ctx context.Context) (*app, error) {
	instanceProfile, err := loadProfile()
	if err != nil {
		return nil, err
	}

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		printDatabaseError(err, instanceProfile)
		return nil, err
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		printDatabaseError(err, instanceProfile)
		return nil, err
	}

	return &app{
		profile: instanceProfile,
		store:   storeInstance,
		metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig()),
	}, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
}

// summaryStore returns the Redis summary store when one is configured,
// otherwise the database.
func (a *app) summaryStore(ctx context.Context) (summary.Store, error) {
	if a.profile.RedisAddr == "" {
		return a.store, nil
	}

	if a.redis == nil {
		a.redis = redis.NewClient(&redis.Options{Addr: a.profile.RedisAddr})
	}
	s := redisstore.NewSummaryStore(a.redis, a.profile.RedisPrefix)
	if err := s.Ping(ctx); err != nil {
		return nil, errs.StoreUnavailable("redis.ping", err)
	}
	slog.Debug("Using redis summary store", "addr", a.profile.RedisAddr, "prefix", a.profile.RedisPrefix)
	return s, nil
}

// llmClient builds the provider selected by the profile and wraps it in
// the retrying client.
func (a *app) llmClient(ctx context.Context) (*llm.Client, error) {
	p := a.profile
	if !p.IsAIEnabled() {
		return nil, errs.InvalidInput("llm.config", "no API key configured; set REVIEWSENSE_AI_LLM_API_KEY")
	}

	provider, err := llm.NewProvider(ctx, &llm.Config{
		Provider: p.LLMProvider,
		Model:    p.LLMModel,
		APIKey:   p.LLMAPIKey,
		BaseURL:  p.LLMBaseURL,
		Timeout:  p.LLMTimeout,
	})
	if err != nil {
		return nil, err
	}

	cfg := llm.DefaultClientConfig()
	cfg.Model = p.LLMModel
	cfg.Retry.MaxAttempts = p.LLMMaxAttempts
	cfg.Retry.DefaultRetryDelay = p.RetryDelay()
	cfg.RequestsPerSecond = p.LLMRequestsPerSecond

	return llm.NewClient(provider, cfg, llm.WithRecorder(a.metrics)), nil
}

func (a *app) summaryCache(ctx context.Context) (*summary.Cache, error) {
	s, err := a.summaryStore(ctx)
	if err != nil {
		return nil, err
	}
	return summary.NewCache(s,
		summary.WithDefaultTTL(a.profile.SummaryTTL),
		summary.WithCacheRecorder(a.metrics),
	), nil
}

func (a *app) summaryService(ctx context.Context) (*summary.Service, error) {
	cache, err := a.summaryCache(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.llmClient(ctx)
	if err != nil {
		return nil, err
	}
	prompts, err := summary.LoadPromptConfig(a.profile.PromptDir)
	if err != nil {
		return nil, err
	}

	cfg := summary.DefaultConfig()
	cfg.TTL = a.profile.SummaryTTL
	cfg.SingleFlight = a.profile.SingleFlight

	return summary.NewService(cache, client, a.store, cfg,
		summary.WithRecorder(a.metrics),
		summary.WithPrompts(prompts),
	)
}

// serveMetrics serves the exporter on MetricsAddr until ctx is done. It
// is a no-op when no address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.profile.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.profile.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Serving metrics", "addr", a.profile.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
