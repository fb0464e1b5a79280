package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/asperpharma/webhook-service/internal/config"
	"github.com/asperpharma/webhook-service/internal/conversation"
	"github.com/asperpharma/webhook-service/internal/handlers"
	"github.com/asperpharma/webhook-service/internal/httpserver"
	"github.com/asperpharma/webhook-service/internal/id"
	"github.com/asperpharma/webhook-service/internal/logger"
	"github.com/asperpharma/webhook-service/internal/ratelimit"
	"github.com/asperpharma/webhook-service/internal/reply"
	"github.com/asperpharma/webhook-service/internal/store"
	"github.com/asperpharma/webhook-service/internal/telemetry"
	"github.com/asperpharma/webhook-service/internal/webhook"
)

// main boots the service: config → otel → logger → storage → limiter → reply backend → HTTP server.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before the logger, which ships through the OTel provider in production.
	tel, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if tel != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "webhook service starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	limiterStore, closeLimiter, err := openLimiterStore(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open rate limit store", "error", err)
		os.Exit(1)
	}
	defer closeLimiter()

	generator, err := newGenerator(cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to configure reply backend", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewLimiter(limiterStore, cfg.RateLimit.Max, cfg.RateLimit.Window, slog.Default())
	processor := webhook.NewProcessor(st, conversation.NewService(st, slog.Default()), generator, slog.Default())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Store:   st,
		Webhook: handlers.NewWebhookHandler(cfg.Webhook, limiter, processor),
		Datadog: handlers.NewDatadogHandler(cfg.Datadog, cfg.Webhook.MaxBodyBytes, st, slog.Default()),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Reply generation is capped at REPLY_TIMEOUT per request, retries included.
		WriteTimeout: cfg.Reply.Timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if tel != nil {
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// openStore connects to Postgres and applies the schema, or falls back to
// process memory when DB_URL is unset.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.UsesMemoryStore() {
		slog.WarnContext(ctx, "DB_URL not set, using in-memory store; events are lost on restart")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	slog.InfoContext(ctx, "database connected")
	return pg, nil
}

func openLimiterStore(ctx context.Context, cfg config.Config) (ratelimit.Store, func(), error) {
	if cfg.RateLimit.Backend != config.RateLimitRedis {
		return ratelimit.NewMemoryStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	slog.InfoContext(ctx, "redis connected")

	return ratelimit.NewRedisStore(client), func() { _ = client.Close() }, nil
}

func newGenerator(cfg config.Config) (reply.Generator, error) {
	if cfg.Reply.Backend == config.ReplyOpenAI {
		g, err := reply.NewOpenAIGenerator(reply.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.Reply.Timeout,
		}, slog.Default())
		if err != nil {
			return nil, err
		}
		return g, nil
	}

	if cfg.Reply.URL == "" || cfg.Reply.APIKey == "" {
		slog.Warn("reply gateway not fully configured, every reply will use the fallback")
	}
	return reply.NewGatewayClient(reply.GatewayConfig{
		URL:     cfg.Reply.URL,
		APIKey:  cfg.Reply.APIKey,
		Timeout: cfg.Reply.Timeout,
	}, nil, slog.Default()), nil
}
