package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/asperpharma/webhook-service/internal/config"
	"github.com/asperpharma/webhook-service/internal/handlers"
	"github.com/asperpharma/webhook-service/internal/store"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	Store   store.Store
	Webhook *handlers.WebhookHandler
	Datadog *handlers.DatadogHandler
}

// NewRouter wires probes, metrics and both webhook receivers.
// Public: /health, /ready, /process-webhook (also "/"), /datadog-webhook
// Token protected: /metrics
func NewRouter(cfg config.Config, deps Deps) *gin.Engine {
	r := gin.New()

	// OTel opens the span first so panics recovered below still carry a trace.
	if cfg.OTel.Enabled() {
		r.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	r.Use(gin.Recovery())
	r.Use(CORS())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the event store is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	handlers.RegisterMetricRoutes(r, cfg.MetricsToken)
	handlers.RegisterWebhookRoutes(r, deps.Webhook, "/process-webhook", "/")
	handlers.RegisterDatadogRoutes(r, deps.Datadog, "/datadog-webhook")

	return r
}
