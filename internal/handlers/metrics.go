package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asperpharma/webhook-service/internal/auth"
)

// RegisterMetricRoutes exposes Prometheus metrics.
//
// GET /metrics
// - Requires "Authorization: Bearer <token>" when a token is configured
func RegisterMetricRoutes(r gin.IRoutes, token string) {
	r.GET("/metrics", auth.BearerMiddleware(token), gin.WrapH(promhttp.Handler()))
}
