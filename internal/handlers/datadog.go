package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asperpharma/webhook-service/internal/auth"
	"github.com/asperpharma/webhook-service/internal/config"
	"github.com/asperpharma/webhook-service/internal/id"
	"github.com/asperpharma/webhook-service/internal/logger"
	"github.com/asperpharma/webhook-service/internal/metrics"
	"github.com/asperpharma/webhook-service/internal/models"
	"github.com/asperpharma/webhook-service/internal/store"
)

// DatadogHandler receives Datadog alert webhooks signed with DD-Signature.
type DatadogHandler struct {
	alerts  store.AlertStore
	secret  string
	maxBody int64
	logger  *slog.Logger
}

func NewDatadogHandler(cfg config.DatadogConfig, maxBody int64, alerts store.AlertStore, logger *slog.Logger) *DatadogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatadogHandler{
		alerts:  alerts,
		secret:  cfg.Secret,
		maxBody: maxBody,
		logger:  logger,
	}
}

// RegisterDatadogRoutes mounts the Datadog receiver.
func RegisterDatadogRoutes(r gin.IRoutes, h *DatadogHandler, path string) {
	r.Any(path, h.Handle)
}

func (h *DatadogHandler) Handle(c *gin.Context) {
	ctx := logger.WithFields(c.Request.Context(), logger.Fields{
		Component: "http.webhook.datadog",
		RequestID: requestID(c),
		SourceIP:  clientIP(c.Request),
	})

	if c.Request.Method != http.MethodPost {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	if h.secret == "" {
		h.logger.ErrorContext(ctx, "DATADOG_WEBHOOK_SECRET not configured")
		metrics.DatadogAlerts.WithLabelValues("not_configured").Inc()
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Webhook not configured"})
		return
	}

	signature := c.GetHeader("DD-Signature")
	if signature == "" {
		metrics.DatadogAlerts.WithLabelValues("missing_signature").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing signature"})
		return
	}

	raw, err := readBody(c.Request.Body, h.maxBody)
	if errors.Is(err, errBodyTooLarge) {
		metrics.DatadogAlerts.WithLabelValues("body_too_large").Inc()
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Request body too large (max 256 KB)"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	if !auth.Verify(raw, signature, h.secret) {
		h.logger.WarnContext(ctx, "invalid datadog signature")
		metrics.DatadogAlerts.WithLabelValues("invalid_signature").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	if !json.Valid(raw) {
		metrics.DatadogAlerts.WithLabelValues("invalid_json").Inc()
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	var payload models.DatadogPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Valid JSON in an unexpected shape: keep the raw payload, skip the typed fields.
		h.logger.WarnContext(ctx, "datadog payload has unexpected field types", "error", err)
		payload = models.DatadogPayload{}
	}

	h.logger.InfoContext(ctx, "received valid datadog alert",
		"title", payload.Title,
		"alert_type", payload.AlertType,
		"priority", payload.Priority,
		"alert_id", string(payload.AlertID),
		"alert_transition", payload.AlertTransition,
		"date_happened", string(payload.DateHappened),
		"tags", []string(payload.Tags),
		"body", logger.Truncate(payload.Body, 500),
	)

	alert := models.NewDatadogAlert(id.New(), payload, raw, time.Now().UTC())
	if err := h.alerts.InsertAlert(ctx, alert); err != nil {
		metrics.StoreErrors.WithLabelValues("insert_alert").Inc()
		h.logger.ErrorContext(ctx, "failed to store datadog alert", "error", err)
	}
	metrics.DatadogAlerts.WithLabelValues("accepted").Inc()

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Webhook received and verified",
	})
}
