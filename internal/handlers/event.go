package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/asperpharma/webhook-service/internal/auth"
	"github.com/asperpharma/webhook-service/internal/config"
	"github.com/asperpharma/webhook-service/internal/logger"
	"github.com/asperpharma/webhook-service/internal/metrics"
	"github.com/asperpharma/webhook-service/internal/models"
	"github.com/asperpharma/webhook-service/internal/ratelimit"
	"github.com/asperpharma/webhook-service/internal/route"
	"github.com/asperpharma/webhook-service/internal/webhook"
)

const serviceName = "process-webhook"

var errBodyTooLarge = errors.New("request body too large")

// WebhookHandler is the process-webhook entry point.
//
// Rejections (405, 400, 429, 401) happen before anything is recorded. Once a
// request passes them the response is always 200.
type WebhookHandler struct {
	limiter   *ratelimit.Limiter
	processor *webhook.Processor
	secret    string
	maxBody   int64
}

func NewWebhookHandler(cfg config.WebhookConfig, limiter *ratelimit.Limiter, processor *webhook.Processor) *WebhookHandler {
	return &WebhookHandler{
		limiter:   limiter,
		processor: processor,
		secret:    cfg.Secret,
		maxBody:   cfg.MaxBodyBytes,
	}
}

// RegisterWebhookRoutes mounts the handler on every path it answers.
// Any method is routed here so the handler owns the 405 response.
func RegisterWebhookRoutes(r gin.IRoutes, h *WebhookHandler, paths ...string) {
	for _, p := range paths {
		r.Any(p, h.Handle)
	}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	start := time.Now()
	ctx := logger.WithFields(c.Request.Context(), logger.Fields{
		Component: "http.webhook.process",
		RequestID: requestID(c),
	})

	if c.Request.Method == http.MethodGet || c.Query("health") == "true" {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
		return
	}

	if c.Request.Method != http.MethodPost {
		reject(c, "method", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	raw, err := readBody(c.Request.Body, h.maxBody)
	if errors.Is(err, errBodyTooLarge) {
		reject(c, "body_too_large", http.StatusBadRequest, "Request body too large (max 256 KB)")
		return
	}
	if err != nil {
		reject(c, "read_error", http.StatusBadRequest, "Invalid JSON body")
		return
	}

	body, err := decodeJSON(raw)
	if err != nil {
		reject(c, "invalid_json", http.StatusBadRequest, "Invalid JSON body")
		return
	}

	r := route.Resolve(c.Query("route"), c.GetHeader("x-webhook-route"))
	ip := clientIP(c.Request)
	ctx = logger.WithFields(ctx, logger.Fields{Route: string(r), SourceIP: ip})

	if res := h.limiter.Check(ctx, ip); res.Limited {
		c.Header("Retry-After", strconv.Itoa(res.RetryAfter))
		reject(c, "rate_limited", http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	if !auth.VerifyOptional(raw, signatureHeader(c), h.secret) {
		reject(c, "invalid_signature", http.StatusUnauthorized, "Invalid signature")
		return
	}

	eventID := route.IdempotencyKey(body, c.GetHeader("x-idempotency-key"))
	ctx = logger.WithFields(ctx, logger.Fields{EventID: eventID})

	if cached, hit := h.processor.Lookup(ctx, eventID, r); hit {
		c.JSON(http.StatusOK, cached)
		return
	}

	metrics.WebhooksReceived.WithLabelValues(string(r)).Inc()

	ev := models.WebhookEvent{
		Route:    r,
		SourceIP: ip,
		Headers:  snapshotHeaders(c.Request.Header),
		Body:     body,
		RawBody:  raw,
		EventID:  eventID,
	}
	// Reaching here means verification passed or no secret is configured; both count as valid.
	c.JSON(http.StatusOK, h.processor.Process(ctx, ev, true, start))
}

func reject(c *gin.Context, reason string, status int, msg string) {
	metrics.WebhooksRejected.WithLabelValues(reason).Inc()
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// readBody reads at most limit bytes and reports errBodyTooLarge past that.
func readBody(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, errBodyTooLarge
	}
	return raw, nil
}

// decodeJSON parses exactly one JSON value, keeping numbers in their wire form.
func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// clientIP returns the first X-Forwarded-For hop, then X-Real-IP, then "unknown".
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return "unknown"
}

func signatureHeader(c *gin.Context) string {
	if sig := c.GetHeader("x-webhook-signature"); sig != "" {
		return sig
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return authz[7:]
	}
	return authz
}

// redactedHeaders carry credentials and are masked in the audit record.
var redactedHeaders = map[string]bool{
	"authorization": true,
	"apikey":        true,
	"cookie":        true,
}

// snapshotHeaders flattens request headers for the audit record.
func snapshotHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		key := strings.ToLower(k)
		if redactedHeaders[key] {
			out[key] = "[redacted]"
			continue
		}
		out[key] = strings.Join(v, ", ")
	}
	return out
}

func requestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
