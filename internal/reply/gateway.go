package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/asperpharma/webhook-service/internal/logger"
	"github.com/asperpharma/webhook-service/internal/metrics"
	"github.com/asperpharma/webhook-service/internal/models"
)

// GatewayClient posts the conversation to the beauty-assistant endpoint,
// which answers with either a JSON object or an SSE token stream.
type GatewayClient struct {
	url        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

type GatewayConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewGatewayClient(cfg GatewayConfig, httpClient *http.Client, logger *slog.Logger) *GatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayClient{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (g *GatewayClient) Generate(ctx context.Context, message string, history []models.Message) (*Result, error) {
	if g.url == "" || g.apiKey == "" {
		g.logger.ErrorContext(ctx, "reply backend not configured",
			"url_set", g.url != "", "api_key_set", g.apiKey != "")
		metrics.ReplyRequests.WithLabelValues("none", "not_configured").Inc()
		return nil, fmt.Errorf("%w: backend not configured", ErrNoReply)
	}

	// The whole exchange, stream included, shares one deadline.
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payload, err := json.Marshal(struct {
		Messages []chatMessage `json:"messages"`
	}{Messages: buildMessages(message, history)})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrNoReply, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		metrics.ReplyRequests.WithLabelValues("none", "transport_error").Inc()
		g.logger.ErrorContext(ctx, "reply backend request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNoReply, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		metrics.ReplyRequests.WithLabelValues("none", "bad_status").Inc()
		g.logger.ErrorContext(ctx, "reply backend returned error",
			"status", resp.StatusCode, "body", logger.Truncate(string(snippet), 500))
		return nil, fmt.Errorf("%w: status %d", ErrNoReply, resp.StatusCode)
	}

	src := sourceFor(resp.Header.Get("Content-Type"))
	res, err := src.read(resp.Body)
	metrics.ReplyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReplyRequests.WithLabelValues(sourceLabel(src), "empty").Inc()
		g.logger.WarnContext(ctx, "reply backend returned no usable reply", "error", err)
		return nil, err
	}

	metrics.ReplyRequests.WithLabelValues(string(res.Source), "ok").Inc()
	g.logger.DebugContext(ctx, "reply generated",
		"source", res.Source,
		"duration_ms", time.Since(start).Milliseconds(),
		"reply_len", len(res.Reply))
	return res, nil
}

func sourceLabel(src replySource) string {
	if _, ok := src.(streamedReply); ok {
		return string(SourceStreamed)
	}
	return string(SourceSingleShot)
}
