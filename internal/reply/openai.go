package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/asperpharma/webhook-service/internal/metrics"
	"github.com/asperpharma/webhook-service/internal/models"
)

// OpenAIGenerator talks to any OpenAI-compatible chat completions API
// directly, streaming the answer and tagging it with a concern slug.
type OpenAIGenerator struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewOpenAIGenerator(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// Retries would multiply the per-attempt budget; Generate holds one deadline instead.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIGenerator{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, message string, history []models.Message) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msgs := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(SystemPrompt)}
	for _, m := range buildMessages(message, history) {
		if m.Role == models.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	start := time.Now()
	stream := g.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: msgs,
	})
	defer func() { _ = stream.Close() }()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			sb.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	metrics.ReplyDuration.Observe(time.Since(start).Seconds())

	if err := stream.Err(); err != nil {
		metrics.ReplyRequests.WithLabelValues(string(SourceStreamed), "stream_error").Inc()
		g.logger.ErrorContext(ctx, "openai stream failed",
			"model", g.model, "error", err, "partial_len", sb.Len())
		return nil, fmt.Errorf("%w: %v", ErrNoReply, err)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		metrics.ReplyRequests.WithLabelValues(string(SourceStreamed), "empty").Inc()
		return nil, fmt.Errorf("%w: empty completion", ErrNoReply)
	}

	metrics.ReplyRequests.WithLabelValues(string(SourceStreamed), "ok").Inc()
	g.logger.DebugContext(ctx, "openai reply generated",
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"reply_len", len(text))

	return &Result{
		Reply:       text,
		ConcernSlug: ClassifyConcern(message),
		Source:      SourceStreamed,
	}, nil
}
