// Package webhook runs an accepted webhook through conversation lookup, reply
// generation and audit logging. Once a request reaches the Processor the
// sender always gets a 200 body, whatever fails downstream.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/asperpharma/webhook-service/internal/conversation"
	"github.com/asperpharma/webhook-service/internal/metrics"
	"github.com/asperpharma/webhook-service/internal/models"
	"github.com/asperpharma/webhook-service/internal/reply"
	"github.com/asperpharma/webhook-service/internal/route"
	"github.com/asperpharma/webhook-service/internal/store"
)

const (
	FallbackReply  = "Thank you for your message! Our beauty consultant will assist you shortly."
	NoMessageReply = "No message to process"
	CachedReply    = "Request already processed"

	errNoMessage = "No message found in webhook body"
	errInternal  = "internal error"
)

type Processor struct {
	events        store.EventStore
	conversations *conversation.Service
	generator     reply.Generator
	recorder      *Recorder
	logger        *slog.Logger
}

func NewProcessor(
	events store.EventStore,
	conversations *conversation.Service,
	generator reply.Generator,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		events:        events,
		conversations: conversations,
		generator:     generator,
		recorder:      NewRecorder(events, logger),
		logger:        logger,
	}
}

// Lookup returns the stored answer for a redelivered (eventID, route).
// An empty eventID or a store failure reports no hit.
func (p *Processor) Lookup(ctx context.Context, eventID string, r route.Route) (*models.WebhookResponse, bool) {
	if eventID == "" {
		return nil, false
	}

	rec, err := p.events.FindEvent(ctx, eventID, r)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("find_event").Inc()
		p.logger.WarnContext(ctx, "idempotency lookup failed, processing as new", "error", err)
		return nil, false
	}

	text := rec.AIReply
	if text == "" {
		text = CachedReply
	}
	metrics.WebhooksCached.WithLabelValues(string(r)).Inc()
	p.logger.InfoContext(ctx, "duplicate webhook served from log", "record_id", rec.ID)

	return &models.WebhookResponse{
		Reply:       text,
		ConcernSlug: rec.ConcernSlug,
		Logged:      true,
		Cached:      true,
	}, true
}

// Process handles an accepted event that passed every rejection check.
func (p *Processor) Process(ctx context.Context, ev models.WebhookEvent, signatureValid bool, start time.Time) (resp models.WebhookResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.ErrorContext(ctx, "webhook processing panicked",
				"panic", rec, "stack", string(debug.Stack()))
			p.recorder.Record(ctx, ev, Outcome{SignatureValid: signatureValid}, errInternal, time.Since(start))
			resp = models.WebhookResponse{Reply: FallbackReply, Logged: false, Error: errInternal}
		}
		metrics.ProcessingDuration.WithLabelValues(string(ev.Route)).Observe(time.Since(start).Seconds())
	}()

	ex := route.ExtractorFor(ev.Route)

	message, ok := ex.Message(ev.Body)
	if !ok {
		p.logger.WarnContext(ctx, "no message in webhook body")
		logged := p.recorder.Record(ctx, ev, Outcome{SignatureValid: signatureValid}, errNoMessage, time.Since(start))
		return models.WebhookResponse{Reply: NoMessageReply, Logged: logged}
	}

	var (
		conversationID string
		history        []models.Message
	)
	if customerID, ok := ex.CustomerID(ev.Body); ok {
		conv, err := p.conversations.Resolve(ctx, customerID, string(ev.Route))
		if err != nil {
			metrics.StoreErrors.WithLabelValues("resolve_conversation").Inc()
			p.logger.WarnContext(ctx, "conversation unavailable, replying without history", "error", err)
		} else {
			conversationID = conv.ID
			history = conv.Context.Messages
		}
	} else {
		p.logger.DebugContext(ctx, "no customer id in webhook body, replying without history")
	}

	out := Outcome{ConversationID: conversationID, SignatureValid: signatureValid}
	generated := ""

	res, err := p.generator.Generate(ctx, message, history)
	if err != nil || res == nil || res.Reply == "" {
		p.logger.WarnContext(ctx, "reply generation failed, using fallback", "error", err)
		out.Reply = FallbackReply
	} else {
		generated = res.Reply
		out.Reply = res.Reply
		out.ConcernSlug = res.ConcernSlug
	}

	if conversationID != "" {
		if err := p.conversations.Update(ctx, conversationID, message, generated); err != nil {
			metrics.StoreErrors.WithLabelValues("update_conversation").Inc()
			p.logger.WarnContext(ctx, "failed to update conversation", "conversation_id", conversationID, "error", err)
		}
	}

	logged := p.recorder.Record(ctx, ev, out, "", time.Since(start))

	p.logger.InfoContext(ctx, "webhook processed",
		"conversation_id", conversationID,
		"concern_slug", out.ConcernSlug,
		"logged", logged,
		"duration_ms", time.Since(start).Milliseconds())

	return models.WebhookResponse{
		Reply:          out.Reply,
		ConcernSlug:    out.ConcernSlug,
		Logged:         logged,
		ConversationID: conversationID,
	}
}
