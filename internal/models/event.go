package models

import (
	"encoding/json"
	"time"

	"github.com/asperpharma/webhook-service/internal/route"
)

const (
	StatusProcessed = "processed"
	StatusError     = "error"
)

// WebhookEvent is an accepted inbound request, alive for one request.
type WebhookEvent struct {
	Route    route.Route
	SourceIP string
	Headers  map[string]string
	Body     any
	RawBody  []byte
	EventID  string // empty when the caller supplied no idempotency key
}

// EventRecord is one append-only audit row in webhook_events.
type EventRecord struct {
	ID               int64           `json:"id"`
	EventID          string          `json:"event_id,omitempty"`
	Route            route.Route     `json:"route"`
	SourceIP         string          `json:"source_ip"`
	Headers          json.RawMessage `json:"headers"`
	Body             json.RawMessage `json:"body"`
	SignatureValid   bool            `json:"signature_valid"`
	ConversationID   string          `json:"conversation_id,omitempty"`
	AIReply          string          `json:"ai_reply,omitempty"`
	ConcernSlug      string          `json:"concern_slug,omitempty"`
	Status           string          `json:"status"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	CreatedAt        time.Time       `json:"created_at"`
}

// WebhookResponse is the 200 body returned to the sender.
type WebhookResponse struct {
	Reply          string `json:"reply"`
	ConcernSlug    string `json:"concern_slug,omitempty"`
	Logged         bool   `json:"logged"`
	ConversationID string `json:"conversationId,omitempty"`
	Cached         bool   `json:"cached,omitempty"`
	Error          string `json:"error,omitempty"`
}
