// Package reply asks a completion backend for the answer sent back to a customer.
package reply

import (
	"context"
	"errors"
	"time"

	"github.com/asperpharma/webhook-service/internal/models"
)

// ErrNoReply means the backend produced nothing usable. Callers substitute a
// fallback reply instead of surfacing the failure.
var ErrNoReply = errors.New("reply: no reply from completion backend")

// Source tells which response shape the reply was read from.
type Source string

const (
	SourceSingleShot Source = "single-shot"
	SourceStreamed   Source = "streamed"
)

// defaultTimeout bounds one Generate call when no timeout is configured.
const defaultTimeout = 60 * time.Second

// DefaultReply is used when a single-shot response carries no reply text.
const DefaultReply = "I'm here to help!"

type Result struct {
	Reply       string
	ConcernSlug string
	Source      Source
}

// Generator produces a reply for message given the prior conversation turns.
type Generator interface {
	Generate(ctx context.Context, message string, history []models.Message) (*Result, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildMessages(message string, history []models.Message) []chatMessage {
	msgs := make([]chatMessage, 0, len(history)+1)
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	return append(msgs, chatMessage{Role: models.RoleUser, Content: message})
}
