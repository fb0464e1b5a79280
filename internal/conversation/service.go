// Package conversation maintains the rolling per-customer dialogue that is
// sent to the reply backend as history.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asperpharma/webhook-service/internal/models"
	"github.com/asperpharma/webhook-service/internal/store"
)

// MaxMessages is how many turns a conversation keeps.
const MaxMessages = 20

// AppendTurns adds the user turn and, when reply is non-empty, the assistant
// turn, then keeps only the most recent MaxMessages entries.
func AppendTurns(msgs []models.Message, userMessage, reply string, at time.Time) []models.Message {
	out := make([]models.Message, 0, len(msgs)+2)
	out = append(out, msgs...)
	out = append(out, models.Message{Role: models.RoleUser, Content: userMessage, Timestamp: at})
	if reply != "" {
		out = append(out, models.Message{Role: models.RoleAssistant, Content: reply, Timestamp: at})
	}
	if len(out) > MaxMessages {
		out = out[len(out)-MaxMessages:]
	}
	return out
}

// Service resolves and updates conversations. Updates to one conversation are
// serialized within the process.
type Service struct {
	store  store.ConversationStore
	locks  *keyedMutex
	now    func() time.Time
	logger *slog.Logger
}

func NewService(st store.ConversationStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: logger,
	}
}

// Resolve returns the conversation for (customerID, channel), creating it if needed.
func (s *Service) Resolve(ctx context.Context, customerID, channel string) (*models.Conversation, error) {
	conv, err := s.store.GetOrCreate(ctx, customerID, channel)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation %s/%s: %w", channel, customerID, err)
	}
	return conv, nil
}

// Update appends the exchange to the stored history. The history is re-read
// under the conversation's lock so concurrent requests in this process do not
// drop each other's turns.
func (s *Service) Update(ctx context.Context, id, userMessage, reply string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", id, err)
	}

	now := s.now().UTC()
	next := conv.Context
	next.Messages = AppendTurns(conv.Context.Messages, userMessage, reply, now)

	if err := s.store.SaveContext(ctx, id, next, now); err != nil {
		return fmt.Errorf("save conversation %s: %w", id, err)
	}

	s.logger.DebugContext(ctx, "conversation updated",
		"conversation_id", id, "messages", len(next.Messages))
	return nil
}
