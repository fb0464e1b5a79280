package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asperpharma/webhook-service/internal/models"
	"github.com/asperpharma/webhook-service/internal/route"
)

type eventKey struct {
	eventID string
	route   route.Route
}

type conversationKey struct {
	customerID string
	channel    string
}

// MemoryStore keeps everything in process memory. It backs local runs without
// DB_URL and the test suites. Safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	events        []models.EventRecord
	eventIndex    map[eventKey]int
	conversations map[string]*models.Conversation
	convIndex     map[conversationKey]string
	alerts        []models.DatadogAlert
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		eventIndex:    make(map[eventKey]int),
		conversations: make(map[string]*models.Conversation),
		convIndex:     make(map[conversationKey]string),
		now:           time.Now,
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() {}

func (m *MemoryStore) FindEvent(_ context.Context, eventID string, r route.Route) (*models.EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.eventIndex[eventKey{eventID, r}]
	if !ok {
		return nil, ErrNotFound
	}
	rec := m.events[i]
	return &rec, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, rec models.EventRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}
	if rec.EventID != "" {
		key := eventKey{rec.EventID, rec.Route}
		if _, dup := m.eventIndex[key]; dup {
			return false, nil
		}
		m.eventIndex[key] = len(m.events)
	}
	m.events = append(m.events, rec)
	return true, nil
}

// Events returns a copy of the audit log in insertion order.
func (m *MemoryStore) Events() []models.EventRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.EventRecord(nil), m.events...)
}

func (m *MemoryStore) GetOrCreate(_ context.Context, customerID, channel string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := conversationKey{customerID, channel}
	if id, ok := m.convIndex[key]; ok {
		return cloneConversation(m.conversations[id]), nil
	}

	now := m.now().UTC()
	conv := &models.Conversation{
		ID:            uuid.NewString(),
		CustomerID:    customerID,
		Channel:       channel,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	m.conversations[conv.ID] = conv
	m.convIndex[key] = conv.ID
	return cloneConversation(conv), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (m *MemoryStore) SaveContext(_ context.Context, id string, c models.ConversationContext, lastMessageAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.Context = cloneContext(c)
	conv.LastMessageAt = lastMessageAt
	return nil
}

// Conversations returns a snapshot of every stored conversation.
func (m *MemoryStore) Conversations() []models.Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, *cloneConversation(c))
	}
	return out
}

func (m *MemoryStore) InsertAlert(_ context.Context, a models.DatadogAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

// Alerts returns a copy of the stored Datadog alerts.
func (m *MemoryStore) Alerts() []models.DatadogAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.DatadogAlert(nil), m.alerts...)
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	out := *c
	out.Context = cloneContext(c.Context)
	return &out
}

func cloneContext(c models.ConversationContext) models.ConversationContext {
	out := models.ConversationContext{
		Messages: append([]models.Message(nil), c.Messages...),
	}
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
