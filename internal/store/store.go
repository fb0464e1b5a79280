package store

import (
	"context"
	"errors"
	"time"

	"github.com/asperpharma/webhook-service/internal/models"
	"github.com/asperpharma/webhook-service/internal/route"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// EventStore is the append-only webhook audit log.
type EventStore interface {
	// FindEvent returns the earliest record for (eventID, route) or ErrNotFound.
	FindEvent(ctx context.Context, eventID string, r route.Route) (*models.EventRecord, error)
	// AppendEvent inserts rec. inserted is false when a record with the same
	// (event_id, route) already exists.
	AppendEvent(ctx context.Context, rec models.EventRecord) (inserted bool, err error)
}

// ConversationStore persists rolling conversations keyed by (customer, channel).
type ConversationStore interface {
	GetOrCreate(ctx context.Context, customerID, channel string) (*models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	SaveContext(ctx context.Context, id string, c models.ConversationContext, lastMessageAt time.Time) error
}

// AlertStore is the raw Datadog alert log.
type AlertStore interface {
	InsertAlert(ctx context.Context, a models.DatadogAlert) error
}

// Store is everything the service persists.
type Store interface {
	EventStore
	ConversationStore
	AlertStore
	Ping(ctx context.Context) error
	Close()
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
