package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asperpharma/webhook-service/internal/models"
	"github.com/asperpharma/webhook-service/internal/route"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer for events, conversations and alerts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string, maxConns int32) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) FindEvent(ctx context.Context, eventID string, r route.Route) (*models.EventRecord, error) {
	var (
		rec                               models.EventRecord
		evID, convID, reply, slug, errMsg *string
		routeStr                          string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, event_id, route, source_ip, headers, body, signature_valid,
		       conversation_id, ai_reply, concern_slug, status, error_message,
		       processing_time_ms, created_at
		FROM webhook_events
		WHERE event_id = $1 AND route = $2
		ORDER BY created_at
		LIMIT 1
	`, textSafe(eventID), string(r)).Scan(
		&rec.ID, &evID, &routeStr, &rec.SourceIP, &rec.Headers, &rec.Body, &rec.SignatureValid,
		&convID, &reply, &slug, &rec.Status, &errMsg,
		&rec.ProcessingTimeMS, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}

	rec.Route = route.Route(routeStr)
	rec.EventID = deref(evID)
	rec.ConversationID = deref(convID)
	rec.AIReply = deref(reply)
	rec.ConcernSlug = deref(slug)
	rec.ErrorMessage = deref(errMsg)
	return &rec, nil
}

// AppendEvent inserts an audit record and returns inserted=false when it is a duplicate.
//
// Duplicate detection is enforced by the partial unique index on (event_id, route),
// so concurrent deliveries of the same event converge on one row.
func (p *PostgresStore) AppendEvent(ctx context.Context, rec models.EventRecord) (bool, error) {
	if rec.Route == "" || rec.Status == "" {
		return false, errors.New("route and status required")
	}

	headers := json.RawMessage(jsonbSafe(rec.Headers))
	if len(headers) == 0 {
		headers = json.RawMessage(`{}`)
	}
	var body any
	if len(rec.Body) > 0 {
		body = json.RawMessage(jsonbSafe(rec.Body))
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// RETURNING 1 only when inserted; duplicates return no rows.
	var one int
	err := p.pool.QueryRow(ctx, `
		INSERT INTO webhook_events(
			id, event_id, route, source_ip, headers, body, signature_valid,
			conversation_id, ai_reply, concern_slug, status, error_message,
			processing_time_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (event_id, route) WHERE event_id IS NOT NULL DO NOTHING
		RETURNING 1
	`,
		rec.ID, nullable(rec.EventID), string(rec.Route), textSafe(rec.SourceIP), headers, body, rec.SignatureValid,
		nullable(rec.ConversationID), nullable(rec.AIReply), nullable(rec.ConcernSlug), rec.Status, nullable(rec.ErrorMessage),
		rec.ProcessingTimeMS, createdAt,
	).Scan(&one)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("append event: %w", err)
}

// GetOrCreate returns the conversation for (customerID, channel), creating it
// with an empty history when absent. The upsert makes concurrent first
// messages from one customer land on the same row.
func (p *PostgresStore) GetOrCreate(ctx context.Context, customerID, channel string) (*models.Conversation, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO conversations(id, customer_id, channel, context, last_message_at, created_at)
		VALUES ($1, $2, $3, '{"messages": []}'::jsonb, now(), now())
		ON CONFLICT (customer_id, channel) DO UPDATE SET customer_id = EXCLUDED.customer_id
		RETURNING id, customer_id, channel, context, last_message_at, created_at
	`, uuid.NewString(), textSafe(customerID), channel)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	return conv, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, customer_id, channel, context, last_message_at, created_at
		FROM conversations
		WHERE id = $1
	`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (p *PostgresStore) SaveContext(ctx context.Context, id string, c models.ConversationContext, lastMessageAt time.Time) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE conversations
		SET context = $2, last_message_at = $3
		WHERE id = $1
	`, id, jsonbSafe(raw), lastMessageAt)
	if err != nil {
		return fmt.Errorf("save conversation context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) InsertAlert(ctx context.Context, a models.DatadogAlert) error {
	tags := make([]string, 0, len(a.Tags))
	for _, t := range a.Tags {
		tags = append(tags, textSafe(t))
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO datadog_alerts(
			id, alert_id, title, body, alert_type, priority,
			alert_transition, tags, date_happened, payload, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		a.ID, nullable(a.AlertID), nullable(a.Title), nullable(a.Body), nullable(a.AlertType), nullable(a.Priority),
		nullable(a.AlertTransition), tags, a.DateHappened, json.RawMessage(jsonbSafe(a.Payload)), a.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var (
		conv models.Conversation
		raw  []byte
	)
	if err := row.Scan(&conv.ID, &conv.CustomerID, &conv.Channel, &raw, &conv.LastMessageAt, &conv.CreatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &conv.Context); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}
	return &conv, nil
}

// nullable maps "" to NULL and strips NULs from everything else.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	s = textSafe(s)
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
