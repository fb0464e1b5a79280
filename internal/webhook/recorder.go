package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/asperpharma/webhook-service/internal/id"
	"github.com/asperpharma/webhook-service/internal/metrics"
	"github.com/asperpharma/webhook-service/internal/models"
	"github.com/asperpharma/webhook-service/internal/store"
)

// Outcome is what processing produced for the audit record.
type Outcome struct {
	ConversationID string
	Reply          string
	ConcernSlug    string
	SignatureValid bool
}

// Recorder appends audit records. It never fails the request.
type Recorder struct {
	events store.EventStore
	logger *slog.Logger
}

func NewRecorder(events store.EventStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{events: events, logger: logger}
}

// Record stores one record for ev and reports whether it was written.
// A non-empty errMsg marks the record as an error.
func (r *Recorder) Record(ctx context.Context, ev models.WebhookEvent, out Outcome, errMsg string, elapsed time.Duration) (logged bool) {
	status := models.StatusProcessed
	if errMsg != "" {
		status = models.StatusError
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "panic while logging webhook event", "panic", rec)
			logged = false
		}
		outcome := "ok"
		if !logged {
			outcome = "failed"
		}
		metrics.EventsLogged.WithLabelValues(status, outcome).Inc()
	}()

	headers, err := json.Marshal(ev.Headers)
	if err != nil {
		headers = []byte(`{}`)
	}
	body := ev.RawBody
	if len(body) == 0 && ev.Body != nil {
		body, _ = json.Marshal(ev.Body)
	}

	rec := models.EventRecord{
		ID:               id.New(),
		EventID:          ev.EventID,
		Route:            ev.Route,
		SourceIP:         ev.SourceIP,
		Headers:          headers,
		Body:             body,
		SignatureValid:   out.SignatureValid,
		ConversationID:   out.ConversationID,
		AIReply:          out.Reply,
		ConcernSlug:      out.ConcernSlug,
		Status:           status,
		ErrorMessage:     errMsg,
		ProcessingTimeMS: elapsed.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}

	inserted, err := r.events.AppendEvent(ctx, rec)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to log webhook event", "status", status, "error", err)
		return false
	}
	if !inserted {
		// A concurrent delivery with the same key already wrote the record.
		r.logger.InfoContext(ctx, "webhook event already logged", "status", status)
	}
	return true
}
