package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

func sampleDatadogAlert(now time.Time) []byte {
	b, _ := json.Marshal(map[string]any{
		"title":            "Test Alert from webhookctl",
		"body":             "This is a test alert to verify webhook signature validation",
		"alert_type":       "info",
		"priority":         "normal",
		"alert_id":         strconv.FormatInt(now.UnixMilli(), 10),
		"alert_transition": "Triggered",
		"date_happened":    now.Unix(),
		"tags":             []string{"env:test", "source:webhookctl"},
	})
	return b
}

// sampleMessage shapes a message the way the given route's sender does.
func sampleMessage(route, customer, message, eventID string) ([]byte, error) {
	var body map[string]any

	switch strings.ToLower(strings.TrimSpace(route)) {
	case "gorgias":
		body = map[string]any{
			"customer": map[string]any{"id": customer},
			"message":  map[string]any{"body_text": message},
		}
	case "manychat":
		body = map[string]any{
			"user_id": customer,
			"message": map[string]any{"text": message},
		}
	case "", "generic":
		body = map[string]any{
			"customer_id": customer,
			"message":     message,
		}
	default:
		return nil, fmt.Errorf("unknown route %q", route)
	}

	if eventID != "" {
		body["event_id"] = eventID
	}
	return json.Marshal(body)
}
