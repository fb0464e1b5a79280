package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DatadogPayload is the body a Datadog webhook integration posts. Field types
// depend on how the integration template was written, so loosely typed fields
// accept both strings and numbers.
type DatadogPayload struct {
	Title           string     `json:"title"`
	Body            string     `json:"body"`
	AlertType       string     `json:"alert_type"`
	Priority        string     `json:"priority"`
	DateHappened    FlexString `json:"date_happened"`
	Tags            Tags       `json:"tags"`
	AlertID         FlexString `json:"alert_id"`
	AlertTransition string     `json:"alert_transition"`
	EventType       string     `json:"event_type"`
	AggregationKey  string     `json:"aggregation_key"`
	Org             *struct {
		ID   FlexString `json:"id"`
		Name string     `json:"name"`
	} `json:"org,omitempty"`
}

// DatadogAlert is one row of datadog_alerts.
type DatadogAlert struct {
	ID              int64
	AlertID         string
	Title           string
	Body            string
	AlertType       string
	Priority        string
	AlertTransition string
	Tags            []string
	DateHappened    *time.Time
	Payload         json.RawMessage
	ReceivedAt      time.Time
}

// NewDatadogAlert flattens a verified payload into an alert row.
func NewDatadogAlert(id int64, p DatadogPayload, raw []byte, receivedAt time.Time) DatadogAlert {
	a := DatadogAlert{
		ID:              id,
		AlertID:         string(p.AlertID),
		Title:           p.Title,
		Body:            p.Body,
		AlertType:       p.AlertType,
		Priority:        p.Priority,
		AlertTransition: p.AlertTransition,
		Tags:            []string(p.Tags),
		Payload:         json.RawMessage(raw),
		ReceivedAt:      receivedAt,
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if t, ok := p.DateHappened.Time(); ok {
		a.DateHappened = &t
	}
	return a
}

// FlexString decodes a JSON string or number into its textual form. null stays empty.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Time interprets the value as Unix seconds or RFC 3339.
func (f FlexString) Time() (time.Time, bool) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// Tags accepts either a JSON array of strings or a single comma-separated string.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*t = out
	return nil
}
