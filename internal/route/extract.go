package route

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Extractor locates the customer id and message text in a decoded JSON body.
// Both methods return ("", false) when the value is missing, empty or of the
// wrong type, and never panic.
type Extractor interface {
	CustomerID(body any) (string, bool)
	Message(body any) (string, bool)
}

// pathExtractor tries each candidate path in order and takes the first usable value.
type pathExtractor struct {
	customerPaths [][]string
	messagePaths  [][]string
}

var extractors = map[Route]pathExtractor{
	Gorgias: {
		customerPaths: [][]string{{"customer", "id"}, {"ticket", "customer", "id"}},
		messagePaths:  [][]string{{"message", "body_text"}, {"text"}},
	},
	ManyChat: {
		customerPaths: [][]string{{"user_id"}, {"subscriber", "id"}},
		messagePaths:  [][]string{{"message", "text"}, {"text"}},
	},
	Generic: {
		customerPaths: [][]string{{"customer_id"}, {"user_id"}},
		messagePaths:  [][]string{{"message"}, {"text"}},
	},
}

// ExtractorFor returns the extraction strategy for r.
func ExtractorFor(r Route) Extractor {
	if e, ok := extractors[r]; ok {
		return e
	}
	return extractors[Generic]
}

func (e pathExtractor) CustomerID(body any) (string, bool) {
	for _, p := range e.customerPaths {
		if s, ok := scalarString(lookup(body, p)); ok {
			return s, true
		}
	}
	return "", false
}

func (e pathExtractor) Message(body any) (string, bool) {
	for _, p := range e.messagePaths {
		if s, ok := lookup(body, p).(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// IdempotencyKey returns the caller's dedup key: body event_id, then body id,
// then the x-idempotency-key header value.
func IdempotencyKey(body any, header string) string {
	for _, field := range []string{"event_id", "id"} {
		if s, ok := scalarString(lookup(body, []string{field})); ok {
			return s
		}
	}
	return strings.TrimSpace(header)
}

func lookup(v any, path []string) any {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}

// scalarString renders JSON scalars the way they appeared on the wire.
func scalarString(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	if s == "" {
		return "", false
	}
	return s, true
}
