package logger

import "context"

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are structured attributes added to every log record emitted with the context.
type Fields struct {
	RequestID string
	Route     string
	EventID   string
	SourceIP  string
	Component string
}

// WithFields enriches ctx with log fields. Non-empty values in f override existing ones.
func WithFields(ctx context.Context, f Fields) context.Context {
	merged := GetFields(ctx)

	if f.RequestID != "" {
		merged.RequestID = f.RequestID
	}
	if f.Route != "" {
		merged.Route = f.Route
	}
	if f.EventID != "" {
		merged.EventID = f.EventID
	}
	if f.SourceIP != "" {
		merged.SourceIP = f.SourceIP
	}
	if f.Component != "" {
		merged.Component = f.Component
	}

	return context.WithValue(ctx, fieldsKey, merged)
}

// GetFields returns the fields stored in ctx, or the zero value.
func GetFields(ctx context.Context) Fields {
	if f, ok := ctx.Value(fieldsKey).(Fields); ok {
		return f
	}
	return Fields{}
}

// Truncate shortens s to maxLen bytes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
