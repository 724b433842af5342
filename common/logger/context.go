package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, enabling zero-touch logging where pipeline
// context (user_id, queue offsets, etc.) is automatically included in all log statements.
type LogFields struct {
	UserID    *string // Owner of the batch being ingested or aggregated
	RunID     *int64  // Aggregation run ID
	BatchSize *int    // Heartbeat count for the batch in flight
	Timezone  *string // Client-reported IANA zone
	Component string  // Component name (OTel semantic convention style, e.g. "trackio.worker.aggregator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.RunID != nil {
		result.RunID = next.RunID
	}
	if next.BatchSize != nil {
		result.BatchSize = next.BatchSize
	}
	if next.Timezone != nil {
		result.Timezone = next.Timezone
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{UserID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}
