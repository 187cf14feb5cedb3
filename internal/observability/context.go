package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	searchIDKey contextKey = "search_id"
)

// WithSearchID adds a search ID to the context. The manager binds one per
// fan-out call so per-source client logs can be correlated with it.
func WithSearchID(ctx context.Context, searchID string) context.Context {
	return context.WithValue(ctx, searchIDKey, searchID)
}

// SearchIDFromContext retrieves the search ID from context.
// Returns empty string if not present.
func SearchIDFromContext(ctx context.Context) string {
	if v := ctx.Value(searchIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
