package instrument

import "context"

type correlationIDKey struct{}

// SetCorrelationID stores the request correlation ID in the context.
func SetCorrelationID(ctx context.Context, cID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, cID)
}

// GetCorrelationID returns the correlation ID stored in the context. An
// empty string means none was set; a marker value flags a stored value of
// the wrong type.
func GetCorrelationID(ctx context.Context) string {
	v := ctx.Value(correlationIDKey{})
	if v == nil {
		return ""
	}

	cID, ok := v.(string)
	if !ok {
		return "[invalid_chain_id]"
	}

	return cID
}
