package scoring

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// WithRequestID attaches id to ctx; Predict sends it as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
