// Package trace propagates a correlation id through context and MQ
// headers so one mailbox notification can be followed across every stage
// it fans into.
package trace

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// HeaderName is the MQ header the correlation id travels in.
const HeaderName = "x-correlation-id"

// NewCorrelationID 生成一个新的 correlation ID
func NewCorrelationID() string {
	return uuid.NewString()
}

// FromContext 从 context 中获取 correlation_id
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithContext 将 correlation_id 添加到 context 中
func WithContext(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}
