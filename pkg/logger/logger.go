package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/pkg/trace"
)

func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace 从 context 中提取 correlation_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	id := trace.FromContext(ctx)
	if id != "" {
		return logger.With(zap.String("correlation_id", id))
	}
	return logger
}
