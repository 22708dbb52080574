package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-mcp/message"
)

// Logging records each dispatched method with its duration and outcome.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Stringer("id", req.ID),
				zap.Duration("duration", time.Since(start)),
			}
			if resp != nil && resp.Error != nil {
				fields = append(fields,
					zap.Int("code", resp.Error.Code),
					zap.String("error", resp.Error.Message))
				logger.Warn("request failed", fields...)
				return resp
			}
			logger.Info("request handled", fields...)
			return resp
		}
	}
}
