package middleware

import (
	"context"

	"go.uber.org/zap"

	"mini-mcp/message"
)

// Recovery converts a panicking handler into an internal-error response.
// The panic value is logged server-side and never leaks to the remote peer;
// a misbehaving tool must not take the connection loop down with it.
func Recovery(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp *message.Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.String("method", req.Method),
						zap.Any("panic", r),
						zap.Stack("stack"))
					resp = message.NewErrorResponse(req.ID, message.CodeInternalError, "internal server error")
				}
			}()
			return next(ctx, req)
		}
	}
}
