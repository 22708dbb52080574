package middleware

import (
	"context"
	"time"

	"mini-mcp/message"
)

// Timeout bounds a single dispatch. The handler itself is not preemptible —
// it runs to completion in its own goroutine — but the caller gets an error
// response once the deadline passes instead of waiting indefinitely.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.NewErrorResponse(req.ID, message.CodeServerError, "request timed out")
			}
		}
	}
}
