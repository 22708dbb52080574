package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"mini-mcp/message"
)

// RateLimit applies a token-bucket limit of r requests per second with the
// given burst, shared across every connection the chain serves. Rejected
// requests get an error response; the connection itself stays open.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return message.NewErrorResponse(req.ID, message.CodeServerError, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
