// Package middleware provides the server-side handler chain wrapped around
// the dispatcher: logging, rate limiting, panic recovery, timeouts.
package middleware

import (
	"context"

	"mini-mcp/message"
)

// HandlerFunc processes one request and produces its response.
// A nil response means no frame is written (a fire-and-forget shutdown).
type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

// Middleware wraps a handler with extra behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. Chain(A, B, C)(h) executes as
// A(B(C(h))): A sees the request first and the response last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
