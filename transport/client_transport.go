// Package transport implements the client-side call correlator.
//
// ClientTransport owns one TCP connection. Every outgoing request gets a
// fresh monotonically increasing id; a single background goroutine
// (recvLoop) reads response frames and routes each one to the caller waiting
// on that id via a pending-call channel:
//
//	goroutine-1 ──Call(id=1)──┐
//	goroutine-2 ──Call(id=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Call(id=3)──┘
//
//	recvLoop:  ←── response(id=2) → pending[2] chan → goroutine-2 wakes up
//
// The simple synchronous client issues one call at a time, but the pending
// table generalizes unchanged to many concurrent outstanding calls, and
// responses arriving in any order still reach the right caller.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-mcp/message"
	"mini-mcp/protocol"
)

// ErrConnectionLost signals transport failure or a close before a matching
// response arrived.
var ErrConnectionLost = errors.New("connection lost")

// ErrTimeout signals that no matching response arrived within the configured
// call timeout.
var ErrTimeout = errors.New("call timed out")

// RemoteError wraps an error response received from the server.
type RemoteError struct {
	Code    int
	Message string
	Data    any
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Options configures a ClientTransport.
type Options struct {
	// Timeout bounds each call. Zero means wait indefinitely (until the
	// connection drops or the context is done).
	Timeout time.Duration

	// KeepAlive, when non-zero, sends periodic ping calls so a dead
	// connection is noticed between real calls.
	KeepAlive time.Duration

	Logger *zap.Logger
}

// ClientTransport multiplexes calls over a single connection.
type ClientTransport struct {
	conn    net.Conn
	id      atomic.Int64 // monotonically increasing correlation id
	pending sync.Map     // map[string]chan *message.Response, keyed by ID.Key()
	sending sync.Mutex   // serializes frame writes; interleaved writes corrupt the stream
	timeout time.Duration
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
	done      chan struct{} // closed when the connection is lost
}

// NewClientTransport wraps conn and starts the receive loop, plus the
// keepalive loop when configured.
func NewClientTransport(conn net.Conn, opts Options) *ClientTransport {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &ClientTransport{
		conn:    conn,
		timeout: opts.Timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go t.recvLoop()
	if opts.KeepAlive > 0 {
		go t.keepaliveLoop(opts.KeepAlive)
	}
	return t
}

// Call sends one request and blocks until the response with the matching id
// arrives, the timeout elapses, ctx is done, or the connection is lost.
//
// On a success response it returns the raw result; on an error response it
// returns a *RemoteError.
func (t *ClientTransport) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	id := message.IntID(t.id.Add(1))
	req := message.NewRequest(id, method, params)
	payload, err := message.Marshal(req)
	if err != nil {
		return nil, err
	}

	// Register the pending entry before writing so recvLoop can never see a
	// response for an id it doesn't know. A duplicate outstanding id is
	// refused outright rather than silently overwriting the waiting caller.
	ch := make(chan *message.Response, 1)
	if _, dup := t.pending.LoadOrStore(id.Key(), ch); dup {
		return nil, fmt.Errorf("duplicate outstanding request id %s", id)
	}

	t.sending.Lock()
	err = protocol.Encode(t.conn, payload)
	t.sending.Unlock()
	if err != nil {
		t.pending.Delete(id.Key())
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	var timeoutC <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
		}
		return resp.Result, nil
	case <-timeoutC:
		t.pending.Delete(id.Key())
		return nil, fmt.Errorf("%w after %s waiting for id %s", ErrTimeout, t.timeout, id)
	case <-ctx.Done():
		t.pending.Delete(id.Key())
		return nil, ctx.Err()
	case <-t.done:
		return nil, t.closeErr
	}
}

// recvLoop is the only reader of the connection: frame boundaries on a byte
// stream require a single sequential reader. It routes each response to the
// caller registered under its id; frames with no matching pending id are
// logged and discarded, never fatal.
func (t *ClientTransport) recvLoop() {
	br := protocol.NewReader(t.conn)
	for {
		payload, err := protocol.Decode(br)
		if err != nil {
			t.fail(err)
			return
		}

		resp, err := message.ParseResponse(payload)
		if err != nil {
			// An unintelligible frame means we can no longer trust the
			// stream's framing state.
			t.fail(err)
			return
		}

		if ch, ok := t.pending.LoadAndDelete(resp.ID.Key()); ok {
			ch.(chan *message.Response) <- resp
			continue
		}
		t.logger.Warn("discarding response with no matching request", zap.Stringer("id", resp.ID))
	}
}

// fail marks the connection lost and wakes every pending caller.
func (t *ClientTransport) fail(cause error) {
	t.closeOnce.Do(func() {
		t.closeErr = fmt.Errorf("%w: %v", ErrConnectionLost, cause)
		close(t.done)
		t.conn.Close()
	})
}

// keepaliveLoop issues periodic ping calls through the normal correlation
// path. Any failure means the connection is unusable and the loop ends.
func (t *ClientTransport) keepaliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if _, err := t.Call(context.Background(), "ping", nil); err != nil {
				t.logger.Warn("keepalive failed", zap.Error(err))
				return
			}
		}
	}
}

// Close shuts the connection down and releases every pending caller.
func (t *ClientTransport) Close() error {
	t.fail(errors.New("closed by client"))
	return nil
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}
