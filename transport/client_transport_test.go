package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"mini-mcp/message"
	"mini-mcp/protocol"
)

// scriptedServer accepts one connection and hands it to serve, so tests can
// control exactly which frames come back and in which order.
func scriptedServer(t *testing.T, serve func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}()
	return ln.Addr().String()
}

func dialTransport(t *testing.T, addr string, opts Options) *ClientTransport {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	ct := NewClientTransport(conn, opts)
	t.Cleanup(func() { ct.Close() })
	return ct
}

// echoServer answers every request with {"echo":<method>}.
func echoServer(t *testing.T) string {
	return scriptedServer(t, func(conn net.Conn) {
		r := protocol.NewReader(conn)
		for {
			payload, err := protocol.Decode(r)
			if err != nil {
				return
			}
			req, err := message.ParseRequest(payload)
			if err != nil {
				return
			}
			resp, _ := message.NewResponse(req.ID, map[string]any{"echo": req.Method})
			out, _ := message.Marshal(resp)
			if err := protocol.Encode(conn, out); err != nil {
				return
			}
		}
	})
}

func TestCallSerial(t *testing.T) {
	ct := dialTransport(t, echoServer(t), Options{Timeout: 2 * time.Second})

	for _, method := range []string{"one", "two", "three"} {
		raw, err := ct.Call(context.Background(), method, nil)
		if err != nil {
			t.Fatal(err)
		}
		var result map[string]string
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatal(err)
		}
		if result["echo"] != method {
			t.Fatalf("expect echo %q, got %q", method, result["echo"])
		}
	}
}

// TestOutOfOrderCorrelation is the core multiplexing check: three callers,
// responses deliberately sent back in the order 3, 1, 2, each caller still
// gets its own result.
func TestOutOfOrderCorrelation(t *testing.T) {
	addr := scriptedServer(t, func(conn net.Conn) {
		r := protocol.NewReader(conn)
		reqs := make([]*message.Request, 0, 3)
		for len(reqs) < 3 {
			payload, err := protocol.Decode(r)
			if err != nil {
				return
			}
			req, err := message.ParseRequest(payload)
			if err != nil {
				return
			}
			reqs = append(reqs, req)
		}
		for _, i := range []int{2, 0, 1} { // respond 3, 1, 2
			req := reqs[i]
			resp, _ := message.NewResponse(req.ID, map[string]any{"method": req.Method})
			out, _ := message.Marshal(resp)
			if err := protocol.Encode(conn, out); err != nil {
				return
			}
		}
	})

	ct := dialTransport(t, addr, Options{Timeout: 5 * time.Second})

	var wg sync.WaitGroup
	methods := []string{"alpha", "beta", "gamma"}
	for _, method := range methods {
		wg.Add(1)
		go func(method string) {
			defer wg.Done()
			raw, err := ct.Call(context.Background(), method, nil)
			if err != nil {
				t.Errorf("%s: %v", method, err)
				return
			}
			var result map[string]string
			if err := json.Unmarshal(raw, &result); err != nil {
				t.Errorf("%s: %v", method, err)
				return
			}
			if result["method"] != method {
				t.Errorf("caller %s got result for %s", method, result["method"])
			}
		}(method)
	}
	wg.Wait()
}

func TestRemoteError(t *testing.T) {
	addr := scriptedServer(t, func(conn net.Conn) {
		r := protocol.NewReader(conn)
		payload, err := protocol.Decode(r)
		if err != nil {
			return
		}
		req, _ := message.ParseRequest(payload)
		resp := message.NewErrorResponse(req.ID, message.CodeMethodNotFound, "method not found: nope")
		out, _ := message.Marshal(resp)
		protocol.Encode(conn, out)
	})

	ct := dialTransport(t, addr, Options{Timeout: 2 * time.Second})
	_, err := ct.Call(context.Background(), "nope", nil)

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expect RemoteError, got %v", err)
	}
	if remote.Code != message.CodeMethodNotFound {
		t.Fatalf("expect code %d, got %d", message.CodeMethodNotFound, remote.Code)
	}
}

func TestStrayResponseDiscarded(t *testing.T) {
	addr := scriptedServer(t, func(conn net.Conn) {
		r := protocol.NewReader(conn)
		payload, err := protocol.Decode(r)
		if err != nil {
			return
		}
		req, _ := message.ParseRequest(payload)

		// A stray response with an id nobody asked for, then the real one.
		stray, _ := message.NewResponse(message.IntID(999), "stray")
		out, _ := message.Marshal(stray)
		protocol.Encode(conn, out)

		resp, _ := message.NewResponse(req.ID, "real")
		out, _ = message.Marshal(resp)
		protocol.Encode(conn, out)
	})

	ct := dialTransport(t, addr, Options{Timeout: 2 * time.Second})
	raw, err := ct.Call(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("stray frame must not break the call: %v", err)
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil || got != "real" {
		t.Fatalf("expect real result, got %s (%v)", raw, err)
	}
}

func TestCallTimeout(t *testing.T) {
	// Server that never responds.
	addr := scriptedServer(t, func(conn net.Conn) {
		r := protocol.NewReader(conn)
		protocol.Decode(r)
		time.Sleep(5 * time.Second)
	})

	ct := dialTransport(t, addr, Options{Timeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := ct.Call(context.Background(), "slow", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expect ErrTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout did not bound the wait")
	}
}

func TestContextCancellation(t *testing.T) {
	addr := scriptedServer(t, func(conn net.Conn) {
		r := protocol.NewReader(conn)
		protocol.Decode(r)
		time.Sleep(5 * time.Second)
	})

	ct := dialTransport(t, addr, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := ct.Call(ctx, "slow", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect context deadline, got %v", err)
	}
}

func TestConnectionLost(t *testing.T) {
	addr := scriptedServer(t, func(conn net.Conn) {
		r := protocol.NewReader(conn)
		protocol.Decode(r)
		// Close without answering.
	})

	ct := dialTransport(t, addr, Options{})
	_, err := ct.Call(context.Background(), "doomed", nil)
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("expect ErrConnectionLost, got %v", err)
	}

	// Subsequent calls fail immediately for the same reason.
	_, err = ct.Call(context.Background(), "after", nil)
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("expect ErrConnectionLost on dead transport, got %v", err)
	}
}

func TestIDsAreUniqueAndMonotonic(t *testing.T) {
	ct := dialTransport(t, echoServer(t), Options{Timeout: 2 * time.Second})

	seen := map[int64]bool{}
	for i := 0; i < 10; i++ {
		if _, err := ct.Call(context.Background(), "m", nil); err != nil {
			t.Fatal(err)
		}
		id := ct.id.Load()
		if seen[id] {
			t.Fatalf("id %d reused", id)
		}
		seen[id] = true
	}
}
