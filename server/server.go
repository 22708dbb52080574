// Package server implements the mcp server: a TCP accept loop, one
// connection loop per client, and a per-connection dispatcher enforcing the
// initialize → ready → shutting-down session lifecycle.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (sequential frame loop)
//	  → protocol.Decode → message.ParseRequest → Middleware Chain →
//	    dispatcher → message.Marshal → protocol.Encode
//
// Requests on one connection are handled strictly in order, one at a time,
// so responses can never interleave and no write lock is needed. Separate
// connections run on separate goroutines with fully independent dispatcher
// state; a misbehaving client costs only its own connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-mcp/message"
	"mini-mcp/middleware"
	"mini-mcp/protocol"
	"mini-mcp/registry"
	"mini-mcp/tools"
)

// Server accepts connections and serves the tool registry over them.
type Server struct {
	tools       *tools.Registry
	info        ServerInfo
	listener    net.Listener
	ready       chan struct{} // closed once the listener is bound
	wg          sync.WaitGroup
	shutdown    atomic.Bool
	middlewares []middleware.Middleware
	chain       middleware.Middleware
	reg         registry.Registry
	service     string
	advertise   string
	logger      *zap.Logger
}

// New creates a server over an immutable tool registry.
func New(reg *tools.Registry, info ServerInfo, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		tools:   reg,
		info:    info,
		service: registry.DefaultService,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Use registers a middleware. Middlewares run in the order they are added.
// Must be called before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve listens on address and accepts connections until Shutdown.
//
// advertiseAddr is the address registered in etcd; it differs from the
// listen address when the latter is ":8765", which is not routable as-is.
// Pass a nil reg to skip service advertisement.
func (s *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = listener
	close(s.ready)

	// The chain is composed once at startup; each connection wraps its own
	// dispatcher with it.
	s.chain = middleware.Chain(s.middlewares...)

	s.advertise = advertiseAddr
	if reg != nil {
		s.reg = reg
		if err := reg.Register(s.service, registry.ServiceInstance{Addr: advertiseAddr, Weight: 1}, 10); err != nil {
			listener.Close()
			return fmt.Errorf("registry advertisement failed: %w", err)
		}
	}

	s.logger.Info("listening", zap.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener, which surfaces here as an
			// error; the flag distinguishes that from a real failure.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Addr returns the bound listen address, blocking until Serve has bound it.
// Useful with a ":0" listen address.
func (s *Server) Addr() string {
	<-s.ready
	return s.listener.Addr().String()
}

// handleConn runs one connection's request/response loop to completion.
//
// The loop ends on (a) clean end of stream, (b) a framing or parse failure,
// which is fatal to this connection only, or (c) a shutdown request, after
// its acknowledgment has been written.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	s.logger.Info("connection accepted", zap.String("peer", peer))

	d := newDispatcher(s.tools, s.info, s.logger)
	handler := s.chain(d.dispatch)
	br := protocol.NewReader(conn)

	for {
		payload, err := protocol.Decode(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("connection closed by peer", zap.String("peer", peer))
			} else {
				s.logger.Warn("dropping connection", zap.String("peer", peer), zap.Error(err))
			}
			return
		}

		req, perr := message.ParseRequest(payload)
		if perr != nil {
			s.replyMalformed(conn, peer, req, perr)
			return
		}

		resp := handler(context.Background(), req)
		if resp != nil {
			if err := writeResponse(conn, resp); err != nil {
				s.logger.Warn("write failed", zap.String("peer", peer), zap.Error(err))
				return
			}
		}
		if d.shuttingDown() {
			s.logger.Info("session shut down", zap.String("peer", peer))
			return
		}
	}
}

// replyMalformed answers an unparseable request with the matching reserved
// code on a best-effort basis before the connection is dropped.
func (s *Server) replyMalformed(conn net.Conn, peer string, req *message.Request, perr error) {
	s.logger.Warn("malformed request", zap.String("peer", peer), zap.Error(perr))

	var parseErr *message.ParseError
	var resp *message.Response
	if errors.As(perr, &parseErr) {
		resp = message.NewErrorResponse(message.ID{}, message.CodeParseError, "invalid JSON payload")
	} else {
		id := message.ID{}
		if req != nil {
			id = req.ID
		}
		resp = message.NewErrorResponse(id, message.CodeInvalidRequest, perr.Error())
	}
	if err := writeResponse(conn, resp); err != nil {
		s.logger.Debug("could not deliver error response", zap.String("peer", peer), zap.Error(err))
	}
}

func writeResponse(conn net.Conn, resp *message.Response) error {
	payload, err := message.Marshal(resp)
	if err != nil {
		return err
	}
	return protocol.Encode(conn, payload)
}

// Shutdown stops the server process-side:
//  1. deregister from etcd, so clients stop routing here
//  2. set the shutdown flag, then close the listener
//  3. wait for live connections to drain, bounded by timeout
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.reg != nil {
		if err := s.reg.Deregister(s.service, s.advertise); err != nil {
			s.logger.Warn("deregister failed", zap.Error(err))
		}
	}

	// Flag first: if the listener closed before the flag was set, Serve
	// would report the Accept error as real.
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for open connections to drain")
	}
}
