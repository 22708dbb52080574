package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"mini-mcp/corpus"
	"mini-mcp/message"
	"mini-mcp/tools"
)

// ProtocolVersion is reported in the initialize result.
const ProtocolVersion = "2024-11-05"

// Method names understood by the dispatcher.
const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
	MethodPing       = "ping"
	MethodShutdown   = "shutdown"
	MethodExit       = "exit" // legacy alias for shutdown
)

// ServerInfo identifies the server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises what the server supports. Tools is the only
// capability today; the empty object form matches the wire convention.
type Capabilities struct {
	Tools struct{} `json:"tools"`
}

// InitializeResult is the payload answering an initialize request.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ListToolsResult is the payload answering tools/list.
type ListToolsResult struct {
	Tools []tools.Descriptor `json:"tools"`
}

// sessionState is the per-connection lifecycle:
// uninitialized → ready → shutting down.
type sessionState int

const (
	stateUninitialized sessionState = iota
	stateReady
	stateShuttingDown
)

// dispatcher routes one connection's requests to handlers and enforces the
// session state machine. Each connection gets its own dispatcher; the tool
// registry behind it is shared and immutable, so no locking is needed.
type dispatcher struct {
	state  sessionState
	tools  *tools.Registry
	info   ServerInfo
	logger *zap.Logger
}

func newDispatcher(reg *tools.Registry, info ServerInfo, logger *zap.Logger) *dispatcher {
	return &dispatcher{
		state:  stateUninitialized,
		tools:  reg,
		info:   info,
		logger: logger,
	}
}

func (d *dispatcher) shuttingDown() bool {
	return d.state == stateShuttingDown
}

// dispatch turns one request into its response. A nil return means no frame
// should be written (shutdown with a null id is acknowledged silently).
func (d *dispatcher) dispatch(ctx context.Context, req *message.Request) *message.Response {
	switch req.Method {
	case MethodPing:
		// Allowed in any state so keepalives work during the handshake.
		return d.success(req.ID, struct{}{})

	case MethodInitialize:
		// Re-initializing while ready is tolerated and idempotent.
		if d.state != stateShuttingDown {
			d.state = stateReady
		}
		return d.success(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      d.info,
		})

	case MethodShutdown, MethodExit:
		d.state = stateShuttingDown
		if req.ID.IsNull() {
			return nil
		}
		return d.success(req.ID, struct{}{})
	}

	if d.state == stateUninitialized {
		return message.NewErrorResponsef(req.ID, message.CodeNotInitialized,
			"server not initialized: call %q first", MethodInitialize)
	}

	switch req.Method {
	case MethodToolsList:
		return d.success(req.ID, ListToolsResult{Tools: d.tools.List()})
	case MethodToolsCall:
		return d.callTool(ctx, req)
	default:
		return message.NewErrorResponsef(req.ID, message.CodeMethodNotFound,
			"method not found: %s", req.Method)
	}
}

// callTool resolves {name, arguments} against the registry, validates the
// arguments, and runs the handler. Handler failures become error responses;
// they never escape to the connection loop.
func (d *dispatcher) callTool(ctx context.Context, req *message.Request) *message.Response {
	name, ok := req.Params["name"].(string)
	if !ok || name == "" {
		return message.NewErrorResponse(req.ID, message.CodeInvalidParams,
			`tools/call requires a string "name" parameter`)
	}

	tool, found := d.tools.Get(name)
	if !found {
		return message.NewErrorResponsef(req.ID, message.CodeMethodNotFound,
			"method not found: tool %s", name)
	}

	args, _ := req.Params["arguments"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}
	if err := tool.CheckArgs(args); err != nil {
		return message.NewErrorResponse(req.ID, message.CodeInvalidParams, err.Error())
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		return d.toolError(req.ID, name, err)
	}
	return d.success(req.ID, result)
}

// toolError maps a handler error onto the reserved code taxonomy. Domain
// errors travel to the peer; anything unexpected is logged and reported as a
// bare internal error, never verbatim.
func (d *dispatcher) toolError(id message.ID, name string, err error) *message.Response {
	var invalid *tools.InvalidArgsError
	switch {
	case errors.Is(err, corpus.ErrNotFound):
		return message.NewErrorResponsef(id, message.CodeNotFound, "file not found: %v", err)
	case errors.As(err, &invalid):
		return message.NewErrorResponse(id, message.CodeInvalidParams, invalid.Error())
	default:
		d.logger.Error("tool handler failed", zap.String("tool", name), zap.Error(err))
		return message.NewErrorResponse(id, message.CodeInternalError, "internal server error")
	}
}

func (d *dispatcher) success(id message.ID, result any) *message.Response {
	resp, err := message.NewResponse(id, result)
	if err != nil {
		d.logger.Error("failed to marshal result", zap.Error(err))
		return message.NewErrorResponse(id, message.CodeInternalError, "internal server error")
	}
	return resp
}
