// Package message defines the JSON-RPC 2.0 messages exchanged between client and server.
//
// A message is the "envelope" for every call. It gets serialized to JSON by this
// package and wrapped in a Content-Length frame by the protocol package for
// transmission over TCP.
//
// Exactly three shapes exist on the wire:
//
//   - Request:        {"jsonrpc":"2.0","id":<id>,"method":<string>,"params":{...}}
//   - Success result: {"jsonrpc":"2.0","id":<id>,"result":<any>}
//   - Error result:   {"jsonrpc":"2.0","id":<id>,"error":{"code":<int>,"message":<string>,"data":<any>}}
//
// result and error are mutually exclusive; a response carries exactly one.
package message

import (
	"encoding/json"
	"fmt"
)

// Version is the only protocol version accepted in the jsonrpc field.
const Version = "2.0"

// Reserved error codes. The -327xx range follows the JSON-RPC 2.0 spec;
// -32002 is the conventional "server not initialized" code; -32000/-32001
// are implementation-defined server errors.
const (
	CodeParseError     = -32700 // body is not valid JSON
	CodeInvalidRequest = -32600 // JSON decoded but does not match a known shape
	CodeMethodNotFound = -32601 // unknown method or tool name
	CodeInvalidParams  = -32602 // missing or malformed arguments
	CodeInternalError  = -32603 // handler failure, cause logged server-side
	CodeNotInitialized = -32002 // method called before initialize
	CodeNotFound       = -32000 // configured corpus file is absent
	CodeServerError    = -32001 // generic server-side refusal (rate limit, timeout)
)

// Request is a call from client to server.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      ID             `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response answers exactly one Request, matched by ID.
// Result holds the raw success payload; Error is set instead when the call failed.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a failed Response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ParseError reports a frame payload that is not valid JSON.
// It is fatal to the connection that produced it.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "invalid JSON payload: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// ProtocolError reports JSON that decoded fine but does not satisfy the
// message shape rules, naming the offending field.
type ProtocolError struct {
	Field  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid message: field %q %s", e.Field, e.Reason)
}

// NewRequest builds a request envelope. Allocating a fresh correlation id is
// the caller's job (the client transport keeps a monotonic counter).
func NewRequest(id ID, method string, params map[string]any) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewResponse builds a success response, serializing result to JSON.
func NewResponse(id ID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response with the given reserved code.
func NewErrorResponse(id ID, code int, msg string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

// NewErrorResponsef is NewErrorResponse with Sprintf formatting.
func NewErrorResponsef(id ID, code int, format string, args ...any) *Response {
	return NewErrorResponse(id, code, fmt.Sprintf(format, args...))
}

// ParseRequest decodes and validates one request payload.
//
// Invalid JSON yields a *ParseError. JSON that decodes but breaks a shape rule
// yields a *ProtocolError together with the partially decoded request, so the
// caller can still answer with the right correlation id.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &ParseError{Err: err}
	}
	if req.JSONRPC != Version {
		return &req, &ProtocolError{Field: "jsonrpc", Reason: fmt.Sprintf("must be %q", Version)}
	}
	if req.Method == "" {
		return &req, &ProtocolError{Field: "method", Reason: "is missing or empty"}
	}
	return &req, nil
}

// ParseResponse decodes and validates one response payload.
// Exactly one of result and error must be present.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ParseError{Err: err}
	}
	if resp.JSONRPC != Version {
		return &resp, &ProtocolError{Field: "jsonrpc", Reason: fmt.Sprintf("must be %q", Version)}
	}
	hasResult := len(resp.Result) > 0
	hasError := resp.Error != nil
	if hasResult == hasError {
		return &resp, &ProtocolError{Field: "result", Reason: `and "error" are mutually exclusive, exactly one required`}
	}
	if hasError && resp.Error.Message == "" {
		return &resp, &ProtocolError{Field: "error.message", Reason: "is missing or empty"}
	}
	return &resp, nil
}

// Marshal serializes any message envelope to its wire payload.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
