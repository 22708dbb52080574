// Package client provides the synchronous mcp client: dial (directly or via
// etcd discovery), initialize, list tools, call tools, shut down.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"mini-mcp/loadbalance"
	"mini-mcp/registry"
	"mini-mcp/tools"
	"mini-mcp/transport"
)

// RemoteError is re-exported so callers need not import the transport layer
// to inspect server-reported failures.
type RemoteError = transport.RemoteError

// Options configures Dial.
type Options struct {
	// Addr is the static server address. Ignored when Registry is set.
	Addr string

	// Registry, when non-nil, resolves the server address by discovery
	// instead of Addr, picking among instances with Balancer.
	Registry registry.Registry
	Balancer loadbalance.Balancer
	Service  string

	// Timeout bounds each call; zero waits indefinitely.
	Timeout time.Duration

	// KeepAlive enables periodic pings on the underlying transport.
	KeepAlive time.Duration

	Logger *zap.Logger
}

// InitializeResult mirrors the server's initialize payload.
type InitializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// Client issues calls over one connection. It is strictly synchronous: each
// call blocks until its matching response arrives or the connection drops.
type Client struct {
	t      *transport.ClientTransport
	addr   string
	logger *zap.Logger
}

// Dial resolves the server address, connects, and wraps the connection in a
// correlating transport. It does not send initialize; see Initialize.
func Dial(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	addr := opts.Addr
	if opts.Registry != nil {
		service := opts.Service
		if service == "" {
			service = registry.DefaultService
		}
		instances, err := opts.Registry.Discover(service)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", service, err)
		}
		bal := opts.Balancer
		if bal == nil {
			bal = &loadbalance.RoundRobinBalancer{}
		}
		instance, err := bal.Pick(instances)
		if err != nil {
			return nil, fmt.Errorf("pick %s instance: %w", service, err)
		}
		addr = instance.Addr
		logger.Info("discovered server",
			zap.String("addr", addr), zap.String("balancer", bal.Name()))
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	t := transport.NewClientTransport(conn, transport.Options{
		Timeout:   opts.Timeout,
		KeepAlive: opts.KeepAlive,
		Logger:    logger,
	})
	return &Client{t: t, addr: addr, logger: logger}, nil
}

// Addr returns the resolved server address.
func (c *Client) Addr() string { return c.addr }

// Call issues a raw request and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	return c.t.Call(ctx, method, params)
}

// Initialize performs the session handshake.
func (c *Client) Initialize(ctx context.Context, name, version string) (*InitializeResult, error) {
	raw, err := c.Call(ctx, "initialize", map[string]any{
		"clientInfo": map[string]any{"name": name, "version": version},
	})
	if err != nil {
		return nil, err
	}
	var res InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}
	return &res, nil
}

// ListTools returns the server's registered tools in registration order.
func (c *Client) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	raw, err := c.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Tools []tools.Descriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return res.Tools, nil
}

// CallTool invokes a named tool and returns its text content. Results that
// carry no text block come back as indented JSON.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	raw, err := c.Call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var res tools.CallResult
	if err := json.Unmarshal(raw, &res); err == nil {
		text := ""
		for _, block := range res.Content {
			if block.Type == "text" {
				if text != "" {
					text += "\n"
				}
				text += block.Text
			}
		}
		if text != "" {
			return text, nil
		}
	}

	// Fallback for results without text blocks.
	var pretty json.RawMessage = raw
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return string(raw), nil
	}
	return string(out), nil
}

// ReadFile invokes the read_file tool. An empty path uses the server's
// configured corpus file.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	args := map[string]any{}
	if path != "" {
		args["path"] = path
	}
	return c.CallTool(ctx, "read_file", args)
}

// SearchFile invokes the search_file tool.
func (c *Client) SearchFile(ctx context.Context, words string) (string, error) {
	return c.CallTool(ctx, "search_file", map[string]any{"words": words})
}

// Ping checks connection liveness.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, "ping", nil)
	return err
}

// Shutdown asks the server to end this session. The server acknowledges,
// then closes the connection.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.Call(ctx, "shutdown", nil)
	return err
}

// Close tears down the connection, failing any pending call.
func (c *Client) Close() error {
	return c.t.Close()
}
