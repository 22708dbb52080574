// Command mcp-client talks to an mcp-server: one-shot reads and searches,
// tool discovery, or an interactive loop.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"mini-mcp/client"
	"mini-mcp/config"
	"mini-mcp/registry"
)

const (
	clientName    = "mini-mcp-client"
	clientVersion = "0.1.0"
)

type CLI struct {
	Config   string   `help:"Path to config file." type:"path"`
	Addr     string   `help:"Server address (HOST:PORT or :PORT)." placeholder:"HOST:PORT"`
	Timeout  float64  `help:"Per-call timeout in seconds (0 waits forever)." default:"-1"`
	Discover bool     `help:"Resolve the server via etcd instead of --addr."`
	Etcd     []string `help:"etcd endpoints for --discover."`

	Read   ReadCmd   `cmd:"" help:"Read the server's corpus file (or an optional path)."`
	Search SearchCmd `cmd:"" help:"Search the corpus for words."`
	Tools  ToolsCmd  `cmd:"" help:"List the server's tools."`
	Repl   ReplCmd   `cmd:"" default:"1" help:"Interactive mode."`
}

// App carries the connected client into each subcommand's Run.
type App struct {
	client *client.Client
	ctx    context.Context
}

type ReadCmd struct {
	Path string `arg:"" optional:"" help:"Path override for read_file."`
}

type SearchCmd struct {
	Words []string `arg:"" help:"Search terms."`
}

type ToolsCmd struct{}

type ReplCmd struct{}

func main() {
	cli := &CLI{}
	ktx := kong.Parse(cli,
		kong.Name(clientName),
		kong.Description("Client for the mini-mcp tool server."),
	)

	logger := zap.NewNop()
	app, cleanup, err := connect(cli, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer cleanup()

	if err := ktx.Run(app); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect loads config, dials the server, and performs the initialize +
// tools/list handshake, printing the discovered tool names to stderr.
func connect(cli *CLI, logger *zap.Logger) (*App, func(), error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	if cli.Addr != "" {
		cfg.BindAddr = cli.Addr
	}
	if cli.Timeout >= 0 {
		cfg.TimeoutSeconds = cli.Timeout
	}
	if len(cli.Etcd) > 0 {
		cfg.EtcdEndpoints = cli.Etcd
	}

	addr, err := config.ResolveAddr(cfg.BindAddr)
	if err != nil {
		return nil, nil, err
	}

	opts := client.Options{
		Addr:    addr,
		Timeout: cfg.Timeout(),
		Logger:  logger,
	}
	if cli.Discover {
		if len(cfg.EtcdEndpoints) == 0 {
			return nil, nil, fmt.Errorf("--discover requires etcd endpoints")
		}
		etcdReg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect etcd: %w", err)
		}
		opts.Registry = etcdReg
	}

	c, err := client.Dial(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w (start the server with: mcp-server)", addr, err)
	}

	ctx := context.Background()
	if _, err := c.Initialize(ctx, clientName, clientVersion); err != nil {
		c.Close()
		return nil, nil, err
	}
	list, err := c.ListTools(ctx)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Name)
	}
	fmt.Fprintln(os.Stderr, "Tools: "+strings.Join(names, ", "))

	app := &App{client: c, ctx: ctx}
	cleanup := func() {
		// Best effort: tell the server the session is over, then drop it.
		c.Shutdown(ctx)
		c.Close()
	}
	return app, cleanup, nil
}

func (r *ReadCmd) Run(app *App) error {
	text, err := app.client.ReadFile(app.ctx, r.Path)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func (s *SearchCmd) Run(app *App) error {
	text, err := app.client.SearchFile(app.ctx, strings.Join(s.Words, " "))
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func (t *ToolsCmd) Run(app *App) error {
	list, err := app.client.ListTools(app.ctx)
	if err != nil {
		return err
	}
	for _, tool := range list {
		fmt.Printf("%s\t%s\n", tool.Name, tool.Description)
	}
	return nil
}

func (r *ReplCmd) Run(app *App) error {
	fmt.Fprintln(os.Stderr, "Entering interactive mode.")
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		switch cmd {
		case "quit", "exit":
			return nil
		case "help", "h", "?":
			printHelp()
		case "tools":
			list, err := app.client.ListTools(app.ctx)
			if err != nil {
				printErr(err)
				continue
			}
			names := make([]string, 0, len(list))
			for _, t := range list {
				names = append(names, t.Name)
			}
			fmt.Fprintln(os.Stderr, "Tools: "+strings.Join(names, ", "))
		case "read":
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			text, err := app.client.ReadFile(app.ctx, path)
			if err != nil {
				printErr(err)
				continue
			}
			fmt.Println(text)
		case "search":
			if len(args) == 0 {
				fmt.Fprintln(os.Stderr, "Usage: search <words>")
				continue
			}
			text, err := app.client.SearchFile(app.ctx, strings.Join(args, " "))
			if err != nil {
				printErr(err)
				continue
			}
			fmt.Println(text)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s. Type 'help' for options.\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Fprintln(os.Stderr, "Commands: read [path] | search <words> | tools | help | quit")
}

// printErr keeps the interactive loop alive on any error, one line each.
func printErr(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
}
