// Command mcp-server serves the corpus tools over Content-Length-framed
// JSON-RPC on TCP.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"mini-mcp/config"
	"mini-mcp/corpus"
	"mini-mcp/middleware"
	"mini-mcp/registry"
	"mini-mcp/server"
	"mini-mcp/tools"
)

const (
	serverName    = "mini-mcp-server"
	serverVersion = "0.1.0"
)

type CLI struct {
	Config string   `help:"Path to config file." type:"path"`
	Addr   string   `help:"Listen address (HOST:PORT or :PORT)." placeholder:"HOST:PORT"`
	Source string   `help:"Corpus file served by the tools." type:"path"`
	Etcd   []string `help:"etcd endpoints for service advertisement."`
	Rate   float64  `help:"Request rate limit per second (0 disables)." default:"0"`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name(serverName),
		kong.Description("Serve read/search tools over length-framed JSON-RPC."),
	)

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cli, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cli *CLI, logger *zap.Logger) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.Addr != "" {
		cfg.BindAddr = cli.Addr
	}
	if cli.Source != "" {
		cfg.SourcePath = cli.Source
	}
	if len(cli.Etcd) > 0 {
		cfg.EtcdEndpoints = cli.Etcd
	}

	addr, err := config.ResolveAddr(cfg.BindAddr)
	if err != nil {
		return err
	}

	reg, err := tools.NewCorpusRegistry(corpus.NewFileProvider(cfg.SourcePath))
	if err != nil {
		return err
	}

	svr := server.New(reg, server.ServerInfo{Name: serverName, Version: serverVersion}, logger)
	svr.Use(middleware.Recovery(logger))
	svr.Use(middleware.Logging(logger))
	if cli.Rate > 0 {
		svr.Use(middleware.RateLimit(cli.Rate, int(cli.Rate)*2))
	}

	var serviceReg registry.Registry
	if len(cfg.EtcdEndpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints, logger)
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer etcdReg.Close()
		serviceReg = etcdReg
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		if err := svr.Shutdown(5 * time.Second); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
			os.Exit(1)
		}
	}()

	logger.Info("starting",
		zap.String("addr", addr),
		zap.String("source", cfg.SourcePath))
	return svr.Serve("tcp", addr, addr, serviceReg)
}
