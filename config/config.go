// Package config loads the application configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AppName = "mini-mcp"

	// DefaultBindAddr is both the server listen address and the client
	// connect target when nothing else is configured.
	DefaultBindAddr = "127.0.0.1:8765"

	// DefaultSourcePath is the corpus file searched beside the working
	// directory by default.
	DefaultSourcePath = "context.txt"
)

// Config holds the settings shared by the server and client binaries.
type Config struct {
	// BindAddr is a host:port string; ":8765" binds the default host.
	BindAddr string `yaml:"bind_addr"`

	// SourcePath overrides the default corpus file location.
	SourcePath string `yaml:"source_path"`

	// TimeoutSeconds bounds each client call; 0 disables the bound.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`

	// EtcdEndpoints enables service advertisement (server) and discovery
	// (client) when non-empty.
	EtcdEndpoints []string `yaml:"etcd_endpoints"`
}

// Load reads configuration in ascending precedence: built-in defaults, the
// YAML file (customPath, or ~/.config/mini-mcp/config.yaml), then
// environment variables. A missing config file is not an error.
func Load(customPath string) (*Config, error) {
	cfg := &Config{
		BindAddr:   DefaultBindAddr,
		SourcePath: DefaultSourcePath,
	}

	configPath, err := resolveConfigPath(customPath)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err == nil {
			expanded := os.ExpandEnv(string(file))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	if addr := os.Getenv("MCP_BIND_ADDR"); addr != "" {
		cfg.BindAddr = addr
	}
	if src := os.Getenv("MCP_CONTEXT_FILE"); src != "" {
		cfg.SourcePath = src
	}
	if timeout := os.Getenv("MCP_CALL_TIMEOUT"); timeout != "" {
		secs, err := strconv.ParseFloat(timeout, 64)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("invalid MCP_CALL_TIMEOUT %q", timeout)
		}
		cfg.TimeoutSeconds = secs
	}
	if eps := os.Getenv("MCP_ETCD_ENDPOINTS"); eps != "" {
		cfg.EtcdEndpoints = strings.Split(eps, ",")
	}

	if _, err := ResolveAddr(cfg.BindAddr); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Timeout converts TimeoutSeconds to a duration; zero means no bound.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// ResolveAddr normalizes a host:port spec: ":8765" gains the default
// loopback host, everything else must already be a valid host:port pair.
func ResolveAddr(spec string) (string, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return "", fmt.Errorf("empty host:port")
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("expected HOST:PORT or :PORT, got %q", spec)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid port in %q", spec)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port), nil
}

func resolveConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", AppName, "config.yaml"), nil
}
