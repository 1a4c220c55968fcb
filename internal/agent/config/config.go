// Package config holds the agent's runtime configuration, loaded in
// precedence order: built-in defaults, optional YAML config file,
// process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
)

// Config holds the agent's runtime configuration.
type Config struct {
	RelayHost string `koanf:"relay_host"` // Relay host
	RelayPort int    `koanf:"relay_port"` // Relay port
	DevName   string `koanf:"dev_name"`   // Display name announced to the room
	Project   string `koanf:"project"`    // Watched project directory
}

// envKeys maps process environment variables to config keys.
var envKeys = map[string]string{
	"RELAY_HOST": "relay_host",
	"RELAY_PORT": "relay_port",
	"DEV_NAME":   "dev_name",
	"PROJECT":    "project",
}

// Load builds the agent configuration. configFile may be empty.
func Load(configFile string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"relay_host": protocol.DefaultHost,
		"relay_port": protocol.DefaultPort,
		"dev_name":   defaultDevName(),
		"project":    ".",
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the configuration and resolves the project path.
func (c *Config) Validate() error {
	if c.RelayHost == "" {
		return fmt.Errorf("relay host is required")
	}
	if c.RelayPort <= 0 || c.RelayPort > 65535 {
		return fmt.Errorf("relay port %d out of range", c.RelayPort)
	}
	if c.DevName == "" {
		return fmt.Errorf("dev name is required")
	}

	abs, err := filepath.Abs(c.Project)
	if err != nil {
		return fmt.Errorf("resolve project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat project %q: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project %q is not a directory", abs)
	}
	c.Project = abs
	return nil
}

// URL returns the relay WebSocket endpoint.
func (c *Config) URL() string {
	return fmt.Sprintf("ws://%s:%d/ws", c.RelayHost, c.RelayPort)
}

func defaultDevName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	host, err := os.Hostname()
	if err != nil {
		return "anonymous"
	}
	return host
}
