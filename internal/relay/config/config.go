// Package config holds the relay's runtime configuration, loaded in
// precedence order: built-in defaults, optional YAML config file,
// process environment.
package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
	"github.com/CodeHiveAPP/codehive/internal/relay/registry"
)

// Config holds the relay's runtime configuration.
type Config struct {
	Host        string `koanf:"host"`         // Listen host
	Port        int    `koanf:"port"`         // Listen port
	PersistPath string `koanf:"persist_path"` // Room snapshot file
}

// envKeys maps process environment variables to config keys.
var envKeys = map[string]string{
	"HOST": "host",
	"PORT": "port",
}

// Load builds the relay configuration. configFile may be empty; a
// named file that does not exist is an error, to catch typos.
func Load(configFile string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"host":         protocol.DefaultHost,
		"port":         protocol.DefaultPort,
		"persist_path": registry.DefaultPersistPath,
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

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.PersistPath == "" {
		return fmt.Errorf("persist_path is required")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
