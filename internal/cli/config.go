package cli

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the YAML configuration consumed by the serve command.
// Flags override whatever the file provides.
type ServerConfig struct {
	// Database is the path to the SQLite database file.
	Database string `yaml:"database"`

	// Listen is the address the HTTP server binds to (e.g. ":3030").
	Listen string `yaml:"listen"`

	// IdleTimeout ends a stream after this long without an event
	// (e.g. "100s"). Empty uses the stream package default.
	IdleTimeout string `yaml:"idle_timeout,omitempty"`

	// Greeting is the first line written on a stream connect. Empty
	// uses the stream package default.
	Greeting string `yaml:"greeting,omitempty"`
}

// DefaultListen is the bind address when neither flag nor config sets one.
const DefaultListen = ":3030"

// LoadServerConfig reads and validates a YAML config file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg ServerConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.IdleTimeout != "" {
		if _, err := time.ParseDuration(cfg.IdleTimeout); err != nil {
			return nil, fmt.Errorf("config %s: invalid idle_timeout: %w", path, err)
		}
	}
	return &cfg, nil
}

// idleTimeout parses the configured timeout; zero means "use default".
func (c *ServerConfig) idleTimeout() time.Duration {
	if c.IdleTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.IdleTimeout)
	if err != nil {
		return 0
	}
	return d
}
