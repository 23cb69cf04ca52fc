// Package config loads the match server's YAML configuration, falling
// back to defaults when no file is present.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the match server.
type Server struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	MaxClients     int    `yaml:"max_clients"`
	MaxPayload     int    `yaml:"max_payload"`
	WriteQueueSize int    `yaml:"write_queue_size"`
	WriteTimeout   string `yaml:"write_timeout"` // duration, e.g. "5s"

	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)
}

// WriteTimeoutDuration parses WriteTimeout, falling back to 5s if unset
// or unparseable.
func (s Server) WriteTimeoutDuration() time.Duration {
	if s.WriteTimeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(s.WriteTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// Default returns a Server config with sensible defaults.
func Default() Server {
	return Server{
		BindAddress:    "0.0.0.0",
		Port:           4000,
		MaxClients:     64,
		MaxPayload:     4096,
		WriteQueueSize: 256,
		WriteTimeout:   "5s",
		LogLevel:       "info",
	}
}

// Load loads the server config from a YAML file. If the file doesn't
// exist, returns defaults.
func Load(path string) (Server, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
