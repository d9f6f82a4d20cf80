// Package config loads the bridge configuration from YAML, with
// defaults applied before the file is read.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/dsbridge/dsbridge/internal/session"
)

// Config is the top-level file shape. Directory covers direct sessions
// and the conn half of queued tasks; Queue and Serve cover the worker
// and relay-peer roles.
type Config struct {
	Directory session.Config `yaml:"directory"`
	Queue     QueueConfig    `yaml:"queue"`
	Serve     ServeConfig    `yaml:"serve"`

	LogLevel string `yaml:"log_level" default:"info"`
}

// QueueConfig configures the SQLite task queue on either side.
type QueueConfig struct {
	DatabasePath string `yaml:"database_path" default:"dsbridge.db"`

	// PublicKeyFile seals producer tasks; PrivateKeyFile opens them on
	// the worker. Both hold transport-form keys.
	PublicKeyFile  string `yaml:"public_key_file"`
	PrivateKeyFile string `yaml:"private_key_file"`

	Timeout      time.Duration `yaml:"timeout" default:"5m"`
	WarmupDelay  time.Duration `yaml:"warmup_delay" default:"10s"`
	PollInterval time.Duration `yaml:"poll_interval" default:"10s"`

	WorkerInterval time.Duration `yaml:"worker_interval" default:"1m"`
	Retention      time.Duration `yaml:"retention" default:"1h"`
}

// ServeConfig configures the relay HTTP listener.
type ServeConfig struct {
	Listen string `yaml:"listen" default:":8443"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// ClientCAFile enables mutual TLS: peers must present a certificate
	// signed by this CA.
	ClientCAFile string `yaml:"client_ca_file"`
}

// Load reads path and returns the config with defaults filled in.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ReadKeyFile returns the trimmed transport-form key stored at path.
func ReadKeyFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
