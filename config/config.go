// Package config loads the idxtree server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sushant-115/idxtree/core/indexing/idxtree"
	"github.com/sushant-115/idxtree/core/indexmanager"
	"github.com/sushant-115/idxtree/pkg/logger"
	"github.com/sushant-115/idxtree/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// IndexSpec is an index created when the server starts.
type IndexSpec struct {
	Name                     string `yaml:"name"`
	indexmanager.IndexConfig `yaml:",inline"`
}

// RateLimit bounds the request rate accepted by the gRPC server.
// A zero RequestsPerSecond disables limiting.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Config is the full server configuration.
type Config struct {
	GRPCAddr        string           `yaml:"grpc_addr"`
	HTTPAddr        string           `yaml:"http_addr"`
	ShutdownTimeout time.Duration    `yaml:"shutdown_timeout"`
	RateLimit       RateLimit        `yaml:"rate_limit"`
	Logger          logger.Config    `yaml:"logger"`
	Telemetry       telemetry.Config `yaml:"telemetry"`
	Indexes         []IndexSpec      `yaml:"indexes"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		GRPCAddr:        "127.0.0.1:8000",
		HTTPAddr:        "127.0.0.1:8080",
		ShutdownTimeout: 10 * time.Second,
		Logger: logger.Config{
			Level:      "info",
			Format:     "json",
			OutputFile: "stdout",
			Service:    "idxtree-server",
		},
		Telemetry: telemetry.Config{
			Enabled:          true,
			ServiceName:      "idxtree-server",
			TraceSampleRatio: 1.0,
			SetGlobal:        true,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the addresses and the startup indexes, filling in the
// default page size. Index geometry is validated later by the tree itself.
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("grpc_addr must be set")
	}
	if c.HTTPAddr == "" {
		return errors.New("http_addr must be set")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	seen := make(map[string]bool, len(c.Indexes))
	for i, idx := range c.Indexes {
		if idx.Name == "" {
			return fmt.Errorf("indexes[%d]: name must be set", i)
		}
		if seen[idx.Name] {
			return fmt.Errorf("indexes[%d]: duplicate index %q", i, idx.Name)
		}
		seen[idx.Name] = true
		if idx.MaxEntries < 0 {
			return fmt.Errorf("indexes[%d]: max_entries must not be negative", i)
		}
		if idx.PageSize == 0 {
			c.Indexes[i].PageSize = idxtree.DefaultPageSize
		}
	}
	return nil
}
