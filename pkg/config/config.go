package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/duskbridge/strata/pkg/types"
)

// RetentionMode selects how Backend.Prune treats old versions.
type RetentionMode string

const (
	// RetentionAll never prunes; every version remains readable.
	RetentionAll RetentionMode = "all"
	// RetentionLastN prunes every version at or below latest - KeepLast,
	// keeping the most recent KeepLast versions (the head included).
	RetentionLastN RetentionMode = "last-n"
)

// Retention is the resolved Open Question from spec.md §9: Mode selects
// between keeping every version ("all") or only the most recent KeepLast
// ("last-n").
type Retention struct {
	Mode     RetentionMode `yaml:"mode"`
	KeepLast uint64        `yaml:"keep_last"`
}

// BackendConfig configures the storage Backend.
type BackendConfig struct {
	Path      string    `yaml:"path"`
	Retention Retention `yaml:"retention"`
}

// RegistryConfig configures the Substore Registry.
type RegistryConfig struct {
	Prefixes []string `yaml:"prefixes"`
}

// LogConfig configures the global logger. It mirrors pkg/log.Config's
// fields but with yaml tags; pkg/log.Config's io.Writer field has no YAML
// representation, so callers translate this into a log.Config themselves
// after loading.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// RPCConfig configures the gRPC listener.
type RPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is strata's complete process configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	RPC      RPCConfig      `yaml:"rpc"`
}

// Default returns a Config suitable for local development: a relative
// data directory, no substores, "all" retention, info-level console
// logging, and fixed default listener ports.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Path:      "./data/strata.db",
			Retention: Retention{Mode: RetentionAll},
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
		RPC: RPCConfig{
			ListenAddr: ":8081",
		},
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default() so an omitted section keeps its default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded config for the errors the process cannot
// recover from at startup.
func (c *Config) Validate() error {
	if c.Backend.Path == "" {
		return fmt.Errorf("config: backend.path is required: %w", types.ErrConfigInvalid)
	}
	switch c.Backend.Retention.Mode {
	case RetentionAll, RetentionLastN:
	case "":
		c.Backend.Retention.Mode = RetentionAll
	default:
		return fmt.Errorf("config: backend.retention.mode %q is invalid: %w", c.Backend.Retention.Mode, types.ErrConfigInvalid)
	}
	if c.Backend.Retention.Mode == RetentionLastN && c.Backend.Retention.KeepLast == 0 {
		return fmt.Errorf("config: backend.retention.keep_last must be > 0 for mode last-n: %w", types.ErrConfigInvalid)
	}
	seen := make(map[string]struct{}, len(c.Registry.Prefixes))
	for _, p := range c.Registry.Prefixes {
		if p == "" {
			return fmt.Errorf("config: registry.prefixes contains an empty prefix: %w", types.ErrConfigInvalid)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("config: registry.prefixes contains duplicate %q: %w", p, types.ErrConfigInvalid)
		}
		seen[p] = struct{}{}
	}
	return nil
}
