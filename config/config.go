// Package config loads the service configuration from a JSON or YAML file
// with optional K_-prefixed environment overrides (K_section__key=value).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/scraphaul/dispatch/core/dispatch"
	"github.com/scraphaul/dispatch/core/metrics"
	"github.com/scraphaul/dispatch/core/model"
	"github.com/scraphaul/dispatch/infra/directory"
	"github.com/scraphaul/dispatch/infra/notify"
)

type Config struct {
	API       APIConfig       `json:"api"`
	Store     StoreConfig     `json:"store"`
	Directory DirectoryConfig `json:"directory"`
	Notifier  notify.Config   `json:"notifier"`
	Dispatch  dispatch.Config `json:"dispatch"`
	Metrics   metrics.Config  `json:"metrics"`
	Audit     AuditConfig     `json:"audit"`
}

// APIConfig defines the HTTP listener.
type APIConfig struct {
	Addr string `json:"addr"`
	// LogsToken guards the audit query endpoint. Empty disables the endpoint.
	LogsToken string `json:"logs_token"`
}

// StoreConfig selects the pickup persistence backend.
type StoreConfig struct {
	Backend string `json:"backend"` // memory | sqlite
	Path    string `json:"path"`    // sqlite database file
}

// DirectoryConfig selects where vendor candidates come from.
type DirectoryConfig struct {
	Mode string `json:"mode"` // static | mqtt | store
	// Vendors seeds the static directory.
	Vendors []model.VendorCandidate `json:"vendors"`
	MQTT    directory.Config        `json:"mqtt"`
}

// AuditConfig selects the offer audit-trail backend.
type AuditConfig struct {
	Backend string `json:"backend"` // none | jsonl | sqlite
	Path    string `json:"path"`
}

func (c *Config) SetDefaults() {
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Directory.Mode == "" {
		c.Directory.Mode = "static"
	}
	if c.Audit.Backend == "" {
		c.Audit.Backend = "none"
	}
	c.Metrics.SetDefaults()
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store: sqlite backend requires a path")
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}
	switch c.Directory.Mode {
	case "static":
	case "store":
		if c.Store.Backend != "sqlite" {
			return fmt.Errorf("directory: store mode requires the sqlite store backend")
		}
	case "mqtt":
		if c.Directory.MQTT.Broker == "" {
			return fmt.Errorf("directory: mqtt mode requires a broker")
		}
	default:
		return fmt.Errorf("directory: unknown mode %q", c.Directory.Mode)
	}
	switch c.Audit.Backend {
	case "none":
	case "jsonl", "sqlite":
		if c.Audit.Path == "" {
			return fmt.Errorf("audit: %s backend requires a path", c.Audit.Backend)
		}
	default:
		return fmt.Errorf("audit: unknown backend %q", c.Audit.Backend)
	}
	return nil
}

// Load reads the file at path, applies environment overrides, defaults and
// validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
