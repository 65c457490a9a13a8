package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Defaults shared by the env-default tags and Default().
const (
	DefaultPort             = "3421"
	DefaultDiscoveryCap     = 21
	DefaultPerSourceLimit   = 50
	DefaultEnrichmentWindow = 5 * time.Second
	DefaultEnrichmentLabel  = "deep-search"
	DefaultProbeTimeout     = 3 * time.Second
	DefaultMaxReconnects    = 5
	DefaultReadLimit        = 1 << 20
	DefaultVerifierTimeout  = 3 * time.Second
	DefaultVerifierWorkers  = 4
	DefaultVerifierRetries  = 2
	DefaultMetricsPath      = "/metrics"
)

// DefaultRelays is the relay list used when none is configured.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.snort.social",
	"wss://purplepag.es",
}

// Config holds all configuration for relayscout.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3421"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// MCPEnabled mounts the MCP tool server at /mcp.
	MCPEnabled bool `yaml:"mcp_enabled" env:"MCP_ENABLED" env-default:"true"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Relays    RelaysConfig    `yaml:"relays"`
	Verifier  VerifierConfig  `yaml:"verifier"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DiscoveryConfig holds settings for discovery sessions and deep enrichment.
type DiscoveryConfig struct {
	// Cap is the number of distinct payment addresses that ends a session.
	Cap int `yaml:"cap" env:"DISCOVERY_CAP" env-default:"21"`
	// PerSourceLimit is the result-count hint sent to each relay on the broad scan.
	PerSourceLimit int `yaml:"per_source_limit" env:"DISCOVERY_PER_SOURCE_LIMIT" env-default:"50"`
	// EnrichmentWindow is how long a deep enrichment subscription stays open.
	EnrichmentWindow time.Duration `yaml:"enrichment_window" env:"DISCOVERY_ENRICHMENT_WINDOW" env-default:"5s"`
	// EnrichmentLabel is the source label attached to enrichment deliveries.
	EnrichmentLabel string `yaml:"enrichment_label" env:"DISCOVERY_ENRICHMENT_LABEL" env-default:"deep-search"`
}

// RelaysConfig holds relay transport settings.
type RelaysConfig struct {
	// Defaults are registered at startup without a connectivity probe.
	Defaults      []string      `yaml:"defaults" env:"RELAYS" env-separator:"," env-default:"wss://relay.damus.io,wss://nos.lol,wss://relay.snort.social,wss://purplepag.es"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" env:"RELAY_PROBE_TIMEOUT" env-default:"3s"`
	MaxReconnects int           `yaml:"max_reconnects" env:"RELAY_MAX_RECONNECTS" env-default:"5"`
	ReadLimit     int64         `yaml:"read_limit" env:"RELAY_READ_LIMIT" env-default:"1048576"`
}

// VerifierConfig holds settings for payment address verification.
type VerifierConfig struct {
	Enabled       bool          `yaml:"enabled" env:"VERIFIER_ENABLED" env-default:"true"`
	Timeout       time.Duration `yaml:"timeout" env:"VERIFIER_TIMEOUT" env-default:"3s"`
	MaxConcurrent int           `yaml:"max_concurrent" env:"VERIFIER_MAX_CONCURRENT" env-default:"4"`
	MaxRetries    int           `yaml:"max_retries" env:"VERIFIER_MAX_RETRIES" env-default:"2"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	// Load config from YAML file with environment variable overrides
	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when config.yaml sets nothing.
func Default() *Config {
	cfg := &Config{
		BindAddr:   "127.0.0.1",
		Port:       DefaultPort,
		Env:        "local",
		MCPEnabled: true,
		Discovery: DiscoveryConfig{
			Cap:              DefaultDiscoveryCap,
			PerSourceLimit:   DefaultPerSourceLimit,
			EnrichmentWindow: DefaultEnrichmentWindow,
			EnrichmentLabel:  DefaultEnrichmentLabel,
		},
		Relays: RelaysConfig{
			Defaults:      append([]string(nil), DefaultRelays...),
			ProbeTimeout:  DefaultProbeTimeout,
			MaxReconnects: DefaultMaxReconnects,
			ReadLimit:     DefaultReadLimit,
		},
		Verifier: VerifierConfig{
			Enabled:       true,
			Timeout:       DefaultVerifierTimeout,
			MaxConcurrent: DefaultVerifierWorkers,
			MaxRetries:    DefaultVerifierRetries,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
	cfg.normalize()
	return cfg
}

// WriteExample writes a config.yaml populated with defaults to path.
// It refuses to overwrite an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg := Default()
	cfg.BaseURL = ""

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	header := "# relayscout configuration. Every value can be overridden by its environment variable.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}
	return nil
}

// normalize trims relay URLs and derives BaseURL from Port if not explicitly set.
func (c *Config) normalize() {
	relays := make([]string, 0, len(c.Relays.Defaults))
	for _, r := range c.Relays.Defaults {
		if r = strings.TrimSpace(r); r != "" {
			relays = append(relays, ResolveURLForDocker(r))
		}
	}
	c.Relays.Defaults = relays

	if c.BaseURL == "" {
		c.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + c.Port,
		}).String()
	}
}

// Validate checks value ranges and relay URL schemes.
func (c *Config) Validate() error {
	if c.Discovery.Cap < 1 {
		return fmt.Errorf("discovery.cap must be at least 1, got %d", c.Discovery.Cap)
	}
	if c.Discovery.PerSourceLimit < 1 {
		return fmt.Errorf("discovery.per_source_limit must be at least 1, got %d", c.Discovery.PerSourceLimit)
	}
	if c.Discovery.EnrichmentWindow <= 0 {
		return fmt.Errorf("discovery.enrichment_window must be positive")
	}
	if strings.TrimSpace(c.Discovery.EnrichmentLabel) == "" {
		return fmt.Errorf("discovery.enrichment_label must not be empty")
	}
	if c.Relays.ProbeTimeout <= 0 {
		return fmt.Errorf("relays.probe_timeout must be positive")
	}
	for _, r := range c.Relays.Defaults {
		if !strings.HasPrefix(r, "ws://") && !strings.HasPrefix(r, "wss://") {
			return fmt.Errorf("relay %q must start with ws:// or wss://", r)
		}
	}
	if c.Verifier.Enabled && c.Verifier.MaxConcurrent < 1 {
		return fmt.Errorf("verifier.max_concurrent must be at least 1 when the verifier is enabled")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// IsLocal reports whether the server runs in the local development environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "dev"
}
