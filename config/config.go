// Package config loads registryd settings from a YAML file and REGISTRY_*
// environment variables. Command line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/ruteri/certificate-registry/registry"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read by Load, e.g. REGISTRY_LISTEN_ADDR.
const EnvPrefix = "registry"

// Config holds the registryd settings merged from defaults, YAML, environment and flags.
type Config struct {
	ListenAddr  string `yaml:"listenAddr"  split_words:"true"`
	MetricsAddr string `yaml:"metricsAddr" split_words:"true"`

	// Storage lists backend URIs. More than one mirrors state across backends;
	// the first is the primary and every one must accept a write.
	Storage []string `yaml:"storage" envconfig:"STORAGE"`

	Layout       string `yaml:"layout"       envconfig:"LAYOUT"`
	AllowReissue bool   `yaml:"allowReissue" split_words:"true"`
	LockAdmin    bool   `yaml:"lockAdmin"    split_words:"true"`

	MaxSignatureSkew time.Duration `yaml:"maxSignatureSkew" split_words:"true"`
	DrainDuration    time.Duration `yaml:"drainDuration"    split_words:"true"`
	ShutdownTimeout  time.Duration `yaml:"shutdownTimeout"  split_words:"true"`

	LogJSON    bool   `yaml:"logJson"    envconfig:"LOG_JSON"`
	LogDebug   bool   `yaml:"logDebug"   envconfig:"LOG_DEBUG"`
	LogService string `yaml:"logService" envconfig:"LOG_SERVICE"`
	Pprof      bool   `yaml:"pprof"      envconfig:"PPROF"`
}

// Default returns the settings used when neither file nor environment set a value.
func Default() *Config {
	policy := registry.DefaultPolicy()
	return &Config{
		ListenAddr:       "127.0.0.1:8080",
		MetricsAddr:      "127.0.0.1:8090",
		Storage:          []string{"badger://./registry-data"},
		Layout:           policy.Layout.String(),
		AllowReissue:     policy.AllowReissue,
		LockAdmin:        policy.LockAdmin,
		MaxSignatureSkew: 5 * time.Minute,
		DrainDuration:    45 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		LogService:       "certificate-registry",
	}
}

// Load returns the defaults overlaid with configFile (if not empty) and then
// with the environment.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that flag parsing cannot.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listenAddr must not be empty")
	}
	if len(c.Storage) == 0 {
		return errors.New("at least one storage URI is required")
	}
	if _, err := registry.ParseLayout(c.Layout); err != nil {
		return err
	}
	if c.MaxSignatureSkew < 0 {
		return fmt.Errorf("maxSignatureSkew must not be negative, got %s", c.MaxSignatureSkew)
	}
	return nil
}

// Policy returns the registry policy described by the config.
func (c *Config) Policy() (registry.Policy, error) {
	layout, err := registry.ParseLayout(c.Layout)
	if err != nil {
		return registry.Policy{}, err
	}
	return registry.Policy{
		AllowReissue: c.AllowReissue,
		LockAdmin:    c.LockAdmin,
		Layout:       layout,
	}, nil
}
