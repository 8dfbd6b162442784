// Package config loads crucible's configuration from a YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported model providers.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)

// EnvPrefix prefixes every crucible specific environment variable.
const EnvPrefix = "CRUCIBLE_"

// Config is the root configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Model   ModelConfig   `yaml:"model"`
	Engine  EngineConfig  `yaml:"engine"`
	Admin   AdminConfig   `yaml:"admin"`
	Audit   AuditConfig   `yaml:"audit"`
	Archive ArchiveConfig `yaml:"archive"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ModelConfig selects the model provider used by every agent.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	// Name is the provider's model id. Empty selects the adapter default.
	Name        string        `yaml:"name"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	// MaxCalls caps model calls per process. Zero is unlimited.
	MaxCalls int `yaml:"max_calls"`
}

// EngineConfig tunes the dispatch loop.
type EngineConfig struct {
	MaxConcurrentExecutions int  `yaml:"max_concurrent_executions"`
	ConsultOnPause          bool `yaml:"consult_on_pause"`
}

// AdminConfig tunes the Administrator.
type AdminConfig struct {
	Window        int      `yaml:"window"`
	MaxEvents     int      `yaml:"max_events"`
	RequiredKeys  []string `yaml:"required_keys"`
	TerminalTopic string   `yaml:"terminal_topic"`
}

// AuditConfig selects the audit sinks. Both may be enabled.
type AuditConfig struct {
	Dir          string `yaml:"dir"`
	RedisAddr    string `yaml:"redis_addr"`
	StreamPrefix string `yaml:"stream_prefix"`
}

// ArchiveConfig enables the Redis session archive.
type ArchiveConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Model: ModelConfig{
			Provider:    ProviderGemini,
			Temperature: 0.2,
			MaxTokens:   8192,
			Timeout:     60 * time.Second,
		},
		Engine: EngineConfig{MaxConcurrentExecutions: 10, ConsultOnPause: true},
		Admin: AdminConfig{
			Window:        4,
			RequiredKeys:  []string{"clinical_entity", "diagnosis_mapping", "medication_management", "output_generation"},
			TerminalTopic: "OUTPUT_GENERATED",
		},
		Audit:   AuditConfig{Dir: "logs", StreamPrefix: "crucible:audit:"},
		Server:  ServerConfig{Addr: ":8000"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads path (optional), the .env file next to it or in the working
// directory, and the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := LoadDotEnvForConfig(path); err != nil {
		return Config{}, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}

	switch c.Model.Provider {
	case ProviderGemini, ProviderAnthropic, ProviderOpenAI:
		if c.Model.APIKey == "" {
			errs = append(errs, fmt.Errorf("model.api_key: required for provider %s", c.Model.Provider))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("model.provider: unknown provider %q", c.Model.Provider))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature: %v out of range [0,2]", c.Model.Temperature))
	}
	if c.Model.MaxTokens < 0 || c.Model.MaxCalls < 0 || c.Model.Timeout < 0 {
		errs = append(errs, errors.New("model: max_tokens, max_calls and timeout must not be negative"))
	}

	if c.Engine.MaxConcurrentExecutions < 0 {
		errs = append(errs, errors.New("engine.max_concurrent_executions: must not be negative"))
	}

	if c.Admin.Window != 0 && c.Admin.Window < 3 {
		errs = append(errs, fmt.Errorf("admin.window: %d is below the minimum of 3", c.Admin.Window))
	}
	if c.Admin.MaxEvents < 0 {
		errs = append(errs, errors.New("admin.max_events: must not be negative"))
	}

	if c.Archive.TTL < 0 {
		errs = append(errs, errors.New("archive.ttl: must not be negative"))
	}

	return errors.Join(errs...)
}

// applyEnv overrides settings from the environment. The provider specific
// API key variables are consulted when no key is configured.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("MODEL_PROVIDER", &c.Model.Provider)
	str("MODEL_NAME", &c.Model.Name)
	str("MODEL_API_KEY", &c.Model.APIKey)
	num("MODEL_MAX_TOKENS", &c.Model.MaxTokens)
	num("MODEL_MAX_CALLS", &c.Model.MaxCalls)
	dur("MODEL_TIMEOUT", &c.Model.Timeout)
	num("ENGINE_MAX_CONCURRENT_EXECUTIONS", &c.Engine.MaxConcurrentExecutions)
	flag("ENGINE_CONSULT_ON_PAUSE", &c.Engine.ConsultOnPause)
	num("ADMIN_WINDOW", &c.Admin.Window)
	num("ADMIN_MAX_EVENTS", &c.Admin.MaxEvents)
	str("AUDIT_DIR", &c.Audit.Dir)
	str("AUDIT_REDIS_ADDR", &c.Audit.RedisAddr)
	str("ARCHIVE_REDIS_ADDR", &c.Archive.RedisAddr)
	dur("ARCHIVE_TTL", &c.Archive.TTL)
	str("SERVER_ADDR", &c.Server.Addr)
	flag("METRICS_ENABLED", &c.Metrics.Enabled)

	if c.Model.APIKey == "" {
		if key, ok := providerKeys[c.Model.Provider]; ok {
			if v, ok := lookup(key); ok {
				c.Model.APIKey = v
			}
		}
	}

	return errors.Join(errs...)
}

var providerKeys = map[string]string{
	ProviderGemini:    "GEMINI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
}
