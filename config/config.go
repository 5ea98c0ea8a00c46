// Package config provides configuration management for the plainmed server.
// Configuration is loaded from YAML with environment variable expansion,
// validated, and optionally hot-reloaded through a file watcher.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
// It combines HTTP server settings, LLM configuration, request limits,
// rate limiting, and the static client app location into a single structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Limits    LimitsConfig    `yaml:"limits"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cards     CardsConfig     `yaml:"cards"`
	Static    StaticConfig    `yaml:"static"`
	Logging   LoggingConfig   `yaml:"logging"`

	// TestMode skips LLM provider initialization in tests
	TestMode bool `yaml:"-"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
// It defines timeouts, limits, and operational parameters.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 8080)
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response (default: 60s; must cover one full LLM round trip)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request headers (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ShutdownTimeout specifies how long to wait for the server to shut down
	// gracefully before forcing termination (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds handling of a single /api request, including the
	// outbound LLM call (default: 45s)
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LLMConfig holds configuration for the external text-generation service.
type LLMConfig struct {
	// Provider specifies the LLM provider (e.g., "openai", "anthropic", "ollama")
	Provider string `yaml:"provider"`

	// Model is the name of the model to use (e.g., "gpt-4o-mini")
	Model string `yaml:"model"`

	// APIKey is the authentication key for the provider's API.
	// Use environment variables (e.g., ${OPENAI_API_KEY}) in the YAML.
	APIKey string `yaml:"api_key"`

	// Temperature controls generation randomness. The simplifier wants
	// low-to-moderate randomness so rewrites stay faithful (default: 0.3).
	Temperature float64 `yaml:"temperature"`

	// MaxOutputTokens caps the length of the generated rewrite (default: 1024)
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// MaxContextTokens is the model's context window, used to warn when a
	// prompt risks exceeding it (default: 16384)
	MaxContextTokens int `yaml:"max_context_tokens"`

	// Breaker configures the circuit breaker around the outbound call
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker protecting the LLM call.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens (default: 5)
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// ResetTimeout is how long the breaker stays open before probing the
	// service again (default: 30s)
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// LimitsConfig bounds the sizes of client-supplied inputs.
type LimitsConfig struct {
	// MaxUploadBytes caps the multipart upload body (default: 8 MiB)
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// MaxSimplifyBodyBytes caps the /api/simplify JSON body (default: 200 KiB)
	MaxSimplifyBodyBytes int64 `yaml:"max_simplify_body_bytes"`

	// MaxReportChars is the truncation threshold applied to report text
	// before it is embedded in the prompt (default: 8000)
	MaxReportChars int `yaml:"max_report_chars"`
}

// RateLimitConfig defines the request budget applied to /api routes.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off (default: true)
	Enabled bool `yaml:"enabled"`

	// Requests is the number of requests allowed per window per client IP
	// (default: 20)
	Requests int `yaml:"requests"`

	// Window is the period over which Requests is counted (default: 1m)
	Window time.Duration `yaml:"window"`
}

// CardsConfig configures visual card generation.
type CardsConfig struct {
	// ImageHintTemplate is a printf-style template with a single %s verb
	// that receives the URL-encoded keyword
	ImageHintTemplate string `yaml:"image_hint_template"`
}

// StaticConfig locates the built web client served for non-API paths.
type StaticConfig struct {
	// Dir is the directory containing the built client app
	Dir string `yaml:"dir"`

	// Index is the entry page served for unmatched routes (default: index.html)
	Index string `yaml:"index"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level"`

	// Format specifies log output format: json or text
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no YAML overrides are
// provided. Defaults match the documented contract: 8 MiB uploads, 200 KiB
// simplify bodies, 8000-character truncation, 20 requests per minute.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  45 * time.Second,
		},
		LLM: LLMConfig{
			Provider:         "openai",
			Model:            "gpt-4o-mini",
			APIKey:           "${OPENAI_API_KEY}",
			Temperature:      0.3,
			MaxOutputTokens:  1024,
			MaxContextTokens: 16384,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Limits: LimitsConfig{
			MaxUploadBytes:       8 << 20,
			MaxSimplifyBodyBytes: 200 << 10,
			MaxReportChars:       8000,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 20,
			Window:   time.Minute,
		},
		Cards: CardsConfig{
			ImageHintTemplate: "https://source.unsplash.com/600x400/?%s",
		},
		Static: StaticConfig{
			Dir:   "client/dist",
			Index: "index.html",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFile loads configuration from a YAML file
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// expandEnvVars resolves environment variable references in configuration
// strings. It supports standard ${VAR} substitution plus the ${VAR:-default}
// syntax for default values, and resolves nested references until the result
// is stable.
//
// Example transformations:
//   - "${OPENAI_API_KEY}"  → "sk-..."
//   - "${PORT:-8080}"      → "8080" (if PORT is unset)
func expandEnvVars(s string) string {
	result := os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			envKey := key[:i]
			defaultValue := key[i+2:]
			if val := os.Getenv(envKey); val != "" {
				return val
			}
			return defaultValue
		}
		return os.Getenv(key)
	})

	// Resolve nested references until no further substitution happens.
	prev := ""
	for prev != result {
		prev = result
		result = os.Expand(result, os.Getenv)
	}

	return result
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvVars(string(data))

	// Start with defaults, then decode YAML on top of them.
	config := DefaultConfig()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("negative request timeout: %v", c.Server.RequestTimeout)
	}

	if c.LLM.Provider == "" {
		return fmt.Errorf("empty LLM provider")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("empty LLM model")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("temperature out of range [0,1]: %v", c.LLM.Temperature)
	}
	if c.LLM.MaxOutputTokens <= 0 {
		return fmt.Errorf("max output tokens must be positive: %d", c.LLM.MaxOutputTokens)
	}
	if c.LLM.MaxContextTokens < 0 {
		return fmt.Errorf("negative max context tokens: %d", c.LLM.MaxContextTokens)
	}

	if c.Limits.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive: %d", c.Limits.MaxUploadBytes)
	}
	if c.Limits.MaxSimplifyBodyBytes <= 0 {
		return fmt.Errorf("max simplify body bytes must be positive: %d", c.Limits.MaxSimplifyBodyBytes)
	}
	if c.Limits.MaxReportChars <= 0 {
		return fmt.Errorf("max report chars must be positive: %d", c.Limits.MaxReportChars)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			return fmt.Errorf("rate limit requests must be positive: %d", c.RateLimit.Requests)
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive: %v", c.RateLimit.Window)
		}
	}

	if c.Cards.ImageHintTemplate == "" {
		return fmt.Errorf("empty image hint template")
	}
	if !strings.Contains(c.Cards.ImageHintTemplate, "%s") {
		return fmt.Errorf("image hint template must contain a %%s placeholder")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
