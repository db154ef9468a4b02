package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Agent     AgentConfig     `yaml:"agent"`
	LLM       ProviderConfig  `yaml:"llm"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// HTTPRequestsPerMin guards the transport against abuse per client IP.
	// This is separate from the per-actor/per-board command limits.
	HTTPRequestsPerMin int `yaml:"http_requests_per_min"`
	HTTPBurst          int `yaml:"http_burst"`
}

// AgentConfig holds agent loop settings.
type AgentConfig struct {
	Enabled       bool   `yaml:"enabled"`
	MaxIterations int    `yaml:"max_iterations"`
	SystemPrompt  string `yaml:"system_prompt"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	// Circuit breaker settings; zero values use defaults.
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
}

// RateLimitConfig holds per-key command rate limiting settings.
type RateLimitConfig struct {
	Window   time.Duration `yaml:"window"`
	PerUser  int           `yaml:"per_user"`
	PerBoard int           `yaml:"per_board"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds identity verification settings.
type AuthConfig struct {
	// Secret signs actor tokens. Required unless auth is disabled for
	// local development.
	Secret string `yaml:"secret"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	Output string `yaml:"output"` // "stdout", "stderr", or a file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// Default returns a config with sensible defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			RequestTimeout:     120 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			HTTPRequestsPerMin: 100,
			HTTPBurst:          20,
		},
		Agent: AgentConfig{
			Enabled:       true,
			MaxIterations: 5,
		},
		LLM: ProviderConfig{
			Name:        "openai",
			Model:       "gpt-4o-mini",
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Window:   time.Minute,
			PerUser:  30,
			PerBoard: 60,
		},
		Store:  StoreConfig{Path: "boardpilot.db"},
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
	}
}

// Load reads the config file at path (optional), applies environment
// overrides, and validates. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. Environment wins
// over file values so deployments can tune limits without editing YAML.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BOARDPILOT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AI_AGENT_ENABLED"); v != "" {
		cfg.Agent.Enabled = v != "false" && v != "0"
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("BOARDPILOT_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if n := envInt("AI_COMMANDS_PER_USER_PER_MINUTE"); n > 0 {
		cfg.RateLimit.PerUser = n
	}
	if n := envInt("AI_COMMANDS_PER_BOARD_PER_MINUTE"); n > 0 {
		cfg.RateLimit.PerBoard = n
	}
	if v := os.Getenv("BOARDPILOT_DB"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BOARDPILOT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}

func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be >= 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.RateLimit.PerUser < 1 || c.RateLimit.PerBoard < 1 {
		return fmt.Errorf("rate_limit thresholds must be >= 1")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	// An empty secret would let anyone forge actor tokens.
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required (set BOARDPILOT_AUTH_SECRET)")
	}
	return nil
}
