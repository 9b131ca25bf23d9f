package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/suite-pilot/pilot"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Auth     AuthConfig     `mapstructure:"auth"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Harness  HarnessConfig  `mapstructure:"harness"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// AuthConfig stores the identity-provider and service-token endpoints.
type AuthConfig struct {
	ClientID          string        `mapstructure:"client_id"`
	Scope             string        `mapstructure:"scope"`
	DeviceCodeURL     string        `mapstructure:"device_code_url"`
	TokenURL          string        `mapstructure:"token_url"`
	GrantType         string        `mapstructure:"grant_type"`
	SlowDownIncrement time.Duration `mapstructure:"slow_down_increment"` // added to the poll interval on slow_down

	ExchangeURL    string        `mapstructure:"exchange_url"`
	ExchangeMethod string        `mapstructure:"exchange_method"`
	HeaderScheme   string        `mapstructure:"header_scheme"` // Authorization scheme for the exchange call
	TokenTTL       time.Duration `mapstructure:"token_ttl"`     // fallback when the exchange returns no expiry

	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// ChatConfig stores chat-completion backend settings.
type ChatConfig struct {
	URL         string            `mapstructure:"url"`
	Model       string            `mapstructure:"model"`
	Temperature *float32          `mapstructure:"temperature"` // nil leaves the backend default
	TopP        *float32          `mapstructure:"top_p"`
	MaxTokens   int               `mapstructure:"max_tokens"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Headers     map[string]string `mapstructure:"headers"` // extra static request headers
}

// ToolsConfig stores tool-server endpoints.
type ToolsConfig struct {
	DiscoveryURLs []string      `mapstructure:"discovery_urls"`
	ExecuteURL    string        `mapstructure:"execute_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Concurrency   int           `mapstructure:"concurrency"` // parallel discovery requests
	FixturesDir   string        `mapstructure:"fixtures_dir"` // enables the fixture_files tool
}

// AgentConfig stores the conversation loop limits.
type AgentConfig struct {
	MaxToolCalls     int    `mapstructure:"max_tool_calls"`
	WindowSize       int    `mapstructure:"window_size"`      // non-system messages kept between model calls
	MaxResultChars   int    `mapstructure:"max_result_chars"` // tool result truncation
	ToolsEnabled     bool   `mapstructure:"tools_enabled"`
	SystemPrompt     string `mapstructure:"system_prompt"`
	SystemPromptPath string `mapstructure:"system_prompt_path"`
}

// HarnessConfig stores LLM harness configurations.
type HarnessConfig struct {
	// Cache settings
	CacheEnabled    bool `mapstructure:"cache_enabled"`     // memoize code translations
	CacheCapacity   int  `mapstructure:"cache_capacity"`    // LRU cache capacity
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"` // Cache entry TTL

	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`    // Token bucket capacity
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"` // Refill rate

	// Safety and validation
	EnableGuardrails bool     `mapstructure:"enable_guardrails"`
	AllowedTools     []string `mapstructure:"allowed_tools"`   // empty means allow all
	RedactPatterns   []string `mapstructure:"redact_patterns"` // regexps masked in step excerpts

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// DatabaseConfig stores transcript database connection details.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
	Type    string `mapstructure:"type"`
	// Embedded-only configuration
	LibSQLDataDir string `mapstructure:"libsql_data_dir"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // zerolog level name
	Format string `mapstructure:"format"` // "console" or "json"
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.AutomaticEnv()
	// auth.client_id becomes AUTH_CLIENT_ID
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file; defaults and env apply
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &AppConfig, nil
}

func setDefaults() {
	// Device flow defaults (GitHub identity provider)
	viper.SetDefault("auth.client_id", "")
	viper.SetDefault("auth.scope", "read:user")
	viper.SetDefault("auth.device_code_url", "https://github.com/login/device/code")
	viper.SetDefault("auth.token_url", "https://github.com/login/oauth/access_token")
	viper.SetDefault("auth.grant_type", "urn:ietf:params:oauth:grant-type:device_code")
	viper.SetDefault("auth.slow_down_increment", "5s")
	viper.SetDefault("auth.exchange_url", "https://api.github.com/copilot_internal/v2/token")
	viper.SetDefault("auth.exchange_method", "GET")
	viper.SetDefault("auth.header_scheme", "token")
	viper.SetDefault("auth.token_ttl", internal.DefaultTokenTTL.String())
	viper.SetDefault("auth.http_timeout", "30s")

	// Chat backend defaults
	viper.SetDefault("chat.url", "https://api.githubcopilot.com/chat/completions")
	viper.SetDefault("chat.model", "gpt-4o")
	viper.SetDefault("chat.temperature", 0.1)
	viper.SetDefault("chat.top_p", 1.0)
	viper.SetDefault("chat.max_tokens", 4096)
	viper.SetDefault("chat.timeout", "120s")

	// Tool server defaults (local browser-automation bridge)
	viper.SetDefault("tools.discovery_urls", []string{"http://127.0.0.1:8931/tools"})
	viper.SetDefault("tools.execute_url", "http://127.0.0.1:8931/execute")
	viper.SetDefault("tools.timeout", "60s")
	viper.SetDefault("tools.concurrency", 4)
	viper.SetDefault("tools.fixtures_dir", "")

	// Agent loop defaults
	viper.SetDefault("agent.max_tool_calls", internal.DefaultMaxToolCalls)
	viper.SetDefault("agent.window_size", internal.DefaultWindowSize)
	viper.SetDefault("agent.max_result_chars", internal.DefaultMaxResultChars)
	viper.SetDefault("agent.tools_enabled", true)
	viper.SetDefault("agent.system_prompt", "")
	viper.SetDefault("agent.system_prompt_path", "")

	// Harness defaults
	viper.SetDefault("harness.cache_enabled", true)
	viper.SetDefault("harness.cache_capacity", 1000)
	viper.SetDefault("harness.cache_ttl_seconds", 3600) // 1 hour
	viper.SetDefault("harness.rate_limit_enabled", true)
	viper.SetDefault("harness.rate_limit_capacity", 10)
	viper.SetDefault("harness.rate_limit_refill_rate", "1s")
	viper.SetDefault("harness.enable_guardrails", true)
	viper.SetDefault("harness.allowed_tools", []string{}) // Empty means allow all by default
	viper.SetDefault("harness.redact_patterns", []string{
		`(?i)bearer\s+[a-z0-9._\-]+`,
		`gh[opsu]_[A-Za-z0-9]{20,}`,
	})
	viper.SetDefault("harness.enable_tracing", true)

	// Transcript database defaults
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	viper.SetDefault("database.type", internal.DefaultDatabaseType)
	viper.SetDefault("database.libsql_data_dir", internal.DefaultDatabaseDir)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
}

// Validate rejects settings the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Agent.MaxToolCalls < 0 {
		return fmt.Errorf("agent.max_tool_calls must not be negative, got %d", c.Agent.MaxToolCalls)
	}
	if c.Agent.WindowSize < 1 {
		return fmt.Errorf("agent.window_size must be at least 1, got %d", c.Agent.WindowSize)
	}
	if c.Agent.MaxResultChars < 1 {
		return fmt.Errorf("agent.max_result_chars must be at least 1, got %d", c.Agent.MaxResultChars)
	}
	if c.Chat.URL == "" {
		return fmt.Errorf("chat.url is required")
	}
	return nil
}
