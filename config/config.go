// Package config loads agentgraph settings from an optional YAML file and
// AGENTGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// AGENTGRAPH_ENGINE_MAX_STEPS.
const EnvPrefix = "AGENTGRAPH"

// Config is the root configuration.
type Config struct {
	AppName string       `mapstructure:"app_name" yaml:"app_name"`
	Version string       `mapstructure:"version" yaml:"version"`
	Log     LogConfig    `mapstructure:"log" yaml:"log"`
	Server  ServerConfig `mapstructure:"server" yaml:"server"`
	LLM     LLMConfig    `mapstructure:"llm" yaml:"llm"`
	Engine  EngineConfig `mapstructure:"engine" yaml:"engine"`
	Store   StoreConfig  `mapstructure:"store" yaml:"store"`
	Tools   ToolsConfig  `mapstructure:"tools" yaml:"tools"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        int      `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig selects the model provider behind the gateway. Provider "none"
// runs the deterministic keyword router without any model.
type LLMConfig struct {
	Provider      string  `mapstructure:"provider" yaml:"provider"`
	Model         string  `mapstructure:"model" yaml:"model"`
	APIKey        string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL       string  `mapstructure:"base_url" yaml:"base_url"`
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
}

type EngineConfig struct {
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
	ToolConcurrency   int           `mapstructure:"tool_concurrency" yaml:"tool_concurrency"`
	DecisionAttempts  int           `mapstructure:"decision_attempts" yaml:"decision_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	DecisionTimeout   time.Duration `mapstructure:"decision_timeout" yaml:"decision_timeout"`
	ToolTimeout       time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`
	RunTimeout        time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
}

type StoreConfig struct {
	Driver        string        `mapstructure:"driver" yaml:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	LockTTL       time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

type ToolsConfig struct {
	WorkspaceDir   string `mapstructure:"workspace_dir" yaml:"workspace_dir"`
	SearchEndpoint string `mapstructure:"search_endpoint" yaml:"search_endpoint"`
	TavilyAPIKey   string `mapstructure:"tavily_api_key" yaml:"tavily_api_key"`
}

// DefaultConfig returns the configuration used when neither a file nor
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		AppName: "agentgraph",
		Version: "0.1.0",
		Log:     LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		LLM: LLMConfig{Provider: "none"},
		Engine: EngineConfig{
			MaxSteps:         10,
			ToolConcurrency:  4,
			DecisionAttempts: 2,
			DecisionTimeout:  60 * time.Second,
			ToolTimeout:      30 * time.Second,
			RunTimeout:       5 * time.Minute,
		},
		Store: StoreConfig{
			Driver:    "memory",
			RedisAddr: "localhost:6379",
			LockTTL:   10 * time.Minute,
		},
		Tools: ToolsConfig{WorkspaceDir: "./workspace"},
	}
}

// Load reads the YAML file at path (skipped when path is empty) and applies
// environment overrides on top of DefaultConfig. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("version", d.Version)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.rate_per_second", d.LLM.RatePerSecond)
	v.SetDefault("engine.max_steps", d.Engine.MaxSteps)
	v.SetDefault("engine.tool_concurrency", d.Engine.ToolConcurrency)
	v.SetDefault("engine.decision_attempts", d.Engine.DecisionAttempts)
	v.SetDefault("engine.retry_backoff", d.Engine.RetryBackoff)
	v.SetDefault("engine.decision_timeout", d.Engine.DecisionTimeout)
	v.SetDefault("engine.tool_timeout", d.Engine.ToolTimeout)
	v.SetDefault("engine.run_timeout", d.Engine.RunTimeout)
	v.SetDefault("engine.max_concurrent_runs", d.Engine.MaxConcurrentRuns)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.redis_addr", d.Store.RedisAddr)
	v.SetDefault("store.redis_password", d.Store.RedisPassword)
	v.SetDefault("store.redis_db", d.Store.RedisDB)
	v.SetDefault("store.ttl", d.Store.TTL)
	v.SetDefault("store.lock_ttl", d.Store.LockTTL)
	v.SetDefault("tools.workspace_dir", d.Tools.WorkspaceDir)
	v.SetDefault("tools.search_endpoint", d.Tools.SearchEndpoint)
	v.SetDefault("tools.tavily_api_key", d.Tools.TavilyAPIKey)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch c.LLM.Provider {
	case "none":
	case "openai", "anthropic":
		if c.LLM.RatePerSecond < 0 {
			errs = append(errs, errors.New("llm.rate_per_second must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be openai, anthropic or none, got %q", c.LLM.Provider))
	}

	if c.Engine.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("engine.max_steps must be at least 1, got %d", c.Engine.MaxSteps))
	}
	if c.Engine.ToolConcurrency < 1 {
		errs = append(errs, fmt.Errorf("engine.tool_concurrency must be at least 1, got %d", c.Engine.ToolConcurrency))
	}
	if c.Engine.DecisionAttempts < 1 {
		errs = append(errs, fmt.Errorf("engine.decision_attempts must be at least 1, got %d", c.Engine.DecisionAttempts))
	}
	if c.Engine.DecisionTimeout <= 0 || c.Engine.ToolTimeout <= 0 || c.Engine.RunTimeout <= 0 {
		errs = append(errs, errors.New("engine timeouts must be positive"))
	}

	switch c.Store.Driver {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis driver"))
		}
		if c.Store.LockTTL <= c.Engine.RunTimeout {
			errs = append(errs, fmt.Errorf("store.lock_ttl (%s) must exceed engine.run_timeout (%s)", c.Store.LockTTL, c.Engine.RunTimeout))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be memory or redis, got %q", c.Store.Driver))
	}

	return errors.Join(errs...)
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	masked.LLM.APIKey = mask(c.LLM.APIKey)
	masked.Store.RedisPassword = mask(c.Store.RedisPassword)
	masked.Tools.TavilyAPIKey = mask(c.Tools.TavilyAPIKey)
	return yaml.Marshal(&masked)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
