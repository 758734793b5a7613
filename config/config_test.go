package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Engine.MaxSteps)
	assert.Equal(t, 4, cfg.Engine.ToolConcurrency)
	assert.Equal(t, 60*time.Second, cfg.Engine.DecisionTimeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name: research-bot
server:
  port: 9090
  cors_origins: ["https://example.com"]
engine:
  max_steps: 6
  tool_timeout: 5s
store:
  driver: redis
  redis_addr: redis:6379
  ttl: 24h
`), 0o600))

	t.Setenv("AGENTGRAPH_ENGINE_MAX_STEPS", "12")
	t.Setenv("AGENTGRAPH_LLM_PROVIDER", "openai")
	t.Setenv("AGENTGRAPH_LLM_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "research-bot", cfg.AppName)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 12, cfg.Engine.MaxSteps)
	assert.Equal(t, 5*time.Second, cfg.Engine.ToolTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Engine.RunTimeout)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.Store.TTL)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("AGENTGRAPH_STORE_DRIVER", "postgres")

	_, err := Load("")
	assert.ErrorContains(t, err, "store.driver")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"anthropic", func(c *Config) { c.LLM.Provider = "anthropic" }, ""},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "cohere" }, "llm.provider"},
		{"negative rate", func(c *Config) { c.LLM.Provider = "openai"; c.LLM.RatePerSecond = -1 }, "rate_per_second"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero steps", func(c *Config) { c.Engine.MaxSteps = 0 }, "engine.max_steps"},
		{"zero concurrency", func(c *Config) { c.Engine.ToolConcurrency = 0 }, "engine.tool_concurrency"},
		{"zero attempts", func(c *Config) { c.Engine.DecisionAttempts = 0 }, "engine.decision_attempts"},
		{"zero timeout", func(c *Config) { c.Engine.ToolTimeout = 0 }, "timeouts"},
		{"redis without addr", func(c *Config) { c.Store.Driver = "redis"; c.Store.RedisAddr = "" }, "redis_addr"},
		{"redis", func(c *Config) { c.Store.Driver = "redis" }, ""},
		{"redis lock shorter than run", func(c *Config) { c.Store.Driver = "redis"; c.Store.LockTTL = time.Second }, "store.lock_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestYAML_MasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Tools.TavilyAPIKey = "tvly-secret"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
	assert.Contains(t, string(out), "max_steps: 10")
	assert.Contains(t, string(out), "tool_timeout: 30s")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "agentgraph", decoded["app_name"])

	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", ServerConfig{Host: "127.0.0.1", Port: 8080}.Addr())
}
