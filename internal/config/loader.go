package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is where Load looks for the YAML layer.
const DefaultConfigFile = "redline.yaml"

// Load builds the effective Config from the default file location.
// Layers apply in order: built-in defaults, then YAML, then environment.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom builds the effective Config from the given YAML path.
// A missing file is fine; defaults and environment still apply.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML unmarshals the file at path over cfg in place, so keys the
// file omits keep their current values. A nonexistent file is a no-op.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv applies the environment layer. Unset variables leave cfg
// untouched, so the YAML and default layers show through.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "REDLINE_PORT")
	setString(&cfg.Server.BaseURL, "REDLINE_BASE_URL")
	setString(&cfg.Server.CORSOrigin, "REDLINE_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateRPS, "REDLINE_HTTP_RATE_RPS")
	setInt(&cfg.Server.RateBurst, "REDLINE_HTTP_RATE_BURST")
	setString(&cfg.Logging.Level, "REDLINE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REDLINE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "REDLINE_LOG_ASYNC")
	setString(&cfg.LLM.URL, "REDLINE_LLM_URL")
	setString(&cfg.LLM.APIKey, "REDLINE_LLM_API_KEY")
	setString(&cfg.LLM.APIKeyFile, "REDLINE_LLM_API_KEY_FILE")
	setString(&cfg.LLM.DefaultModel, "REDLINE_LLM_MODEL")
	setInt(&cfg.LLM.MaxTokens, "REDLINE_LLM_MAX_TOKENS")
	if v := os.Getenv("REDLINE_LLM_PANEL_MODELS"); v != "" {
		cfg.LLM.PanelModels = strings.Split(v, ",")
		for i := range cfg.LLM.PanelModels {
			cfg.LLM.PanelModels[i] = strings.TrimSpace(cfg.LLM.PanelModels[i])
		}
	}
	setString(&cfg.NATS.URL, "NATS_URL")
	setInt(&cfg.Orchestrator.MaxConcurrentAgents, "REDLINE_MAX_CONCURRENT_AGENTS")
	setDuration(&cfg.Orchestrator.AgentTimeout, "REDLINE_AGENT_TIMEOUT")
	setInt(&cfg.Events.SubscriberBuffer, "REDLINE_EVENT_BUFFER")
	setDuration(&cfg.Events.KeepaliveInterval, "REDLINE_KEEPALIVE_INTERVAL")
	setDuration(&cfg.Store.JobTTL, "REDLINE_JOB_TTL")
	setDuration(&cfg.Store.SweepInterval, "REDLINE_SWEEP_INTERVAL")
	setInt64(&cfg.Cache.MaxSizeMB, "REDLINE_CACHE_SIZE_MB")
	setInt(&cfg.Breaker.MaxFailures, "REDLINE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REDLINE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "REDLINE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "REDLINE_RATE_BURST")
	setBool(&cfg.Otel.Enabled, "REDLINE_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "REDLINE_OTEL_INSECURE")
	setBool(&cfg.MCP.Enabled, "REDLINE_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "REDLINE_MCP_ADDR")

	if v := os.Getenv("REDLINE_AGENTS_DISABLED"); v != "" {
		cfg.Agents.Disabled = strings.Split(v, ",")
		for i := range cfg.Agents.Disabled {
			cfg.Agents.Disabled[i] = strings.TrimSpace(cfg.Agents.Disabled[i])
		}
	}
}

// validate rejects configs the service cannot run with. It runs on the
// fully merged result, so a bad override surfaces no matter which layer
// set it.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RateRPS > 0 && cfg.Server.RateBurst < 1 {
		return errors.New("server.rate_burst must be >= 1 when rate limiting is on")
	}
	if cfg.LLM.URL == "" {
		return errors.New("llm.url is required")
	}
	if cfg.LLM.DefaultModel == "" {
		return errors.New("llm.default_model is required")
	}
	if cfg.Orchestrator.MaxConcurrentAgents < 1 {
		return errors.New("orchestrator.max_concurrent_agents must be >= 1")
	}
	if cfg.Orchestrator.AgentTimeout <= 0 {
		return errors.New("orchestrator.agent_timeout must be > 0")
	}
	if cfg.Events.SubscriberBuffer < 1 {
		return errors.New("events.subscriber_buffer must be >= 1")
	}
	if cfg.Events.KeepaliveInterval <= 0 {
		return errors.New("events.keepalive_interval must be > 0")
	}
	if cfg.Store.JobTTL <= 0 {
		return errors.New("store.job_ttl must be > 0")
	}
	if cfg.Store.SweepInterval <= 0 {
		return errors.New("store.sweep_interval must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.MCP.Enabled && cfg.MCP.Addr == "" {
		return errors.New("mcp.addr is required when mcp is enabled")
	}
	return nil
}

// The set helpers each overlay one env var. An unset variable is a
// no-op; an unparsable value is dropped and the previous layer's value
// stays.
func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setFloat64(dst *float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}

func setInt64(dst *int64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
