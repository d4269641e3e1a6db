// Package config provides hierarchical configuration loading for Redline.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the Redline review service.
type Config struct {
	Server       Server       `yaml:"server"`
	Logging      Logging      `yaml:"logging"`
	LLM          LLM          `yaml:"llm"`
	NATS         NATS         `yaml:"nats"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Events       Events       `yaml:"events"`
	Store        Store        `yaml:"store"`
	Cache        Cache        `yaml:"cache"`
	Breaker      Breaker      `yaml:"breaker"`
	Rate         Rate         `yaml:"rate"`
	Otel         Otel         `yaml:"otel"`
	MCP          MCP          `yaml:"mcp"`
	Agents       Agents       `yaml:"agents"`
}

// Server holds HTTP server configuration. RateRPS 0 disables the
// per-IP request limiter.
type Server struct {
	Port       string  `yaml:"port"`
	BaseURL    string  `yaml:"base_url"` // external URL advertised on the agent card
	CORSOrigin string  `yaml:"cors_origin"`
	RateRPS    float64 `yaml:"rate_rps"`
	RateBurst  int     `yaml:"rate_burst"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// ModelPricing is the per-million-token cost of one model, used for the
// cost accounting attached to agent metrics.
type ModelPricing struct {
	InputPer1M  float64 `yaml:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m"`
}

// LLM holds the completion proxy configuration. The API key may come from
// the environment directly or from a file (container secret mounts).
type LLM struct {
	URL          string                  `yaml:"url"`
	APIKey       string                  `yaml:"api_key"`
	APIKeyFile   string                  `yaml:"api_key_file"`
	DefaultModel string                  `yaml:"default_model"`
	MaxTokens    int                     `yaml:"max_tokens"`
	AgentModels  map[string]string       `yaml:"agent_models"`  // agent id -> model override
	PanelModels  []string                `yaml:"panel_models"`  // models for panel-mode adversarial review
	Pricing      map[string]ModelPricing `yaml:"pricing"`       // model -> USD per 1M tokens
}

// NATS holds the optional JetStream event mirror configuration. An empty
// URL disables the mirror.
type NATS struct {
	URL string `yaml:"url"`
}

// Orchestrator holds pipeline scheduling configuration.
type Orchestrator struct {
	MaxConcurrentAgents int           `yaml:"max_concurrent_agents"` // semaphore capacity (default: 4)
	AgentTimeout        time.Duration `yaml:"agent_timeout"`         // hard per-invocation deadline (default: 60s)
}

// Events holds broadcaster configuration.
type Events struct {
	SubscriberBuffer  int           `yaml:"subscriber_buffer"`  // per-subscriber channel capacity
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"` // idle keepalive period
}

// Store holds in-memory retention configuration.
type Store struct {
	JobTTL        time.Duration `yaml:"job_ttl"`        // retention after a job turns terminal
	SweepInterval time.Duration `yaml:"sweep_interval"` // expiry sweep period
}

// Cache holds the result cache configuration.
type Cache struct {
	MaxSizeMB int64 `yaml:"max_size_mb"`
}

// Breaker holds circuit breaker configuration for outbound LLM calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds the outbound LLM call pacing configuration.
type Rate struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Otel holds OpenTelemetry export configuration. Disabled means no-op
// providers; the instrumented code paths stay identical.
type Otel struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// MCP holds the Model Context Protocol server configuration.
type MCP struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Agents holds deployment-level reviewer toggles. Disabled identities are
// skipped by the scheduler regardless of per-review config.
type Agents struct {
	Disabled []string `yaml:"disabled"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			BaseURL:    "http://localhost:8080",
			CORSOrigin: "http://localhost:3000",
			RateRPS:    50,
			RateBurst:  100,
		},
		Logging: Logging{
			Level:   "info",
			Service: "redline",
		},
		LLM: LLM{
			URL:          "http://localhost:4000",
			DefaultModel: "openai/gpt-4o-mini",
			MaxTokens:    4096,
			PanelModels: []string{
				"openai/gpt-4o",
				"anthropic/claude-sonnet-4",
				"gemini/gemini-2.5-pro",
			},
			Pricing: map[string]ModelPricing{
				"openai/gpt-4o-mini":        {InputPer1M: 0.15, OutputPer1M: 0.60},
				"openai/gpt-4o":             {InputPer1M: 2.50, OutputPer1M: 10.00},
				"anthropic/claude-sonnet-4": {InputPer1M: 3.00, OutputPer1M: 15.00},
				"gemini/gemini-2.5-pro":     {InputPer1M: 1.25, OutputPer1M: 10.00},
			},
		},
		Orchestrator: Orchestrator{
			MaxConcurrentAgents: 4,
			AgentTimeout:        60 * time.Second,
		},
		Events: Events{
			SubscriberBuffer:  256,
			KeepaliveInterval: 15 * time.Second,
		},
		Store: Store{
			JobTTL:        time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Cache: Cache{
			MaxSizeMB: 64,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Otel: Otel{
			Endpoint: "localhost:4317",
			Insecure: true,
		},
		MCP: MCP{
			Addr: ":8090",
		},
	}
}
