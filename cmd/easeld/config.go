// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the base name of the config file (easeld.yaml).
const DefaultConfigFileName = "easeld"

// Config holds all configuration for the Easel server.
// Priority: CLI flags > config file > env vars > defaults.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Hub     HubConfig     `mapstructure:"hub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds websocket server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty allows all origins; "*" as a single entry does the same.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider string `mapstructure:"provider"` // anthropic, openai, ollama, bedrock
	Model    string `mapstructure:"model"`    // overrides the provider default

	// Anthropic-specific
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"` // From CLI/env only
	AnthropicModel  string `mapstructure:"anthropic_model"`

	// Bedrock-specific
	BedrockRegion          string `mapstructure:"bedrock_region"`
	BedrockAccessKeyID     string `mapstructure:"bedrock_access_key_id"` // From CLI/env only
	BedrockSecretAccessKey string `mapstructure:"bedrock_secret_access_key"`
	BedrockSessionToken    string `mapstructure:"bedrock_session_token"`
	BedrockProfile         string `mapstructure:"bedrock_profile"`
	BedrockModelID         string `mapstructure:"bedrock_model_id"`

	// Ollama-specific
	OllamaEndpoint string `mapstructure:"ollama_endpoint"`
	OllamaModel    string `mapstructure:"ollama_model"`
	OllamaToolMode string `mapstructure:"ollama_tool_mode"` // auto, native, prompt

	// OpenAI-specific
	OpenAIAPIKey string `mapstructure:"openai_api_key"` // From CLI/env only
	OpenAIModel  string `mapstructure:"openai_model"`

	// Common generation parameters
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     int     `mapstructure:"timeout_seconds"`

	// Rate limiting toward the provider API
	RateLimitEnabled           bool    `mapstructure:"rate_limit_enabled"`
	RateLimitRequestsPerSecond float64 `mapstructure:"rate_limit_requests_per_second"`

	// Retry with backoff for non-streaming provider calls
	RetryEnabled    bool `mapstructure:"retry_enabled"`
	RetryMaxRetries int  `mapstructure:"retry_max_retries"`
}

// AgentConfig holds agent loop configuration.
type AgentConfig struct {
	// MaxIterations bounds tool-call round-trips per turn.
	MaxIterations int `mapstructure:"max_iterations"`

	// PromptTemplate overrides the built-in system prompt template.
	// Tokens {{board_id}} and {{theme}} are substituted per request.
	PromptTemplate string `mapstructure:"prompt_template"`

	// Preflight sends a one-token probe to the provider at startup so
	// misconfiguration fails before the first client connects.
	Preflight bool `mapstructure:"preflight"`
}

// HubConfig holds connection hub configuration.
type HubConfig struct {
	// QueueSize bounds each connection's outbound event queue.
	QueueSize int `mapstructure:"queue_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	File   string `mapstructure:"file"`   // optional file path, defaults to stderr
}

// LoadConfig loads configuration from multiple sources with proper priority:
// 1. Command line flags (highest priority)
// 2. Config file
// 3. Environment variables (EASEL_ prefix, e.g. EASEL_LLM_ANTHROPIC_API_KEY)
// 4. Defaults (lowest priority)
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/easel/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	viper.SetEnvPrefix("EASEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8787)
	viper.SetDefault("server.allowed_origins", []string{})

	// LLM defaults
	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.anthropic_model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("llm.bedrock_region", "us-west-2")
	viper.SetDefault("llm.bedrock_model_id", "us.anthropic.claude-sonnet-4-5-20250929-v1:0")
	viper.SetDefault("llm.ollama_endpoint", "http://localhost:11434")
	viper.SetDefault("llm.ollama_model", "llama3.1")
	viper.SetDefault("llm.ollama_tool_mode", "auto")
	viper.SetDefault("llm.openai_model", "gpt-4o")
	viper.SetDefault("llm.temperature", 1.0)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout_seconds", 120)
	viper.SetDefault("llm.rate_limit_enabled", false)
	viper.SetDefault("llm.rate_limit_requests_per_second", 2.0)
	viper.SetDefault("llm.retry_enabled", false)
	viper.SetDefault("llm.retry_max_retries", 3)

	// Agent defaults
	viper.SetDefault("agent.max_iterations", 10)
	viper.SetDefault("agent.preflight", false)

	// Hub defaults
	viper.SetDefault("hub.queue_size", 64)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}

	switch c.LLM.Provider {
	case "anthropic", "openai":
		// API keys may come from ANTHROPIC_API_KEY / OPENAI_API_KEY at
		// client construction time, so absence here is not fatal.

	case "bedrock":
		if c.LLM.BedrockRegion == "" {
			return fmt.Errorf("bedrock region is required (set llm.bedrock_region or EASEL_LLM_BEDROCK_REGION)")
		}

	case "ollama":
		if c.LLM.OllamaEndpoint == "" {
			return fmt.Errorf("ollama endpoint is required (set llm.ollama_endpoint or EASEL_LLM_OLLAMA_ENDPOINT)")
		}
		if c.LLM.OllamaModel == "" {
			return fmt.Errorf("ollama model is required (set llm.ollama_model)")
		}

	default:
		return fmt.Errorf("unsupported LLM provider: %s (must be anthropic, openai, ollama, or bedrock)", c.LLM.Provider)
	}

	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1, got %d", c.Agent.MaxIterations)
	}

	return nil
}

// GenerateExampleConfig generates an example configuration file.
func GenerateExampleConfig() string {
	return `# Easel Server Configuration
# Priority: CLI flags > config file > environment variables > defaults
# Environment variables use the EASEL_ prefix: EASEL_LLM_ANTHROPIC_API_KEY, EASEL_SERVER_PORT, ...

server:
  host: 0.0.0.0
  port: 8787
  # Restrict websocket upgrades by Origin header. Empty allows all origins.
  allowed_origins: []
  # allowed_origins:
  #   - https://canvas.example.com

llm:
  # Provider options: anthropic, openai, ollama, bedrock
  provider: anthropic

  # Anthropic configuration
  anthropic_model: claude-sonnet-4-5-20250929
  # anthropic_api_key: set via EASEL_LLM_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY

  # OpenAI configuration
  openai_model: gpt-4o
  # openai_api_key: set via EASEL_LLM_OPENAI_API_KEY or OPENAI_API_KEY

  # Ollama configuration (local inference)
  ollama_endpoint: http://localhost:11434
  ollama_model: llama3.1
  ollama_tool_mode: auto  # auto, native, prompt

  # AWS Bedrock configuration
  bedrock_region: us-west-2
  bedrock_model_id: us.anthropic.claude-sonnet-4-5-20250929-v1:0
  # bedrock_profile: default  # Use an AWS profile instead of explicit credentials

  # Common generation parameters (apply to all providers)
  temperature: 1.0
  max_tokens: 4096
  timeout_seconds: 120

  # Retry non-streaming provider calls with exponential backoff.
  retry_enabled: false
  retry_max_retries: 3

agent:
  # Maximum tool-call round-trips per turn before the answer is truncated.
  max_iterations: 10
  # Probe the provider at startup so misconfiguration fails fast.
  preflight: false

hub:
  # Per-connection outbound event queue; slow clients drop newest events
  # when the queue is full.
  queue_size: 64

logging:
  level: info  # debug, info, warn, error
  format: text # text, json

# Note: secrets should NEVER be committed to config files.
# Provide API keys via environment variables or CLI flags.
`
}
