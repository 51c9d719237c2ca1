// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package factory builds LLM providers and streaming clients from
// configuration, keyed on a provider identifier.
package factory

import (
	"os"
	"time"

	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/llm/anthropic"
	"github.com/teradata-labs/easel/pkg/llm/bedrock"
	"github.com/teradata-labs/easel/pkg/llm/ollama"
	"github.com/teradata-labs/easel/pkg/llm/openai"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

// ProviderFactory creates LLM providers based on configuration.
type ProviderFactory struct {
	config Config
}

// Config holds configuration for creating LLM providers.
type Config struct {
	// Default provider to use when none is requested.
	DefaultProvider string
	DefaultModel    string

	// Anthropic configuration
	AnthropicAPIKey string
	AnthropicModel  string

	// Bedrock configuration
	BedrockRegion          string
	BedrockAccessKeyID     string
	BedrockSecretAccessKey string
	BedrockSessionToken    string
	BedrockProfile         string
	BedrockModelID         string

	// Ollama configuration
	OllamaEndpoint string
	OllamaModel    string
	OllamaToolMode string

	// OpenAI configuration
	OpenAIAPIKey string
	OpenAIModel  string

	// Common settings
	MaxTokens     int
	Temperature   float64
	Timeout       int // seconds
	MaxIterations int
	RateLimiter   llm.RateLimiterConfig
	Retry         llm.RetryConfig
}

// New creates a provider factory.
func New(config Config) *ProviderFactory {
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.Temperature == 0 {
		config.Temperature = 1.0
	}
	if config.Timeout == 0 {
		config.Timeout = 120
	}
	if config.MaxIterations == 0 {
		config.MaxIterations = llm.DefaultMaxIterations
	}
	return &ProviderFactory{config: config}
}

// CreateProvider creates a streaming provider for the given provider id.
// An unknown id, or a provider without token streaming, fails fast with
// a ConfigurationError.
func (f *ProviderFactory) CreateProvider(provider, model string) (types.StreamingLLMProvider, error) {
	if provider == "" {
		provider = f.config.DefaultProvider
	}
	if model == "" {
		model = f.config.DefaultModel
	}

	var p types.LLMProvider
	var err error
	switch provider {
	case "anthropic":
		p, err = f.createAnthropic(model)
	case "openai":
		p, err = f.createOpenAI(model)
	case "ollama":
		p, err = f.createOllama(model)
	case "bedrock":
		p, err = f.createBedrock(model)
	default:
		return nil, &llm.ConfigurationError{
			Provider: provider,
			Reason:   "unsupported provider",
		}
	}
	if err != nil {
		return nil, err
	}
	if !types.SupportsStreaming(p) {
		return nil, &llm.ConfigurationError{
			Provider: provider,
			Reason:   "provider does not support token streaming",
		}
	}
	return p.(types.StreamingLLMProvider), nil
}

// CreateClient creates a streaming client with the agentic tool loop
// wired to the given tool registry.
func (f *ProviderFactory) CreateClient(provider, model string, registry *palette.Registry) (*llm.Client, error) {
	p, err := f.CreateProvider(provider, model)
	if err != nil {
		return nil, err
	}
	var opts []llm.ClientOption
	if f.config.Retry.Enabled {
		opts = append(opts, llm.WithRetry(f.config.Retry))
	}
	return llm.NewClient(p, registry, f.config.MaxIterations, opts...), nil
}

// IsProviderAvailable checks whether a provider's credentials and
// configuration are present.
func (f *ProviderFactory) IsProviderAvailable(provider string) bool {
	_, err := f.CreateProvider(provider, "")
	return err == nil
}

func (f *ProviderFactory) createAnthropic(model string) (types.LLMProvider, error) {
	apiKey := f.config.AnthropicAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if model == "" {
		model = f.config.AnthropicModel
	}
	return anthropic.NewClient(anthropic.Config{
		APIKey:            apiKey,
		Model:             model,
		MaxTokens:         f.config.MaxTokens,
		Temperature:       f.config.Temperature,
		Timeout:           time.Duration(f.config.Timeout) * time.Second,
		RateLimiterConfig: f.config.RateLimiter,
	})
}

func (f *ProviderFactory) createOpenAI(model string) (types.LLMProvider, error) {
	apiKey := f.config.OpenAIAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = f.config.OpenAIModel
	}
	return openai.NewClient(openai.Config{
		APIKey:            apiKey,
		Model:             model,
		MaxTokens:         f.config.MaxTokens,
		Temperature:       f.config.Temperature,
		Timeout:           time.Duration(f.config.Timeout) * time.Second,
		RateLimiterConfig: f.config.RateLimiter,
	})
}

func (f *ProviderFactory) createOllama(model string) (types.LLMProvider, error) {
	endpoint := f.config.OllamaEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OLLAMA_ENDPOINT")
	}
	if model == "" {
		model = f.config.OllamaModel
	}
	return ollama.NewClient(ollama.Config{
		Endpoint:          endpoint,
		Model:             model,
		MaxTokens:         f.config.MaxTokens,
		Temperature:       f.config.Temperature,
		Timeout:           time.Duration(f.config.Timeout) * time.Second,
		ToolMode:          ollama.ToolMode(f.config.OllamaToolMode),
		RateLimiterConfig: f.config.RateLimiter,
	})
}

func (f *ProviderFactory) createBedrock(model string) (types.LLMProvider, error) {
	if model == "" {
		model = f.config.BedrockModelID
	}
	return bedrock.NewClient(bedrock.Config{
		Region:            f.config.BedrockRegion,
		AccessKeyID:       f.config.BedrockAccessKeyID,
		SecretAccessKey:   f.config.BedrockSecretAccessKey,
		SessionToken:      f.config.BedrockSessionToken,
		Profile:           f.config.BedrockProfile,
		ModelID:           model,
		MaxTokens:         f.config.MaxTokens,
		Temperature:       f.config.Temperature,
		RateLimiterConfig: f.config.RateLimiter,
	})
}
