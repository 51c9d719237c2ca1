// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package ollama implements the provider interface for locally hosted
// models served by Ollama's /api/chat endpoint.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

const (
	// DefaultEndpoint is the default Ollama server address.
	DefaultEndpoint = "http://localhost:11434"
	// DefaultModel is the default model.
	DefaultModel = "llama3.1"
	// DefaultTimeout is the default HTTP timeout. Local inference can be
	// slow on CPU-only hosts.
	DefaultTimeout = 120 * time.Second
	// DefaultTemperature is the default sampling temperature.
	DefaultTemperature = 0.8
)

// ToolMode controls how tool definitions reach the model.
type ToolMode string

const (
	// ToolModeAuto picks native tools when the model supports them,
	// prompt injection otherwise.
	ToolModeAuto ToolMode = "auto"
	// ToolModeNative always sends tools in the request body.
	ToolModeNative ToolMode = "native"
	// ToolModePrompt never sends native tools; tool results travel as
	// plain user messages.
	ToolModePrompt ToolMode = "prompt"
)

// toolSupportedModels maps model name prefixes to native tool support.
var toolSupportedModels = map[string]bool{
	"llama3.1":   true,
	"llama3.2":   true,
	"llama3.3":   true,
	"qwen2.5":    true,
	"qwen3":      true,
	"mistral":    true,
	"mixtral":    true,
	"command-r":  true,
	"granite3":   true,
	"deepseek-r": false,
	"gemma":      false,
	"phi":        false,
}

// Client implements the provider interface for Ollama.
type Client struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	toolMode    ToolMode
	httpClient  *http.Client
	rateLimiter *llm.RateLimiter
	counter     *llm.TokenCounter
}

// Config holds configuration for the Ollama client.
type Config struct {
	Endpoint          string        // Default: http://localhost:11434
	Model             string        // Default: llama3.1
	MaxTokens         int           // Default: model-dependent
	Temperature       float64       // Default: 0.8
	Timeout           time.Duration // Default: 120s
	ToolMode          ToolMode      // Default: auto
	RateLimiterConfig llm.RateLimiterConfig
}

// NewClient creates a new Ollama client. No API key is needed; the
// endpoint must point at a running Ollama server.
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultMaxTokens(config.Model)
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	switch config.ToolMode {
	case "":
		config.ToolMode = ToolModeAuto
	case ToolModeAuto, ToolModeNative, ToolModePrompt:
	default:
		return nil, &llm.ConfigurationError{
			Provider: "ollama",
			Reason:   fmt.Sprintf("unknown tool mode %q", config.ToolMode),
		}
	}

	var rateLimiter *llm.RateLimiter
	if config.RateLimiterConfig.Enabled {
		rateLimiter = llm.NewRateLimiter(config.RateLimiterConfig)
	}

	return &Client{
		endpoint:    strings.TrimSuffix(config.Endpoint, "/"),
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		toolMode:    config.ToolMode,
		rateLimiter: rateLimiter,
		counter:     llm.NewTokenCounter(),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// defaultMaxTokens picks an output budget appropriate for the model size.
func defaultMaxTokens(model string) int {
	switch {
	case strings.Contains(model, "70b"), strings.Contains(model, "72b"):
		return 8192
	case strings.Contains(model, "0.5b"), strings.Contains(model, "1b"),
		strings.Contains(model, "1.5b"), strings.Contains(model, "3b"):
		return 2048
	default:
		return 4096
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "ollama"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// supportsNativeTools reports whether tool definitions go in the request
// body for the configured model and tool mode.
func (c *Client) supportsNativeTools() bool {
	switch c.toolMode {
	case ToolModeNative:
		return true
	case ToolModePrompt:
		return false
	}
	for prefix, supported := range toolSupportedModels {
		if strings.HasPrefix(c.model, prefix) {
			return supported
		}
	}
	return false
}

// Chat sends a conversation to Ollama and returns the response.
// Extended thinking is not supported by the chat API and is ignored.
func (c *Client) Chat(ctx context.Context, messages []types.Message, tools []palette.Tool, _ types.ChatOptions) (*types.LLMResponse, error) {
	nameMap := llm.ToolNameMap(tools)
	req := chatRequest{
		Model:    c.model,
		Messages: c.convertMessages(messages),
		Stream:   false,
		Options: map[string]interface{}{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}
	if c.supportsNativeTools() && len(tools) > 0 {
		req.Tools = convertTools(tools)
	}

	resp, err := c.callAPI(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.convertResponse(resp, nameMap), nil
}

// ChatStream streams tokens from Ollama's newline-delimited JSON stream.
func (c *Client) ChatStream(ctx context.Context, messages []types.Message, tools []palette.Tool,
	_ types.ChatOptions, tokenCallback types.TokenCallback) (*types.LLMResponse, error) {

	nameMap := llm.ToolNameMap(tools)
	req := chatRequest{
		Model:    c.model,
		Messages: c.convertMessages(messages),
		Stream:   true,
		Options: map[string]interface{}{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}
	if c.supportsNativeTools() && len(tools) > 0 {
		req.Tools = convertTools(tools)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpResp, err := c.send(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, &llm.ProviderError{
			Provider:   "ollama",
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	var contentBuffer strings.Builder
	var toolCalls []types.ToolCall
	var final chatResponse

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var chunk chatResponse
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			// Skip malformed lines but continue processing
			continue
		}

		if chunk.Message.Content != "" {
			contentBuffer.WriteString(chunk.Message.Content)
			if tokenCallback != nil {
				tokenCallback(chunk.Message.Content)
			}
		}

		for _, tc := range chunk.Message.ToolCalls {
			toolCalls = append(toolCalls, types.ToolCall{
				ID:    tc.ID,
				Name:  llm.ReverseToolName(nameMap, tc.Function.Name),
				Input: parseArguments(tc.Function.Arguments),
			})
		}

		if chunk.Done {
			final = chunk
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &llm.ProviderError{Provider: "ollama", Message: "error reading stream", Err: err}
	}

	content := contentBuffer.String()
	usage := c.buildUsage(final, content)

	return &types.LLMResponse{
		Content:    content,
		ToolCalls:  toolCalls,
		StopReason: stopReason(toolCalls),
		Usage:      usage,
		Metadata: map[string]interface{}{
			"model":         c.model,
			"eval_duration": final.EvalDuration,
			"native_tools":  c.supportsNativeTools(),
			"tool_mode":     string(c.toolMode),
			"streaming":     true,
		},
	}, nil
}

// buildUsage prefers the eval counts Ollama reports in the final chunk,
// estimating output tokens locally when they are absent.
func (c *Client) buildUsage(final chatResponse, content string) types.Usage {
	usage := types.Usage{
		InputTokens:  final.PromptEvalCount,
		OutputTokens: final.EvalCount,
	}
	if usage.OutputTokens == 0 && content != "" {
		usage.OutputTokens = c.counter.CountTokens(content)
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	// Local inference carries no per-token cost.
	usage.CostUSD = 0
	return usage
}

// callAPI makes the non-streaming HTTP request to Ollama.
func (c *Client) callAPI(ctx context.Context, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpResp, err := c.send(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &llm.ProviderError{Provider: "ollama", Message: "failed to read response", Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &llm.ProviderError{
			Provider:   "ollama",
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &llm.ProviderError{Provider: "ollama", Message: "failed to unmarshal response", Err: err}
	}
	return &resp, nil
}

// send issues the HTTP request, pacing through the rate limiter when one
// is configured.
func (c *Client) send(ctx context.Context, body []byte) (*http.Response, error) {
	attempt := func(ctx context.Context) (*http.Response, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		r.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(r)
	}

	if c.rateLimiter == nil {
		resp, err := attempt(ctx)
		if err != nil {
			return nil, &llm.ProviderError{Provider: "ollama", Message: "HTTP request failed", Err: err}
		}
		return resp, nil
	}

	var resp *http.Response
	err := c.rateLimiter.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		resp, attemptErr = attempt(ctx)
		return attemptErr
	})
	if err != nil {
		return nil, &llm.ProviderError{Provider: "ollama", Message: "HTTP request failed", Err: err}
	}
	return resp, nil
}

// convertMessages converts conversation messages to Ollama format. When
// native tools are unavailable, tool results travel as user messages.
func (c *Client) convertMessages(messages []types.Message) []ollamaMessage {
	var apiMessages []ollamaMessage
	native := c.supportsNativeTools()

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			apiMessages = append(apiMessages, ollamaMessage{Role: "system", Content: msg.Content})

		case "user":
			apiMsg := ollamaMessage{Role: "user", Content: msg.Content}
			if len(msg.ContentBlocks) > 0 {
				var text strings.Builder
				for _, block := range msg.ContentBlocks {
					switch block.Type {
					case "text":
						if text.Len() > 0 {
							text.WriteString("\n")
						}
						text.WriteString(block.Text)
					case "image":
						if block.Image != nil && block.Image.Source.Type == "base64" {
							apiMsg.Images = append(apiMsg.Images, block.Image.Source.Data)
						}
					}
				}
				apiMsg.Content = text.String()
			}
			apiMessages = append(apiMessages, apiMsg)

		case "assistant":
			apiMsg := ollamaMessage{Role: "assistant", Content: msg.Content}
			if native {
				for _, tc := range msg.ToolCalls {
					apiMsg.ToolCalls = append(apiMsg.ToolCalls, ollamaToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: ollamaFunctionCall{
							Name:      llm.SanitizeToolName(tc.Name),
							Arguments: tc.Input,
						},
					})
				}
			}
			apiMessages = append(apiMessages, apiMsg)

		case "tool":
			content := toolResultContent(msg)
			if native {
				apiMessages = append(apiMessages, ollamaMessage{Role: "tool", Content: content})
			} else {
				apiMessages = append(apiMessages, ollamaMessage{
					Role:    "user",
					Content: "Tool result: " + content,
				})
			}
		}
	}
	return apiMessages
}

// toolResultContent serializes a tool-role message.
func toolResultContent(msg types.Message) string {
	if msg.ToolResult == nil {
		return msg.Content
	}
	if msg.ToolResult.Success {
		if data, err := json.Marshal(msg.ToolResult.Data); err == nil {
			return string(data)
		}
		return msg.Content
	}
	if msg.ToolResult.Error != nil {
		out := fmt.Sprintf("error %s: %s", msg.ToolResult.Error.Code, msg.ToolResult.Error.Message)
		if msg.ToolResult.Error.Suggestion != "" {
			out += " (" + msg.ToolResult.Error.Suggestion + ")"
		}
		return out
	}
	return msg.Content
}

// convertTools converts palette tools to Ollama function definitions.
// The caller holds the reverse name mapping from llm.ToolNameMap.
func convertTools(tools []palette.Tool) []ollamaTool {
	apiTools := make([]ollamaTool, 0, len(tools))
	for _, tool := range tools {
		apiTools = append(apiTools, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        llm.SanitizeToolName(tool.Name()),
				Description: tool.Description(),
				Parameters:  palette.NormalizeSchema(tool.InputSchema()),
			},
		})
	}
	return apiTools
}

// convertResponse converts an Ollama response to the shared format.
func (c *Client) convertResponse(resp *chatResponse, nameMap map[string]string) *types.LLMResponse {
	var toolCalls []types.ToolCall
	for _, tc := range resp.Message.ToolCalls {
		toolCalls = append(toolCalls, types.ToolCall{
			ID:    tc.ID,
			Name:  llm.ReverseToolName(nameMap, tc.Function.Name),
			Input: parseArguments(tc.Function.Arguments),
		})
	}

	return &types.LLMResponse{
		Content:    resp.Message.Content,
		ToolCalls:  toolCalls,
		StopReason: stopReason(toolCalls),
		Usage:      c.buildUsage(*resp, resp.Message.Content),
		Metadata: map[string]interface{}{
			"model":         resp.Model,
			"eval_duration": resp.EvalDuration,
			"native_tools":  c.supportsNativeTools(),
			"tool_mode":     string(c.toolMode),
		},
	}
}

// parseArguments normalizes tool-call arguments, which Ollama may send as
// a JSON object or a string, sometimes wrapped in markdown fences.
func parseArguments(args interface{}) map[string]interface{} {
	switch v := args.(type) {
	case map[string]interface{}:
		return v
	case string:
		cleaned := cleanJSONString(v)
		var params map[string]interface{}
		if err := json.Unmarshal([]byte(cleaned), &params); err != nil {
			return map[string]interface{}{}
		}
		return params
	default:
		return map[string]interface{}{}
	}
}

// cleanJSONString strips markdown code fences smaller models wrap around
// JSON arguments.
func cleanJSONString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func stopReason(toolCalls []types.ToolCall) string {
	if len(toolCalls) > 0 {
		return "tool_use"
	}
	return "end_turn"
}

// Ollama API types

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Tools    []ollamaTool           `json:"tools,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  *palette.JSONSchema `json:"parameters"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string      `json:"name"`
	Arguments interface{} `json:"arguments"`
}

type chatResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	TotalDuration   int64         `json:"total_duration"`
	LoadDuration    int64         `json:"load_duration"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	EvalDuration    int64         `json:"eval_duration"`
}

// Ensure Client implements the provider interfaces.
var (
	_ types.LLMProvider          = (*Client)(nil)
	_ types.StreamingLLMProvider = (*Client)(nil)
)
