// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package anthropic implements the provider interface for Anthropic's
// Claude Messages API.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

const (
	// DefaultModel is the default Claude model.
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultEndpoint is the default Anthropic API endpoint.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	// DefaultMaxTokens is the default maximum output tokens per request.
	DefaultMaxTokens = 4096
	// DefaultTemperature is the default sampling temperature.
	DefaultTemperature = 1.0
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 120 * time.Second
	// DefaultThinkingBudget is the thinking-token budget when extended
	// thinking is requested.
	DefaultThinkingBudget = 2048
)

// Client implements the provider interface for Anthropic's Claude API.
type Client struct {
	apiKey      string
	model       string
	endpoint    string
	httpClient  *http.Client
	maxTokens   int
	temperature float64
	rateLimiter *llm.RateLimiter
}

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey            string
	Model             string // Default: claude-sonnet-4-5-20250929
	Endpoint          string // Default: https://api.anthropic.com/v1/messages
	Timeout           time.Duration
	MaxTokens         int     // Default: 4096
	Temperature       float64 // Default: 1.0
	RateLimiterConfig llm.RateLimiterConfig
}

// NewClient creates a new Anthropic client. The API key is required.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, &llm.ConfigurationError{Provider: "anthropic", Reason: "api key is required"}
	}
	if config.Model == "" {
		if envModel := os.Getenv("ANTHROPIC_DEFAULT_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultModel
		}
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}

	var rateLimiter *llm.RateLimiter
	if config.RateLimiterConfig.Enabled {
		rateLimiter = llm.NewRateLimiter(config.RateLimiterConfig)
	}

	return &Client{
		apiKey:      config.APIKey,
		model:       config.Model,
		endpoint:    config.Endpoint,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		rateLimiter: rateLimiter,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "anthropic"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends a conversation to Claude and returns the response.
func (c *Client) Chat(ctx context.Context, messages []types.Message, tools []palette.Tool, opts types.ChatOptions) (*types.LLMResponse, error) {
	systemBlocks, apiMessages := convertMessages(messages)
	nameMap := llm.ToolNameMap(tools)
	apiTools := convertTools(tools)

	req := &MessagesRequest{
		Model:       c.model,
		Messages:    apiMessages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      systemBlocks,
		Tools:       apiTools,
	}
	applyThinking(req, opts)

	resp, err := c.callAPI(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.convertResponse(resp, nameMap), nil
}

// ChatStream streams tokens from Claude via the Messages API with
// stream=true, calling tokenCallback for each text delta.
func (c *Client) ChatStream(ctx context.Context, messages []types.Message, tools []palette.Tool,
	opts types.ChatOptions, tokenCallback types.TokenCallback) (*types.LLMResponse, error) {

	systemBlocks, apiMessages := convertMessages(messages)
	nameMap := llm.ToolNameMap(tools)
	apiTools := convertTools(tools)

	req := &MessagesRequest{
		Model:       c.model,
		Messages:    apiMessages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      systemBlocks,
		Tools:       apiTools,
		Stream:      true,
	}
	applyThinking(req, opts)

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
			Provider:   "anthropic",
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	return c.readStream(ctx, httpResp.Body, nameMap, tokenCallback)
}

// readStream processes the Server-Sent Events stream into a response.
func (c *Client) readStream(ctx context.Context, r io.Reader, nameMap map[string]string,
	tokenCallback types.TokenCallback) (*types.LLMResponse, error) {

	var contentBuffer strings.Builder
	var thinkingBuffer strings.Builder
	usage := types.Usage{}
	var stopReason string
	tokenCount := 0
	var toolCalls []types.ToolCall
	// Tool input JSON streams in fragments, keyed by content block index.
	toolInputBuffers := make(map[int]*strings.Builder)
	toolCallIndex := make(map[int]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		jsonData := strings.TrimPrefix(line, "data: ")

		var event StreamEvent
		if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
			// Skip malformed events but continue processing
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					contentBuffer.WriteString(event.Delta.Text)
					tokenCount++
					if tokenCallback != nil {
						tokenCallback(event.Delta.Text)
					}
				}
			case "thinking_delta":
				thinkingBuffer.WriteString(event.Delta.Thinking)
			case "input_json_delta":
				if buf, exists := toolInputBuffers[event.Index]; exists {
					buf.WriteString(event.Delta.PartialJSON)
				}
			}

		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				idx := len(toolCalls)
				toolCalls = append(toolCalls, types.ToolCall{
					ID:    event.ContentBlock.ID,
					Name:  llm.ReverseToolName(nameMap, event.ContentBlock.Name),
					Input: make(map[string]interface{}),
				})
				toolInputBuffers[event.Index] = &strings.Builder{}
				toolCallIndex[event.Index] = idx
			}

		case "content_block_stop":
			if buf, exists := toolInputBuffers[event.Index]; exists && buf.Len() > 0 {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(buf.String()), &input); err == nil {
					if idx, ok := toolCallIndex[event.Index]; ok && idx < len(toolCalls) {
						toolCalls[idx].Input = input
					}
				}
			}
			delete(toolInputBuffers, event.Index)
			delete(toolCallIndex, event.Index)

		case "message_start":
			if event.Message != nil && event.Message.Usage != nil {
				usage.InputTokens = event.Message.Usage.InputTokens
				usage.CacheReadTokens = event.Message.Usage.CacheReadInputTokens
				usage.CacheCreationTokens = event.Message.Usage.CacheCreationInputTokens
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				usage.OutputTokens = event.Usage.OutputTokens
			}

		case "error":
			if event.Error != nil {
				return nil, &llm.ProviderError{
					Provider: "anthropic",
					Message:  fmt.Sprintf("%s: %s", event.Error.Type, event.Error.Message),
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &llm.ProviderError{Provider: "anthropic", Message: "error reading stream", Err: err}
	}

	if usage.OutputTokens == 0 {
		usage.OutputTokens = tokenCount
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	usage.CostUSD = calculateCost(usage)

	return &types.LLMResponse{
		Content:    contentBuffer.String(),
		Thinking:   thinkingBuffer.String(),
		StopReason: stopReason,
		Usage:      usage,
		ToolCalls:  toolCalls,
		Metadata: map[string]interface{}{
			"model":       c.model,
			"stop_reason": stopReason,
			"streaming":   true,
		},
	}, nil
}

// callAPI makes the non-streaming HTTP request to the Messages API.
func (c *Client) callAPI(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error) {
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
		return nil, &llm.ProviderError{Provider: "anthropic", Message: "failed to read response", Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &llm.ProviderError{
			Provider:   "anthropic",
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &llm.ProviderError{Provider: "anthropic", Message: "failed to unmarshal response", Err: err}
	}
	return &resp, nil
}

// send issues the HTTP request, pacing through the rate limiter when one is
// configured. The request is rebuilt on each attempt so the body can be
// re-read on a 429 retry; a 429 response is converted to an error so the
// limiter's backoff fires.
func (c *Client) send(ctx context.Context, body []byte) (*http.Response, error) {
	attempt := func(ctx context.Context) (*http.Response, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("x-api-key", c.apiKey)
		r.Header.Set("anthropic-version", "2023-06-01")
		// Cached tokens don't count against Anthropic's ITPM rate limit
		r.Header.Set("anthropic-beta", "prompt-caching-2024-07-31")

		resp, err := c.httpClient.Do(r)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("API error (status 429): %s", string(respBody))
		}
		return resp, nil
	}

	if c.rateLimiter == nil {
		resp, err := attempt(ctx)
		if err != nil {
			return nil, &llm.ProviderError{Provider: "anthropic", Message: "HTTP request failed", Err: err}
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
		return nil, &llm.ProviderError{Provider: "anthropic", Message: "HTTP request failed", Err: err}
	}
	return resp, nil
}

// convertMessages converts conversation messages to Anthropic format.
// System messages are extracted into separate system blocks (the Messages
// API requires them outside the messages array) with cache_control on the
// last block so repeated prompts are cached.
func convertMessages(messages []types.Message) ([]TextBlockParam, []Message) {
	var systemPrompts []string
	var apiMessages []Message

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if msg.Content != "" {
				systemPrompts = append(systemPrompts, msg.Content)
			}

		case "user":
			if len(msg.ContentBlocks) > 0 {
				var content []ContentBlock
				for _, block := range msg.ContentBlocks {
					switch block.Type {
					case "text":
						content = append(content, ContentBlock{Type: "text", Text: block.Text})
					case "image":
						if block.Image != nil {
							content = append(content, ContentBlock{
								Type: "image",
								Source: &ImageSource{
									Type:      block.Image.Source.Type,
									MediaType: block.Image.Source.MediaType,
									Data:      block.Image.Source.Data,
									URL:       block.Image.Source.URL,
								},
							})
						}
					}
				}
				apiMessages = append(apiMessages, Message{Role: "user", Content: content})
			} else {
				apiMessages = append(apiMessages, Message{
					Role:    "user",
					Content: []ContentBlock{{Type: "text", Text: msg.Content}},
				})
			}

		case "assistant":
			var content []ContentBlock
			if msg.Content != "" {
				content = append(content, ContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Input
				if input == nil {
					input = map[string]interface{}{}
				}
				content = append(content, ContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  llm.SanitizeToolName(tc.Name),
					Input: input,
				})
			}
			if len(content) > 0 {
				apiMessages = append(apiMessages, Message{Role: "assistant", Content: content})
			}

		case "tool":
			apiMessages = append(apiMessages, Message{
				Role:    "user",
				Content: []ContentBlock{toolResultBlock(msg)},
			})
		}
	}

	if len(systemPrompts) == 0 {
		return nil, apiMessages
	}
	return []TextBlockParam{
		{
			Type:         "text",
			Text:         strings.Join(systemPrompts, "\n\n"),
			CacheControl: &CacheControl{Type: "ephemeral"},
		},
	}, apiMessages
}

// toolResultBlock serializes a tool-role message into a tool_result block.
func toolResultBlock(msg types.Message) ContentBlock {
	block := ContentBlock{
		Type:      "tool_result",
		ToolUseID: msg.ToolUseID,
		Content:   msg.Content,
	}
	if msg.ToolResult != nil {
		if msg.ToolResult.Success {
			if data, err := json.Marshal(msg.ToolResult.Data); err == nil {
				block.Content = string(data)
			}
		} else if msg.ToolResult.Error != nil {
			block.IsError = true
			block.Content = fmt.Sprintf("%s: %s", msg.ToolResult.Error.Code, msg.ToolResult.Error.Message)
			if msg.ToolResult.Error.Suggestion != "" {
				block.Content += " (" + msg.ToolResult.Error.Suggestion + ")"
			}
		}
	}
	return block
}

// convertTools converts palette tools to Anthropic format. Names are
// sanitized for API compatibility; the caller holds the reverse mapping
// from llm.ToolNameMap. The last tool is cache-marked so the whole tool
// list is cached.
func convertTools(tools []palette.Tool) []CacheableTool {
	var apiTools []CacheableTool

	for _, tool := range tools {
		apiTool := CacheableTool{
			Name:        llm.SanitizeToolName(tool.Name()),
			Description: tool.Description(),
		}
		if schema := palette.NormalizeSchema(tool.InputSchema()); schema != nil {
			apiTool.InputSchema = InputSchema{
				Type:       schema.Type,
				Properties: convertSchemaProperties(schema.Properties),
				Required:   schema.Required,
			}
		}
		apiTools = append(apiTools, apiTool)
	}

	if len(apiTools) > 0 {
		apiTools[len(apiTools)-1].CacheControl = &CacheControl{Type: "ephemeral"}
	}
	return apiTools
}

// convertSchemaProperties converts JSONSchema properties to wire format.
func convertSchemaProperties(props map[string]*palette.JSONSchema) map[string]map[string]interface{} {
	if props == nil {
		return nil
	}
	result := make(map[string]map[string]interface{})
	for key, schema := range props {
		propMap := map[string]interface{}{"type": schema.Type}
		if schema.Description != "" {
			propMap["description"] = schema.Description
		}
		if schema.Enum != nil {
			propMap["enum"] = schema.Enum
		}
		if schema.Default != nil {
			propMap["default"] = schema.Default
		}
		if schema.Properties != nil {
			propMap["properties"] = convertSchemaProperties(schema.Properties)
		}
		if schema.Items != nil {
			propMap["items"] = map[string]interface{}{"type": schema.Items.Type}
		}
		result[key] = propMap
	}
	return result
}

// convertResponse converts an Anthropic response to the shared format.
func (c *Client) convertResponse(resp *MessagesResponse, nameMap map[string]string) *types.LLMResponse {
	usage := types.Usage{
		InputTokens:         resp.Usage.InputTokens,
		OutputTokens:        resp.Usage.OutputTokens,
		TotalTokens:         resp.Usage.InputTokens + resp.Usage.OutputTokens,
		CacheReadTokens:     resp.Usage.CacheReadInputTokens,
		CacheCreationTokens: resp.Usage.CacheCreationInputTokens,
	}
	usage.CostUSD = calculateCost(usage)

	llmResp := &types.LLMResponse{
		StopReason: resp.StopReason,
		Usage:      usage,
		Metadata: map[string]interface{}{
			"model":       resp.Model,
			"stop_reason": resp.StopReason,
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			llmResp.Content += block.Text
		case "thinking":
			llmResp.Thinking += block.Thinking
		case "tool_use":
			llmResp.ToolCalls = append(llmResp.ToolCalls, types.ToolCall{
				ID:    block.ID,
				Name:  llm.ReverseToolName(nameMap, block.Name),
				Input: block.Input,
			})
		}
	}
	return llmResp
}

// applyThinking enables extended thinking when requested. The API requires
// temperature 1.0 when thinking is enabled.
func applyThinking(req *MessagesRequest, opts types.ChatOptions) {
	if !opts.ThinkingEnabled {
		return
	}
	req.Thinking = &ThinkingConfig{Type: "enabled", BudgetTokens: DefaultThinkingBudget}
	req.Temperature = 1.0
}

// calculateCost estimates the cost in USD based on token usage.
// Claude Sonnet pricing: $3/M input, $15/M output, cache write at 1.25x
// input, cache read at 0.10x input.
func calculateCost(usage types.Usage) float64 {
	inputCost := float64(usage.InputTokens) * 3.0 / 1_000_000
	outputCost := float64(usage.OutputTokens) * 15.0 / 1_000_000
	cacheWriteCost := float64(usage.CacheCreationTokens) * 3.75 / 1_000_000
	cacheReadCost := float64(usage.CacheReadTokens) * 0.30 / 1_000_000
	return inputCost + outputCost + cacheWriteCost + cacheReadCost
}

// Ensure Client implements the provider interfaces.
var (
	_ types.LLMProvider          = (*Client)(nil)
	_ types.StreamingLLMProvider = (*Client)(nil)
)
