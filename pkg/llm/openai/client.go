// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package openai implements the provider interface for OpenAI's chat
// completions API and compatible endpoints.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

const (
	// DefaultModel is the default OpenAI model.
	DefaultModel = "gpt-4.1"
	// DefaultEndpoint is the default chat completions endpoint.
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 120 * time.Second
	// DefaultMaxTokens is the default maximum output tokens per request.
	DefaultMaxTokens = 4096
	// DefaultTemperature is the default sampling temperature.
	DefaultTemperature = 1.0
)

// Client implements the provider interface for OpenAI's API.
type Client struct {
	apiKey      string
	model       string
	endpoint    string
	httpClient  *http.Client
	maxTokens   int
	temperature float64
	rateLimiter *llm.RateLimiter
}

// Config holds configuration for the OpenAI client.
type Config struct {
	APIKey            string
	Model             string        // Default: gpt-4.1
	Endpoint          string        // Default: https://api.openai.com/v1/chat/completions
	Timeout           time.Duration // Default: 120s
	MaxTokens         int           // Default: 4096
	Temperature       float64       // Default: 1.0
	RateLimiterConfig llm.RateLimiterConfig
}

// NewClient creates a new OpenAI client. The API key is required.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, &llm.ConfigurationError{Provider: "openai", Reason: "api key is required"}
	}
	if config.Model == "" {
		if envModel := os.Getenv("OPENAI_DEFAULT_MODEL"); envModel != "" {
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
	return "openai"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends a conversation to OpenAI and returns the response.
// Extended thinking has no chat-completions equivalent and is ignored.
func (c *Client) Chat(ctx context.Context, messages []types.Message, tools []palette.Tool, _ types.ChatOptions) (*types.LLMResponse, error) {
	nameMap := llm.ToolNameMap(tools)
	req := &ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if apiTools := convertTools(tools); len(apiTools) > 0 {
		req.Tools = apiTools
		req.ToolChoice = "auto"
	}

	resp, err := c.callAPI(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.convertResponse(resp, nameMap), nil
}

// ChatStream streams tokens via the chat completions API with stream=true.
func (c *Client) ChatStream(ctx context.Context, messages []types.Message, tools []palette.Tool,
	_ types.ChatOptions, tokenCallback types.TokenCallback) (*types.LLMResponse, error) {

	nameMap := llm.ToolNameMap(tools)
	req := &ChatCompletionRequest{
		Model:         c.model,
		Messages:      convertMessages(messages),
		MaxTokens:     c.maxTokens,
		Temperature:   c.temperature,
		Stream:        true,
		StreamOptions: &StreamOptions{IncludeUsage: true},
	}
	if apiTools := convertTools(tools); len(apiTools) > 0 {
		req.Tools = apiTools
		req.ToolChoice = "auto"
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
			Provider:   "openai",
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	return c.readStream(ctx, httpResp.Body, nameMap, tokenCallback)
}

// readStream processes the SSE stream into a response.
func (c *Client) readStream(ctx context.Context, r io.Reader, nameMap map[string]string,
	tokenCallback types.TokenCallback) (*types.LLMResponse, error) {

	var contentBuffer strings.Builder
	usage := types.Usage{}
	var finishReason string
	tokenCount := 0
	// Tool calls stream in fragments keyed by index; arguments accumulate
	// as strings and are parsed once the stream ends.
	type pendingCall struct {
		id   string
		name string
		args strings.Builder
	}
	pending := make(map[int]*pendingCall)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		jsonData := strings.TrimPrefix(line, "data: ")
		if jsonData == "[DONE]" {
			break
		}

		var chunk ChatCompletionStreamChunk
		if err := json.Unmarshal([]byte(jsonData), &chunk); err != nil {
			// Skip malformed chunks but continue processing
			continue
		}

		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]

			if str, ok := choice.Delta.Content.(string); ok && str != "" {
				contentBuffer.WriteString(str)
				tokenCount++
				if tokenCallback != nil {
					tokenCallback(str)
				}
			}

			for _, tcDelta := range choice.Delta.ToolCalls {
				pc, exists := pending[tcDelta.Index]
				if !exists {
					pc = &pendingCall{id: tcDelta.ID, name: tcDelta.Function.Name}
					pending[tcDelta.Index] = pc
				}
				if tcDelta.ID != "" {
					pc.id = tcDelta.ID
				}
				if tcDelta.Function.Name != "" {
					pc.name = tcDelta.Function.Name
				}
				pc.args.WriteString(tcDelta.Function.Arguments)
			}

			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}

		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
			usage.TotalTokens = chunk.Usage.TotalTokens
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &llm.ProviderError{Provider: "openai", Message: "error reading stream", Err: err}
	}

	// Assemble tool calls in index order so multi-call responses stay stable.
	indices := make([]int, 0, len(pending))
	for idx := range pending {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	var toolCalls []types.ToolCall
	for _, idx := range indices {
		pc := pending[idx]
		input := map[string]interface{}{}
		if args := pc.args.String(); args != "" {
			if err := json.Unmarshal([]byte(args), &input); err != nil {
				input = map[string]interface{}{"_raw": args}
			}
		}
		toolCalls = append(toolCalls, types.ToolCall{
			ID:    pc.id,
			Name:  llm.ReverseToolName(nameMap, pc.name),
			Input: input,
		})
	}

	if usage.TotalTokens == 0 {
		usage.OutputTokens = tokenCount
		usage.TotalTokens = tokenCount // input tokens unavailable without stream usage
	}
	usage.CostUSD = c.calculateCost(usage.InputTokens, usage.OutputTokens)

	return &types.LLMResponse{
		Content:    contentBuffer.String(),
		StopReason: mapFinishReason(finishReason),
		Usage:      usage,
		ToolCalls:  toolCalls,
		Metadata: map[string]interface{}{
			"model":         c.model,
			"finish_reason": finishReason,
			"streaming":     true,
		},
	}, nil
}

// callAPI makes the non-streaming HTTP request.
func (c *Client) callAPI(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
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
		return nil, &llm.ProviderError{Provider: "openai", Message: "failed to read response", Err: err}
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return nil, &llm.ProviderError{Provider: "openai", StatusCode: httpResp.StatusCode, Message: string(respBody)}
		}
		return nil, &llm.ProviderError{Provider: "openai", Message: "failed to unmarshal response", Err: err}
	}
	if resp.Error != nil {
		return nil, &llm.ProviderError{
			Provider:   "openai",
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("%s (type: %s)", resp.Error.Message, resp.Error.Type),
		}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &llm.ProviderError{Provider: "openai", StatusCode: httpResp.StatusCode, Message: string(respBody)}
	}
	return &resp, nil
}

// send issues the HTTP request, pacing through the rate limiter when one is
// configured.
func (c *Client) send(ctx context.Context, body []byte) (*http.Response, error) {
	attempt := func(ctx context.Context) (*http.Response, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			return nil, &llm.ProviderError{Provider: "openai", Message: "HTTP request failed", Err: err}
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
		return nil, &llm.ProviderError{Provider: "openai", Message: "HTTP request failed", Err: err}
	}
	return resp, nil
}

// convertMessages converts conversation messages to OpenAI format.
func convertMessages(messages []types.Message) []ChatMessage {
	var apiMessages []ChatMessage

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			apiMessages = append(apiMessages, ChatMessage{Role: "system", Content: msg.Content})

		case "user":
			if len(msg.ContentBlocks) > 0 {
				var content []map[string]interface{}
				for _, block := range msg.ContentBlocks {
					switch block.Type {
					case "text":
						content = append(content, map[string]interface{}{
							"type": "text",
							"text": block.Text,
						})
					case "image":
						if block.Image != nil {
							var imageURL string
							if block.Image.Source.Type == "base64" {
								imageURL = fmt.Sprintf("data:%s;base64,%s",
									block.Image.Source.MediaType,
									block.Image.Source.Data)
							} else {
								imageURL = block.Image.Source.URL
							}
							content = append(content, map[string]interface{}{
								"type":      "image_url",
								"image_url": map[string]interface{}{"url": imageURL},
							})
						}
					}
				}
				apiMessages = append(apiMessages, ChatMessage{Role: "user", Content: content})
			} else {
				apiMessages = append(apiMessages, ChatMessage{Role: "user", Content: msg.Content})
			}

		case "assistant":
			apiMsg := ChatMessage{Role: "assistant"}
			if msg.Content != "" {
				apiMsg.Content = msg.Content
			}
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Input)
				if err != nil {
					argsJSON = []byte("{}")
				}
				apiMsg.ToolCalls = append(apiMsg.ToolCalls, ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      llm.SanitizeToolName(tc.Name),
						Arguments: string(argsJSON),
					},
				})
			}
			apiMessages = append(apiMessages, apiMsg)

		case "tool":
			apiMessages = append(apiMessages, ChatMessage{
				Role:       "tool",
				Content:    toolResultContent(msg),
				ToolCallID: msg.ToolUseID,
			})
		}
	}

	return apiMessages
}

// toolResultContent serializes a tool-role message for the tool message
// content field.
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

// convertTools converts palette tools to OpenAI function definitions.
// The caller holds the reverse name mapping from llm.ToolNameMap.
func convertTools(tools []palette.Tool) []Tool {
	var apiTools []Tool

	for _, tool := range tools {
		apiTool := Tool{
			Type: "function",
			Function: FunctionDef{
				Name:        llm.SanitizeToolName(tool.Name()),
				Description: tool.Description(),
			},
		}
		if schema := palette.NormalizeSchema(tool.InputSchema()); schema != nil {
			params := map[string]interface{}{"type": schema.Type}
			if schema.Properties != nil {
				params["properties"] = convertSchemaProperties(schema.Properties)
			}
			if len(schema.Required) > 0 {
				params["required"] = schema.Required
			}
			apiTool.Function.Parameters = params
		}
		apiTools = append(apiTools, apiTool)
	}
	return apiTools
}

// convertSchemaProperties converts JSONSchema properties to wire format.
func convertSchemaProperties(props map[string]*palette.JSONSchema) map[string]interface{} {
	if props == nil {
		return nil
	}
	result := make(map[string]interface{})
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
			itemMap := map[string]interface{}{"type": schema.Items.Type}
			if schema.Items.Description != "" {
				itemMap["description"] = schema.Items.Description
			}
			propMap["items"] = itemMap
		}
		result[key] = propMap
	}
	return result
}

// convertResponse converts an OpenAI response to the shared format.
func (c *Client) convertResponse(resp *ChatCompletionResponse, nameMap map[string]string) *types.LLMResponse {
	llmResp := &types.LLMResponse{
		Usage: types.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
			CostUSD:      c.calculateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		},
		Metadata: map[string]interface{}{
			"model": resp.Model,
		},
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		llmResp.StopReason = mapFinishReason(choice.FinishReason)
		llmResp.Metadata["finish_reason"] = choice.FinishReason

		if str, ok := choice.Message.Content.(string); ok {
			llmResp.Content = str
		}
		for _, tc := range choice.Message.ToolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				input = map[string]interface{}{"_raw": tc.Function.Arguments}
			}
			llmResp.ToolCalls = append(llmResp.ToolCalls, types.ToolCall{
				ID:    tc.ID,
				Name:  llm.ReverseToolName(nameMap, tc.Function.Name),
				Input: input,
			})
		}
	}
	return llmResp
}

// mapFinishReason maps OpenAI finish reasons to the shared stop reasons.
func mapFinishReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls", "function_call":
		return "tool_use"
	case "content_filter":
		return "content_filter"
	default:
		return finishReason
	}
}

// calculateCost estimates the cost in USD based on token usage.
func (c *Client) calculateCost(inputTokens, outputTokens int) float64 {
	// Pricing per million tokens
	var inputCostPerM, outputCostPerM float64

	switch c.model {
	case "gpt-4.1":
		inputCostPerM = 2.00
		outputCostPerM = 8.00
	case "gpt-4.1-mini":
		inputCostPerM = 0.40
		outputCostPerM = 1.60
	case "gpt-4o":
		inputCostPerM = 2.50
		outputCostPerM = 10.00
	case "gpt-4o-mini":
		inputCostPerM = 0.15
		outputCostPerM = 0.60
	default:
		inputCostPerM = 2.50
		outputCostPerM = 10.00
	}

	return float64(inputTokens)*inputCostPerM/1_000_000 +
		float64(outputTokens)*outputCostPerM/1_000_000
}

// Ensure Client implements the provider interfaces.
var (
	_ types.LLMProvider          = (*Client)(nil)
	_ types.StreamingLLMProvider = (*Client)(nil)
)
