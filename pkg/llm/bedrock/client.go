// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package bedrock implements the provider interface for Claude models
// hosted on AWS Bedrock, using the Anthropic SDK with the Bedrock
// backend so AWS request signing stays out of this package.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

const (
	// DefaultModelID uses Claude Sonnet 4.5 through the cross-region
	// inference profile (us.* prefix).
	DefaultModelID = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	// DefaultRegion is the default AWS region.
	DefaultRegion = "us-west-2"
	// DefaultMaxTokens is the default maximum output tokens per request.
	DefaultMaxTokens = 4096
	// DefaultTemperature is the default sampling temperature.
	DefaultTemperature = 1.0
	// DefaultThinkingBudget is the token budget for extended thinking.
	DefaultThinkingBudget = 2048
)

// Client implements the provider interface for AWS Bedrock.
type Client struct {
	client      anthropicsdk.Client
	modelID     string
	region      string
	maxTokens   int64
	temperature float64
	rateLimiter *llm.RateLimiter
}

// Config holds configuration for the Bedrock client. Credentials resolve
// in order: explicit keys, named profile, then the default AWS chain
// (IAM role, env vars, shared config).
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string

	ModelID     string
	MaxTokens   int
	Temperature float64

	RateLimiterConfig llm.RateLimiterConfig
}

// NewClient creates a new Bedrock client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ModelID == "" {
		if envModel := os.Getenv("AWS_BEDROCK_MODEL_ID"); envModel != "" {
			cfg.ModelID = envModel
		} else {
			cfg.ModelID = DefaultModelID
		}
	}
	if cfg.Region == "" {
		if envRegion := os.Getenv("AWS_DEFAULT_REGION"); envRegion != "" {
			cfg.Region = envRegion
		} else {
			cfg.Region = DefaultRegion
		}
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	var awsCfg aws.Config
	var err error
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	case cfg.Profile != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.Profile),
		)
	default:
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, &llm.ConfigurationError{
			Provider: "bedrock",
			Reason:   fmt.Sprintf("failed to load AWS config: %v", err),
		}
	}

	var rateLimiter *llm.RateLimiter
	if cfg.RateLimiterConfig.Enabled {
		rateLimiter = llm.NewRateLimiter(cfg.RateLimiterConfig)
	}

	return &Client{
		client:      anthropicsdk.NewClient(bedrock.WithConfig(awsCfg)),
		modelID:     cfg.ModelID,
		region:      cfg.Region,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		rateLimiter: rateLimiter,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "bedrock"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.modelID
}

// Chat sends a conversation to Bedrock and returns the response.
func (c *Client) Chat(ctx context.Context, messages []types.Message, tools []palette.Tool, opts types.ChatOptions) (*types.LLMResponse, error) {
	nameMap := llm.ToolNameMap(tools)
	params, err := c.buildParams(messages, tools, opts)
	if err != nil {
		return nil, err
	}

	var message *anthropicsdk.Message
	call := func(ctx context.Context) error {
		var callErr error
		message, callErr = c.client.Messages.New(ctx, params)
		return callErr
	}
	if c.rateLimiter != nil {
		err = c.rateLimiter.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, &llm.ProviderError{Provider: "bedrock", Message: "invocation failed", Err: err}
	}

	return c.convertResponse(message, nameMap), nil
}

// ChatStream streams tokens from Bedrock. The stream is consumed
// synchronously, so the rate limiter only paces the connection setup.
func (c *Client) ChatStream(ctx context.Context, messages []types.Message, tools []palette.Tool,
	opts types.ChatOptions, tokenCallback types.TokenCallback) (*types.LLMResponse, error) {

	nameMap := llm.ToolNameMap(tools)
	params, err := c.buildParams(messages, tools, opts)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)

	var contentBuffer strings.Builder
	var thinkingBuffer strings.Builder
	var toolCalls []types.ToolCall
	var usage types.Usage
	var stopReason string
	var messageID string

	// Tool inputs stream as partial JSON keyed by content block index.
	inputBuffers := make(map[int64]*strings.Builder)
	blockToCall := make(map[int64]int)

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			messageID = event.Message.ID
			usage.InputTokens = int(event.Message.Usage.InputTokens)

		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				blockToCall[event.Index] = len(toolCalls)
				toolCalls = append(toolCalls, types.ToolCall{
					ID:    event.ContentBlock.ID,
					Name:  llm.ReverseToolName(nameMap, event.ContentBlock.Name),
					Input: map[string]interface{}{},
				})
				inputBuffers[event.Index] = &strings.Builder{}
			}

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					contentBuffer.WriteString(event.Delta.Text)
					if tokenCallback != nil {
						tokenCallback(event.Delta.Text)
					}
				}
			case "thinking_delta":
				thinkingBuffer.WriteString(event.Delta.Thinking)
			case "input_json_delta":
				if buf, ok := inputBuffers[event.Index]; ok {
					buf.WriteString(event.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if buf, ok := inputBuffers[event.Index]; ok && buf.Len() > 0 {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(buf.String()), &input); err == nil {
					if idx, ok := blockToCall[event.Index]; ok && idx < len(toolCalls) {
						toolCalls[idx].Input = input
					}
				}
				delete(inputBuffers, event.Index)
			}

		case "message_delta":
			if event.Delta.StopReason != "" {
				stopReason = string(event.Delta.StopReason)
			}
			if event.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(event.Usage.OutputTokens)
			}
		}
	}

	if err := stream.Err(); err != nil && err != io.EOF {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &llm.ProviderError{Provider: "bedrock", Message: "stream error", Err: err}
	}

	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	usage.CostUSD = c.calculateCost(usage.InputTokens, usage.OutputTokens)

	return &types.LLMResponse{
		Content:    contentBuffer.String(),
		Thinking:   thinkingBuffer.String(),
		StopReason: stopReason,
		Usage:      usage,
		ToolCalls:  toolCalls,
		Metadata: map[string]interface{}{
			"model":       c.modelID,
			"region":      c.region,
			"message_id":  messageID,
			"stop_reason": stopReason,
			"streaming":   true,
		},
	}, nil
}

// buildParams assembles the SDK request from conversation messages.
func (c *Client) buildParams(messages []types.Message, tools []palette.Tool,
	opts types.ChatOptions) (anthropicsdk.MessageNewParams, error) {

	systemPrompt, sdkMessages := convertMessages(messages)
	if len(sdkMessages) == 0 {
		return anthropicsdk.MessageNewParams{}, &llm.ProviderError{
			Provider: "bedrock",
			Message:  "no valid messages to send",
		}
	}

	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(c.modelID),
		Messages:    sdkMessages,
		MaxTokens:   c.maxTokens,
		Temperature: anthropicsdk.Float(c.temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		sdkTools := convertTools(tools)
		toolUnions := make([]anthropicsdk.ToolUnionParam, len(sdkTools))
		for i := range sdkTools {
			toolUnions[i] = anthropicsdk.ToolUnionParam{OfTool: &sdkTools[i]}
		}
		params.Tools = toolUnions
	}
	if opts.ThinkingEnabled {
		params.Thinking = anthropicsdk.ThinkingConfigParamOfEnabled(DefaultThinkingBudget)
		// Extended thinking requires the default temperature.
		params.Temperature = anthropicsdk.Float(1.0)
	}
	return params, nil
}

// convertMessages converts conversation messages to the SDK format.
// Returns the combined system prompt and the API messages.
func convertMessages(messages []types.Message) (string, []anthropicsdk.MessageParam) {
	var systemPrompts []string
	var sdkMessages []anthropicsdk.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if msg.Content != "" {
				systemPrompts = append(systemPrompts, msg.Content)
			}

		case "user":
			if len(msg.ContentBlocks) > 0 {
				var content []anthropicsdk.ContentBlockParamUnion
				for _, block := range msg.ContentBlocks {
					switch block.Type {
					case "text":
						if block.Text != "" {
							content = append(content, anthropicsdk.NewTextBlock(block.Text))
						}
					case "image":
						if block.Image != nil && block.Image.Source.Type == "base64" {
							content = append(content, anthropicsdk.NewImageBlockBase64(
								block.Image.Source.MediaType,
								block.Image.Source.Data,
							))
						}
					}
				}
				if len(content) > 0 {
					sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(content...))
				}
			} else if msg.Content != "" {
				sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(
					anthropicsdk.NewTextBlock(msg.Content),
				))
			}

		case "assistant":
			var content []anthropicsdk.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropicsdk.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				// Bedrock rejects null tool input with a ValidationException.
				var input interface{} = map[string]interface{}{}
				if tc.Input != nil {
					input = tc.Input
				}
				content = append(content, anthropicsdk.NewToolUseBlock(tc.ID, input, llm.SanitizeToolName(tc.Name)))
			}
			if len(content) > 0 {
				sdkMessages = append(sdkMessages, anthropicsdk.NewAssistantMessage(content...))
			}

		case "tool":
			isError := msg.ToolResult != nil && !msg.ToolResult.Success
			sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(
				anthropicsdk.NewToolResultBlock(msg.ToolUseID, toolResultContent(msg), isError),
			))
		}
	}

	return strings.Join(systemPrompts, "\n\n"), sdkMessages
}

// toolResultContent serializes a tool-role message for the result block.
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
		out := fmt.Sprintf("%s: %s", msg.ToolResult.Error.Code, msg.ToolResult.Error.Message)
		if msg.ToolResult.Error.Suggestion != "" {
			out += " (" + msg.ToolResult.Error.Suggestion + ")"
		}
		return out
	}
	return msg.Content
}

// convertTools converts palette tools to SDK tool params. The caller
// holds the reverse name mapping from llm.ToolNameMap.
func convertTools(tools []palette.Tool) []anthropicsdk.ToolParam {
	var sdkTools []anthropicsdk.ToolParam

	for _, tool := range tools {
		sdkTool := anthropicsdk.ToolParam{
			Name:        llm.SanitizeToolName(tool.Name()),
			Description: anthropicsdk.String(tool.Description()),
		}
		if schema := palette.NormalizeSchema(tool.InputSchema()); schema != nil {
			schemaMap := map[string]interface{}{
				"type":       schema.Type,
				"properties": schema.Properties,
				"required":   schema.Required,
			}
			schemaJSON, _ := json.Marshal(schemaMap)
			var inputSchema anthropicsdk.ToolInputSchemaParam
			_ = json.Unmarshal(schemaJSON, &inputSchema)
			sdkTool.InputSchema = inputSchema
		}
		sdkTools = append(sdkTools, sdkTool)
	}
	return sdkTools
}

// convertResponse converts an SDK response to the shared format.
func (c *Client) convertResponse(message *anthropicsdk.Message, nameMap map[string]string) *types.LLMResponse {
	llmResp := &types.LLMResponse{
		StopReason: string(message.StopReason),
		Usage: types.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
			CostUSD:      c.calculateCost(int(message.Usage.InputTokens), int(message.Usage.OutputTokens)),
		},
		Metadata: map[string]interface{}{
			"model":       c.modelID,
			"region":      c.region,
			"stop_reason": message.StopReason,
			"message_id":  message.ID,
		},
	}

	for _, block := range message.Content {
		switch block.Type {
		case "text":
			llmResp.Content += block.Text
		case "thinking":
			llmResp.Thinking += block.Thinking
		case "tool_use":
			var input map[string]interface{}
			if block.Input != nil {
				_ = json.Unmarshal(block.Input, &input)
			}
			if input == nil {
				input = map[string]interface{}{}
			}
			llmResp.ToolCalls = append(llmResp.ToolCalls, types.ToolCall{
				ID:    block.ID,
				Name:  llm.ReverseToolName(nameMap, block.Name),
				Input: input,
			})
		}
	}
	return llmResp
}

// calculateCost estimates cost for Bedrock Claude models.
func (c *Client) calculateCost(inputTokens, outputTokens int) float64 {
	var inputPricePerMillion, outputPricePerMillion float64

	switch {
	case strings.Contains(c.modelID, "claude-sonnet-4"):
		inputPricePerMillion = 3.0
		outputPricePerMillion = 15.0
	case strings.Contains(c.modelID, "claude-haiku-4"):
		inputPricePerMillion = 0.8
		outputPricePerMillion = 4.0
	case strings.Contains(c.modelID, "claude-opus-4"):
		inputPricePerMillion = 15.0
		outputPricePerMillion = 75.0
	default:
		inputPricePerMillion = 3.0
		outputPricePerMillion = 15.0
	}

	return float64(inputTokens)*inputPricePerMillion/1_000_000 +
		float64(outputTokens)*outputPricePerMillion/1_000_000
}

// Ensure Client implements the provider interfaces.
var (
	_ types.LLMProvider          = (*Client)(nil)
	_ types.StreamingLLMProvider = (*Client)(nil)
)
