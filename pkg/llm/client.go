// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llm provides a uniform streaming chat interface over upstream
// model providers, including the bounded tool-use loop that lets the model
// mutate the canvas.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/easel/internal/log"
	"github.com/teradata-labs/easel/pkg/hub"
	"github.com/teradata-labs/easel/pkg/narrator"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

// DefaultMaxIterations bounds tool-call round-trips per request when the
// caller does not configure a ceiling.
const DefaultMaxIterations = 10

// EventSink is where streamed output goes. *hub.Hub satisfies it.
type EventSink interface {
	Send(id string, event hub.Event)
}

// StreamRequest bundles everything one streaming tool-loop invocation needs.
type StreamRequest struct {
	// Sink receives text deltas, narration, and terminal events.
	Sink EventSink

	// ConnectionID addresses the originating client in the sink.
	ConnectionID string

	// BoardID identifies the board this request operates on. Carried for
	// logging; the tools themselves are already bound to a board.
	BoardID string

	// SystemPrompt is sent as the system message.
	SystemPrompt string

	// Messages is the conversation history, oldest first.
	Messages []types.Message

	// ThinkingEnabled requests extended thinking from capable providers.
	ThinkingEnabled bool

	// Narrator converts loop events into status lines. Optional; when nil
	// no narration events are emitted.
	Narrator *narrator.Narrator
}

// StreamResult is the outcome of a streaming tool-loop invocation.
type StreamResult struct {
	// Text is the final assistant answer. When Truncated is set it is the
	// best available partial text instead.
	Text string

	// Usage is the token usage accumulated across every model call the
	// loop made.
	Usage types.Usage

	// Truncated reports that the iteration ceiling terminated the loop
	// before the model produced a final answer.
	Truncated bool
}

// Client is the uniform chat surface over one upstream provider. It is
// stateless across requests except for static configuration and may be
// reused concurrently.
type Client struct {
	provider      types.StreamingLLMProvider
	registry      *palette.Registry
	maxIterations int
	limiter       *RateLimiter
	retry         RetryConfig
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithRateLimiter paces upstream calls through the given limiter.
func WithRateLimiter(limiter *RateLimiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// NewClient wraps a provider with the tool loop. maxIterations bounds
// tool-call round-trips per request; values <= 0 fall back to
// DefaultMaxIterations. The registry is the tool catalog exposed to the
// model; it may be empty but not nil.
func NewClient(provider types.StreamingLLMProvider, registry *palette.Registry, maxIterations int, opts ...ClientOption) *Client {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	c := &Client{
		provider:      provider,
		registry:      registry,
		maxIterations: maxIterations,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the wrapped provider.
func (c *Client) Provider() types.LLMProvider {
	return c.provider
}

// Chat sends one non-streaming request without tools and returns the
// assistant's text.
func (c *Client) Chat(ctx context.Context, systemPrompt string, messages []types.Message) (string, error) {
	msgs := withSystemPrompt(systemPrompt, messages)

	var resp *types.LLMResponse
	err := c.retryCall(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.provider.Chat(ctx, msgs, nil, types.ChatOptions{})
		return callErr
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ChatStream streams one request without tools, pushing each text delta to
// the sink as it arrives. Returns the fully assembled text.
func (c *Client) ChatStream(ctx context.Context, sink EventSink, connectionID, boardID, systemPrompt string, messages []types.Message, thinkingEnabled bool) (string, error) {
	msgs := withSystemPrompt(systemPrompt, messages)
	opts := types.ChatOptions{ThinkingEnabled: thinkingEnabled}

	var resp *types.LLMResponse
	err := c.call(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.provider.ChatStream(ctx, msgs, nil, opts, func(token string) {
			sink.Send(connectionID, hub.TextDelta(token))
		})
		return callErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		sink.Send(connectionID, hub.ErrorEvent("provider_error"))
		return "", err
	}
	return resp.Content, nil
}

// ChatStreamWithUsage runs the full tool loop with token accounting:
// model call, tool execution, narration, repeat, until the model answers
// without tool calls or the iteration ceiling is hit.
//
// On ceiling termination the partial result is returned together with a
// *MaxIterationsError; callers should treat the text as usable.
func (c *Client) ChatStreamWithUsage(ctx context.Context, req StreamRequest) (*StreamResult, error) {
	msgs := withSystemPrompt(req.SystemPrompt, req.Messages)
	opts := types.ChatOptions{ThinkingEnabled: req.ThinkingEnabled}
	tools := c.registry.ListTools()

	var total types.Usage
	var partial string

	for iteration := 1; iteration <= c.maxIterations; iteration++ {
		if req.Narrator != nil {
			req.Sink.Send(req.ConnectionID, hub.Narration(req.Narrator.OnIterationAdvanced()))
		}

		var resp *types.LLMResponse
		err := c.call(ctx, func(ctx context.Context) error {
			var callErr error
			resp, callErr = c.provider.ChatStream(ctx, msgs, tools, opts, func(token string) {
				req.Sink.Send(req.ConnectionID, hub.TextDelta(token))
			})
			return callErr
		})
		if err != nil {
			// On cancellation the request just unwinds: no completion
			// event, no error event.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			req.Sink.Send(req.ConnectionID, hub.ErrorEvent("provider_error"))
			return nil, err
		}

		total.Add(resp.Usage)
		if resp.Content != "" {
			partial += resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			result := &StreamResult{Text: resp.Content, Usage: total}
			req.Sink.Send(req.ConnectionID, hub.Completion(result.Text, total))
			return result, nil
		}

		msgs = append(msgs, types.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			if req.Narrator != nil {
				req.Sink.Send(req.ConnectionID, hub.Narration(req.Narrator.OnToolInvoked(call.Name, call.Input)))
			}
			msgs = append(msgs, types.Message{
				Role:       "tool",
				ToolUseID:  call.ID,
				ToolResult: c.executeTool(ctx, call),
			})
		}

		log.Debug("tool loop iteration complete",
			zap.String("board_id", req.BoardID),
			zap.String("connection_id", req.ConnectionID),
			zap.Int("iteration", iteration),
			zap.Int("tool_calls", len(resp.ToolCalls)))
	}

	// Ceiling hit: surface the condition but keep the partial answer.
	result := &StreamResult{Text: partial, Usage: total, Truncated: true}
	req.Sink.Send(req.ConnectionID, hub.Completion(partial, total))
	return result, &MaxIterationsError{Iterations: c.maxIterations, PartialText: partial}
}

// executeTool resolves and runs one tool call. An unresolvable name or a
// failed execution produces an error-flavored result instead of aborting
// the request, so the model can recover.
func (c *Client) executeTool(ctx context.Context, call types.ToolCall) *palette.Result {
	tool, ok := c.registry.Get(call.Name)
	if !ok {
		resolveErr := &ToolResolutionError{ToolName: call.Name}
		log.Warn("model requested unknown tool", zap.String("tool", call.Name))
		return &palette.Result{
			Success: false,
			Error: &palette.Error{
				Code:       "TOOL_NOT_FOUND",
				Message:    resolveErr.Error(),
				Suggestion: fmt.Sprintf("Use one of the available tools: %v", c.registry.List()),
			},
		}
	}

	if err := palette.ValidateInput(tool, call.Input); err != nil {
		return &palette.Result{
			Success: false,
			Error: &palette.Error{
				Code:    "INVALID_PARAMS",
				Message: err.Error(),
			},
		}
	}

	result, err := tool.Execute(ctx, call.Input)
	if err != nil {
		return &palette.Result{
			Success: false,
			Error: &palette.Error{
				Code:      "EXECUTION_FAILED",
				Message:   err.Error(),
				Retryable: true,
			},
		}
	}
	return result
}

func (c *Client) call(ctx context.Context, fn func(context.Context) error) error {
	if c.limiter != nil {
		return c.limiter.Do(ctx, fn)
	}
	return fn(ctx)
}

// withSystemPrompt prepends the system message without mutating the
// caller's history slice.
func withSystemPrompt(systemPrompt string, messages []types.Message) []types.Message {
	if systemPrompt == "" {
		out := make([]types.Message, len(messages))
		copy(out, messages)
		return out
	}
	out := make([]types.Message, 0, len(messages)+1)
	out = append(out, types.Message{Role: "system", Content: systemPrompt})
	out = append(out, messages...)
	return out
}
