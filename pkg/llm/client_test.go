// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/easel/pkg/hub"
	"github.com/teradata-labs/easel/pkg/narrator"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

// recordingSink captures every event routed to it.
type recordingSink struct {
	mu     sync.Mutex
	events []hub.Event
}

func (s *recordingSink) Send(_ string, event hub.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) byType(t hub.EventType) []hub.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []hub.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// scriptedProvider returns canned responses in order, one per call.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*types.LLMResponse
	errs      []error
	calls     int
	gotMsgs   [][]types.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []types.Message, tools []palette.Tool, opts types.ChatOptions) (*types.LLMResponse, error) {
	return p.ChatStream(ctx, messages, tools, opts, func(string) {})
}

func (p *scriptedProvider) ChatStream(ctx context.Context, messages []types.Message, _ []palette.Tool, _ types.ChatOptions, cb types.TokenCallback) (*types.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.gotMsgs = append(p.gotMsgs, append([]types.Message(nil), messages...))
	p.mu.Unlock()

	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	resp := p.responses[min(idx, len(p.responses)-1)]
	if resp.Content != "" {
		cb(resp.Content)
	}
	return resp, nil
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

// countingTool records executions.
type countingTool struct {
	mu       sync.Mutex
	name     string
	executed int
	lastArgs map[string]interface{}
}

func (t *countingTool) Name() string        { return t.name }
func (t *countingTool) Description() string { return "counting tool" }
func (t *countingTool) InputSchema() *palette.JSONSchema {
	return palette.NewObjectSchema("params", map[string]*palette.JSONSchema{
		"kind": palette.NewStringSchema("shape kind"),
	}, nil)
}
func (t *countingTool) Execute(_ context.Context, params map[string]interface{}) (*palette.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executed++
	t.lastArgs = params
	return &palette.Result{Success: true, Data: map[string]interface{}{"shape_id": "shape-1"}}, nil
}

func newTestRegistry(t *testing.T, tools ...palette.Tool) *palette.Registry {
	t.Helper()
	r := palette.NewRegistry()
	for _, tool := range tools {
		require.NoError(t, r.Register(tool))
	}
	return r
}

func streamReq(sink EventSink) StreamRequest {
	return StreamRequest{
		Sink:         sink,
		ConnectionID: "conn-1",
		BoardID:      "board-1",
		SystemPrompt: "You are a canvas assistant.",
		Messages:     []types.Message{{Role: "user", Content: "add a red rectangle"}},
		Narrator:     narrator.New(),
	}
}

func TestChatStreamWithUsageNoToolCalls(t *testing.T) {
	provider := &scriptedProvider{responses: []*types.LLMResponse{
		{Content: "Here you go.", StopReason: "end_turn", Usage: types.Usage{InputTokens: 20, OutputTokens: 8, TotalTokens: 28}},
	}}
	client := NewClient(provider, newTestRegistry(t), 5)
	sink := &recordingSink{}

	result, err := client.ChatStreamWithUsage(context.Background(), streamReq(sink))
	require.NoError(t, err)
	assert.Equal(t, "Here you go.", result.Text)
	assert.False(t, result.Truncated)
	assert.Equal(t, 28, result.Usage.TotalTokens)
	assert.Greater(t, result.Usage.TotalTokens, 0)

	completions := sink.byType(hub.EventCompletion)
	require.Len(t, completions, 1)
	assert.Equal(t, "Here you go.", completions[0].Text)
	require.NotNil(t, completions[0].Usage)
	assert.Equal(t, 28, completions[0].Usage.TotalTokens)

	// The system prompt is prepended as the first message.
	require.NotEmpty(t, provider.gotMsgs)
	assert.Equal(t, "system", provider.gotMsgs[0][0].Role)
}

func TestChatStreamWithUsageExecutesTool(t *testing.T) {
	tool := &countingTool{name: "create_shape"}
	provider := &scriptedProvider{responses: []*types.LLMResponse{
		{
			ToolCalls: []types.ToolCall{{ID: "call-1", Name: "create_shape", Input: map[string]interface{}{"kind": "rectangle"}}},
			Usage:     types.Usage{InputTokens: 30, OutputTokens: 12},
		},
		{Content: "Added a red rectangle.", Usage: types.Usage{InputTokens: 45, OutputTokens: 9}},
	}}
	client := NewClient(provider, newTestRegistry(t, tool), 5)
	sink := &recordingSink{}

	result, err := client.ChatStreamWithUsage(context.Background(), streamReq(sink))
	require.NoError(t, err)
	assert.Equal(t, "Added a red rectangle.", result.Text)
	assert.Equal(t, 1, tool.executed)
	assert.Equal(t, "rectangle", tool.lastArgs["kind"])

	// Usage accumulates across both model calls.
	assert.Equal(t, 75, result.Usage.InputTokens)
	assert.Equal(t, 21, result.Usage.OutputTokens)
	assert.Equal(t, 96, result.Usage.TotalTokens)

	// The second call sees the assistant tool-call message and its result.
	require.Len(t, provider.gotMsgs, 2)
	second := provider.gotMsgs[1]
	assert.Equal(t, "assistant", second[len(second)-2].Role)
	assert.Equal(t, "tool", second[len(second)-1].Role)
	assert.Equal(t, "call-1", second[len(second)-1].ToolUseID)
	require.NotNil(t, second[len(second)-1].ToolResult)
	assert.True(t, second[len(second)-1].ToolResult.Success)

	// Narration was emitted for the tool invocation.
	narrations := sink.byType(hub.EventNarration)
	require.NotEmpty(t, narrations)
	found := false
	for _, n := range narrations {
		if n.Narration == "Adding a rectangle to the board..." {
			found = true
		}
	}
	assert.True(t, found, "expected create_shape narration, got %v", narrations)
}

func TestChatStreamWithUsageUnknownToolRecovers(t *testing.T) {
	provider := &scriptedProvider{responses: []*types.LLMResponse{
		{ToolCalls: []types.ToolCall{{ID: "call-1", Name: "summon_dragon", Input: map[string]interface{}{}}}},
		{Content: "Sorry, I used the wrong tool. Done now."},
	}}
	client := NewClient(provider, newTestRegistry(t), 5)
	sink := &recordingSink{}

	result, err := client.ChatStreamWithUsage(context.Background(), streamReq(sink))
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I used the wrong tool. Done now.", result.Text)

	// The model saw an error-flavored tool result, not an aborted request.
	second := provider.gotMsgs[1]
	last := second[len(second)-1]
	assert.Equal(t, "tool", last.Role)
	require.NotNil(t, last.ToolResult)
	assert.False(t, last.ToolResult.Success)
	assert.Equal(t, "TOOL_NOT_FOUND", last.ToolResult.Error.Code)
}

func TestChatStreamWithUsageIterationCeiling(t *testing.T) {
	// The model never stops calling tools.
	tool := &countingTool{name: "create_shape"}
	provider := &scriptedProvider{responses: []*types.LLMResponse{
		{
			Content:   "working ",
			ToolCalls: []types.ToolCall{{ID: "call-1", Name: "create_shape", Input: map[string]interface{}{"kind": "rectangle"}}},
			Usage:     types.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}}
	client := NewClient(provider, newTestRegistry(t, tool), 3)
	sink := &recordingSink{}

	result, err := client.ChatStreamWithUsage(context.Background(), streamReq(sink))

	var maxErr *MaxIterationsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 3, maxErr.Iterations)

	// The partial text is still returned and still announced to the client.
	require.NotNil(t, result)
	assert.True(t, result.Truncated)
	assert.Equal(t, "working working working ", result.Text)
	assert.Equal(t, 30, result.Usage.InputTokens)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, 3, tool.executed)

	completions := sink.byType(hub.EventCompletion)
	require.Len(t, completions, 1)
	assert.Equal(t, result.Text, completions[0].Text)
}

func TestChatStreamWithUsageProviderError(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.LLMResponse{{Content: "unused"}},
		errs:      []error{&ProviderError{Provider: "scripted", StatusCode: 500, Message: "boom"}},
	}
	client := NewClient(provider, newTestRegistry(t), 5)
	sink := &recordingSink{}

	result, err := client.ChatStreamWithUsage(context.Background(), streamReq(sink))
	assert.Nil(t, result)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, 500, provErr.StatusCode)

	require.Len(t, sink.byType(hub.EventError), 1)
	assert.Empty(t, sink.byType(hub.EventCompletion))
}

func TestChatStreamWithUsageCancellation(t *testing.T) {
	provider := &scriptedProvider{responses: []*types.LLMResponse{{Content: "unused"}}}
	client := NewClient(provider, newTestRegistry(t), 5)
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := client.ChatStreamWithUsage(ctx, streamReq(sink))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)

	// No terminal event of either kind on cancellation.
	assert.Empty(t, sink.byType(hub.EventCompletion))
	assert.Empty(t, sink.byType(hub.EventError))
}

func TestChatStreamPushesDeltas(t *testing.T) {
	provider := &scriptedProvider{responses: []*types.LLMResponse{{Content: "hello board"}}}
	client := NewClient(provider, newTestRegistry(t), 5)
	sink := &recordingSink{}

	text, err := client.ChatStream(context.Background(), sink, "conn-1", "board-1", "sys", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "hello board", text)

	deltas := sink.byType(hub.EventTextDelta)
	require.NotEmpty(t, deltas)
	assert.Equal(t, "hello board", deltas[0].Text)
}

func TestChatNonStreaming(t *testing.T) {
	provider := &scriptedProvider{responses: []*types.LLMResponse{{Content: "plain answer"}}}
	client := NewClient(provider, newTestRegistry(t), 5)

	text, err := client.Chat(context.Background(), "sys", []types.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", text)
}

func TestChatPropagatesError(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*types.LLMResponse{{Content: "unused"}},
		errs:      []error{errors.New("connection refused")},
	}
	client := NewClient(provider, newTestRegistry(t), 5)

	_, err := client.Chat(context.Background(), "sys", nil)
	assert.Error(t, err)
}
