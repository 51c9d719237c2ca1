// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/easel/pkg/agent"
	"github.com/teradata-labs/easel/pkg/hub"
	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

// scriptedProvider returns canned responses in order.
type scriptedProvider struct {
	responses []*types.LLMResponse
	err       error
	calls     int
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []types.Message, tools []palette.Tool, opts types.ChatOptions) (*types.LLMResponse, error) {
	return p.ChatStream(ctx, messages, tools, opts, nil)
}

func (p *scriptedProvider) ChatStream(ctx context.Context, messages []types.Message, tools []palette.Tool,
	opts types.ChatOptions, cb types.TokenCallback) (*types.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	resp := p.responses[idx]
	if cb != nil && resp.Content != "" {
		cb(resp.Content)
	}
	return resp, nil
}

// countingTool records executions.
type countingTool struct {
	name  string
	count int
}

func (c *countingTool) Name() string        { return c.name }
func (c *countingTool) Description() string { return "counts calls" }
func (c *countingTool) InputSchema() *palette.JSONSchema {
	return palette.NewObjectSchema("", map[string]*palette.JSONSchema{
		"kind": palette.NewStringSchema("shape kind"),
	}, nil)
}
func (c *countingTool) Execute(ctx context.Context, params map[string]interface{}) (*palette.Result, error) {
	c.count++
	return &palette.Result{Success: true, Data: map[string]interface{}{"shape_id": "s1"}}, nil
}

// memoryRepo is an in-memory ChatRepository.
type memoryRepo struct {
	mu       sync.Mutex
	history  map[string][]types.Message
	loadErr  error
	appended int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{history: map[string][]types.Message{}}
}

func (r *memoryRepo) History(ctx context.Context, boardID string) ([]types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.history[boardID], nil
}

func (r *memoryRepo) AppendMessage(ctx context.Context, boardID string, msg types.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[boardID] = append(r.history[boardID], msg)
	r.appended++
	return nil
}

// nullSink discards events.
type nullSink struct{}

func (nullSink) Send(id string, event hub.Event) {}

func newWorkflow(t *testing.T, provider *scriptedProvider, tool palette.Tool, ceiling int, opts ...Option) *Workflow {
	t.Helper()
	registry := palette.NewRegistry()
	if tool != nil {
		require.NoError(t, registry.Register(tool))
	}
	client := llm.NewClient(provider, registry, ceiling)
	return New(agent.New(client), nullSink{}, opts...)
}

func TestHandleTurn_AddRectangle(t *testing.T) {
	tool := &countingTool{name: "create_shape"}
	provider := &scriptedProvider{responses: []*types.LLMResponse{
		{
			ToolCalls: []types.ToolCall{
				{ID: "toolu_1", Name: "create_shape", Input: map[string]interface{}{"kind": "rectangle"}},
			},
			Usage: types.Usage{InputTokens: 40, OutputTokens: 12, TotalTokens: 52},
		},
		{
			Content: "I added a red rectangle to the board.",
			Usage:   types.Usage{InputTokens: 60, OutputTokens: 10, TotalTokens: 70},
		},
	}}
	w := newWorkflow(t, provider, tool, 5)

	result, err := w.HandleTurn(context.Background(), TurnRequest{
		BoardID:      "board-1",
		ConnectionID: "conn-1",
		UserText:     "add a red rectangle",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tool.count)
	assert.Equal(t, "I added a red rectangle to the board.", result.Text)
	assert.False(t, result.Truncated)
	assert.Greater(t, result.Usage.TotalTokens, 0)
	assert.Equal(t, result.Usage.InputTokens+result.Usage.OutputTokens, result.Usage.TotalTokens)
}

func TestHandleTurn_UnreachableConnectionStillCompletes(t *testing.T) {
	provider := &scriptedProvider{responses: []*types.LLMResponse{
		{Content: "Done.", Usage: types.Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7}},
	}}
	registry := palette.NewRegistry()
	client := llm.NewClient(provider, registry, 5)

	// Real hub with no registered connection for the id.
	h := hub.New(hub.Options{})
	h.Start()
	defer h.Close()

	w := New(agent.New(client), h)
	result, err := w.HandleTurn(context.Background(), TurnRequest{
		BoardID:      "board-1",
		ConnectionID: "nobody-home",
		UserText:     "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", result.Text)

	// Count round-trips the hub's command queue, so every send from the
	// turn has been processed by the time it returns.
	assert.Equal(t, 0, h.Count())
	assert.Greater(t, h.UnreachableCount(), int64(0))
}

func TestHandleTurn_Validation(t *testing.T) {
	w := newWorkflow(t, &scriptedProvider{responses: []*types.LLMResponse{{Content: "x"}}}, nil, 5)

	_, err := w.HandleTurn(context.Background(), TurnRequest{UserText: "hi"})
	assert.ErrorIs(t, err, ErrMissingBoardID)

	_, err = w.HandleTurn(context.Background(), TurnRequest{BoardID: "b1"})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	// Attachments alone are a valid turn.
	_, err = w.HandleTurn(context.Background(), TurnRequest{
		BoardID: "b1",
		Uploads: []agent.UploadedImage{{Data: "aW1n", MIMEType: "image/png"}},
	})
	assert.NoError(t, err)
}

func TestHandleTurn_RepositoryRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	repo.history["board-1"] = []types.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	provider := &scriptedProvider{responses: []*types.LLMResponse{
		{Content: "Done.", Usage: types.Usage{TotalTokens: 3, InputTokens: 2, OutputTokens: 1}},
	}}
	w := newWorkflow(t, provider, nil, 5, WithRepository(repo))

	result, err := w.HandleTurn(context.Background(), TurnRequest{
		BoardID:  "board-1",
		UserText: "and now?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", result.Text)

	// Two prior plus the persisted user and assistant turns.
	assert.Len(t, repo.history["board-1"], 4)
	assert.Equal(t, "and now?", repo.history["board-1"][2].Content)
	assert.Equal(t, "Done.", repo.history["board-1"][3].Content)
}

func TestHandleTurn_RepositoryLoadError(t *testing.T) {
	repo := newMemoryRepo()
	repo.loadErr = errors.New("db down")
	w := newWorkflow(t, &scriptedProvider{responses: []*types.LLMResponse{{Content: "x"}}}, nil, 5, WithRepository(repo))

	_, err := w.HandleTurn(context.Background(), TurnRequest{BoardID: "b1", UserText: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestHandleTurn_TruncatedReturnsPartial(t *testing.T) {
	tool := &countingTool{name: "create_shape"}
	provider := &scriptedProvider{responses: []*types.LLMResponse{
		{
			Content: "working ",
			ToolCalls: []types.ToolCall{
				{ID: "toolu_1", Name: "create_shape", Input: map[string]interface{}{"kind": "rectangle"}},
			},
			Usage: types.Usage{InputTokens: 10, OutputTokens: 4, TotalTokens: 14},
		},
	}}
	w := newWorkflow(t, provider, tool, 3)

	result, err := w.HandleTurn(context.Background(), TurnRequest{
		BoardID:  "b1",
		UserText: "keep going forever",
	})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.NotEmpty(t, result.Text)
	assert.Equal(t, 3, provider.calls)
}

func TestHandleTurn_ProviderErrorNothingPersisted(t *testing.T) {
	repo := newMemoryRepo()
	provider := &scriptedProvider{err: errors.New("upstream 500")}
	w := newWorkflow(t, provider, nil, 5, WithRepository(repo))

	_, err := w.HandleTurn(context.Background(), TurnRequest{BoardID: "b1", UserText: "hi"})
	require.Error(t, err)
	assert.Equal(t, 0, repo.appended)
}

func TestHandleTurn_CancellationNothingPersisted(t *testing.T) {
	repo := newMemoryRepo()
	provider := &scriptedProvider{responses: []*types.LLMResponse{{Content: "x"}}}
	w := newWorkflow(t, provider, nil, 5, WithRepository(repo))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.HandleTurn(ctx, TurnRequest{BoardID: "b1", UserText: "hi"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, repo.appended)
}
