// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package bedrock

import (
	"context"
	"encoding/json"
	"testing"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

func TestNewClient_Defaults(t *testing.T) {
	// Requires AWS credentials; skip outside an authenticated environment.
	t.Skip("requires AWS credentials")

	client, err := NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultModelID, client.modelID)
	assert.Equal(t, DefaultRegion, client.region)
	assert.Equal(t, int64(4096), client.maxTokens)
	assert.Equal(t, 1.0, client.temperature)
}

func TestClient_NameAndModel(t *testing.T) {
	client := &Client{modelID: DefaultModelID}
	assert.Equal(t, "bedrock", client.Name())
	assert.Equal(t, DefaultModelID, client.Model())
}

func TestConvertMessages(t *testing.T) {
	messages := []types.Message{
		{Role: "system", Content: "You are a canvas assistant."},
		{Role: "user", Content: "Add a rectangle"},
		{
			Role:    "assistant",
			Content: "Adding it now.",
			ToolCalls: []types.ToolCall{
				{ID: "toolu_1", Name: "create_shape", Input: map[string]interface{}{"kind": "rectangle"}},
			},
		},
		{
			Role:      "tool",
			ToolUseID: "toolu_1",
			ToolResult: &palette.Result{
				Success: true,
				Data:    map[string]interface{}{"shape_id": "s1"},
			},
		},
	}

	systemPrompt, sdkMessages := convertMessages(messages)

	assert.Equal(t, "You are a canvas assistant.", systemPrompt)
	require.Len(t, sdkMessages, 3)

	assert.Equal(t, anthropicsdk.MessageParamRole("user"), sdkMessages[0].Role)

	assert.Equal(t, anthropicsdk.MessageParamRole("assistant"), sdkMessages[1].Role)
	require.Len(t, sdkMessages[1].Content, 2)
	require.NotNil(t, sdkMessages[1].Content[0].OfText)
	assert.Equal(t, "Adding it now.", sdkMessages[1].Content[0].OfText.Text)
	require.NotNil(t, sdkMessages[1].Content[1].OfToolUse)
	assert.Equal(t, "toolu_1", sdkMessages[1].Content[1].OfToolUse.ID)
	assert.Equal(t, "create_shape", sdkMessages[1].Content[1].OfToolUse.Name)

	// Tool results travel as user messages.
	assert.Equal(t, anthropicsdk.MessageParamRole("user"), sdkMessages[2].Role)
	require.Len(t, sdkMessages[2].Content, 1)
	require.NotNil(t, sdkMessages[2].Content[0].OfToolResult)
	assert.Equal(t, "toolu_1", sdkMessages[2].Content[0].OfToolResult.ToolUseID)
}

func TestConvertMessages_NilToolInput(t *testing.T) {
	messages := []types.Message{
		{Role: "user", Content: "Describe the board"},
		{
			Role: "assistant",
			ToolCalls: []types.ToolCall{
				{ID: "toolu_2", Name: "describe_canvas", Input: nil},
			},
		},
	}

	_, sdkMessages := convertMessages(messages)
	require.Len(t, sdkMessages, 2)
	require.NotNil(t, sdkMessages[1].Content[0].OfToolUse)

	// Bedrock rejects null tool input with a ValidationException.
	input, ok := sdkMessages[1].Content[0].OfToolUse.Input.(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, input, 0)
}

func TestConvertMessages_FailedToolResult(t *testing.T) {
	messages := []types.Message{
		{Role: "user", Content: "Remove shape s9"},
		{
			Role:      "tool",
			ToolUseID: "toolu_3",
			ToolResult: &palette.Result{
				Success: false,
				Error: &palette.Error{
					Code:       "CANVAS_ERROR",
					Message:    "shape s9 not found",
					Suggestion: "list shapes with describe_canvas",
				},
			},
		},
	}

	_, sdkMessages := convertMessages(messages)
	require.Len(t, sdkMessages, 2)
	block := sdkMessages[1].Content[0].OfToolResult
	require.NotNil(t, block)
	assert.True(t, block.IsError.Value)
}

func TestConvertTools_SanitizesNames(t *testing.T) {
	tools := []palette.Tool{
		&namedTool{name: "canvas:create_shape", description: "Add a shape"},
	}

	sdkTools := convertTools(tools)
	require.Len(t, sdkTools, 1)
	assert.Equal(t, "canvas_create_shape", sdkTools[0].Name)

	nameMap := llm.ToolNameMap(tools)
	assert.Equal(t, "canvas:create_shape", nameMap["canvas_create_shape"])
}

func TestConvertResponse(t *testing.T) {
	client := &Client{modelID: DefaultModelID}
	nameMap := map[string]string{"create_shape": "create_shape"}

	message := &anthropicsdk.Message{
		ID:         "msg_1",
		StopReason: "tool_use",
		Content: []anthropicsdk.ContentBlockUnion{
			{Type: "text", Text: "Adding it now."},
			{
				Type:  "tool_use",
				ID:    "toolu_1",
				Name:  "create_shape",
				Input: json.RawMessage(`{"kind":"rectangle"}`),
			},
		},
		Usage: anthropicsdk.Usage{InputTokens: 30, OutputTokens: 12},
	}

	resp := client.convertResponse(message, nameMap)
	assert.Equal(t, "Adding it now.", resp.Content)
	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, 30, resp.Usage.InputTokens)
	assert.Equal(t, 12, resp.Usage.OutputTokens)
	assert.Equal(t, 42, resp.Usage.TotalTokens)
	assert.Greater(t, resp.Usage.CostUSD, 0.0)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "create_shape", resp.ToolCalls[0].Name)
	assert.Equal(t, "rectangle", resp.ToolCalls[0].Input["kind"])
}

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name    string
		modelID string
		input   int
		output  int
		want    float64
	}{
		{"sonnet", "us.anthropic.claude-sonnet-4-5-20250929-v1:0", 1_000_000, 0, 3.0},
		{"haiku", "us.anthropic.claude-haiku-4-5-v1:0", 0, 1_000_000, 4.0},
		{"opus", "us.anthropic.claude-opus-4-1-v1:0", 1_000_000, 1_000_000, 90.0},
		{"unknown defaults to sonnet pricing", "some.other.model", 1_000_000, 0, 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{modelID: tt.modelID}
			assert.InDelta(t, tt.want, client.calculateCost(tt.input, tt.output), 1e-9)
		})
	}
}

// namedTool is a minimal tool for conversion tests.
type namedTool struct {
	name        string
	description string
}

func (n *namedTool) Name() string        { return n.name }
func (n *namedTool) Description() string { return n.description }
func (n *namedTool) InputSchema() *palette.JSONSchema {
	return palette.NewObjectSchema("", map[string]*palette.JSONSchema{
		"kind": palette.NewStringSchema("shape kind"),
	}, []string{"kind"})
}
func (n *namedTool) Execute(ctx context.Context, params map[string]interface{}) (*palette.Result, error) {
	return &palette.Result{Success: true}, nil
}
