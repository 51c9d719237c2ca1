// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/types"
)

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatal(err)
	}
	if client.Name() != "openai" {
		t.Errorf("Expected name 'openai', got %s", client.Name())
	}
	if client.Model() != DefaultModel {
		t.Errorf("Expected default model, got %s", client.Model())
	}
}

func TestNewClientMissingAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	var confErr *llm.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
}

func TestChatSimpleText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		resp := ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: DefaultModel,
			Choices: []ChatCompletionChoice{
				{
					Message:      ChatMessage{Role: "assistant", Content: "Hello!"},
					FinishReason: "stop",
				},
			},
			Usage: ChatCompletionUsage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	resp, err := client.Chat(context.Background(), []types.Message{
		{Role: "user", Content: "Hi"},
	}, nil, types.ChatOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("Unexpected content: %s", resp.Content)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("Expected end_turn, got %s", resp.StopReason)
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("Unexpected usage: %+v", resp.Usage)
	}
}

func TestChatToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ChatCompletionResponse{
			Choices: []ChatCompletionChoice{
				{
					Message: ChatMessage{
						Role: "assistant",
						ToolCalls: []ToolCall{
							{
								ID:   "call_1",
								Type: "function",
								Function: FunctionCall{
									Name:      "create_shape",
									Arguments: `{"kind":"ellipse"}`,
								},
							},
						},
					},
					FinishReason: "tool_calls",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	resp, err := client.Chat(context.Background(), []types.Message{
		{Role: "user", Content: "draw an ellipse"},
	}, nil, types.ChatOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StopReason != "tool_use" {
		t.Errorf("Expected tool_use, got %s", resp.StopReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "create_shape" {
		t.Fatalf("Unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Input["kind"] != "ellipse" {
		t.Errorf("Unexpected tool input: %+v", resp.ToolCalls[0].Input)
	}
}

func TestChatAPIErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "bad-key", Endpoint: server.URL})
	_, err := client.Chat(context.Background(), []types.Message{
		{Role: "user", Content: "Hi"},
	}, nil, types.ChatOptions{})

	var provErr *llm.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if provErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", provErr.StatusCode)
	}
}

func TestChatStreamTextAndToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Error("Expected stream_options.include_usage in request")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"index":0,"delta":{"role":"assistant","content":"On "}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"it."}}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"create_shape","arguments":"{\"kind\":"}}]}}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"rectangle\"}"}}]}}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":40,"completion_tokens":11,"total_tokens":51}}`,
		}
		for _, chunk := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})

	var streamed string
	resp, err := client.ChatStream(context.Background(), []types.Message{
		{Role: "user", Content: "add a rectangle"},
	}, nil, types.ChatOptions{}, func(token string) {
		streamed += token
	})
	if err != nil {
		t.Fatal(err)
	}

	if resp.Content != "On it." || streamed != "On it." {
		t.Errorf("Unexpected content %q / streamed %q", resp.Content, streamed)
	}
	if resp.StopReason != "tool_use" {
		t.Errorf("Expected tool_use, got %s", resp.StopReason)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[0].Input["kind"] != "rectangle" {
		t.Errorf("Unexpected tool call: %+v", resp.ToolCalls[0])
	}
	if resp.Usage.InputTokens != 40 || resp.Usage.OutputTokens != 11 || resp.Usage.TotalTokens != 51 {
		t.Errorf("Unexpected usage: %+v", resp.Usage)
	}
}

func TestConvertMessagesToolResult(t *testing.T) {
	msgs := convertMessages([]types.Message{
		{Role: "tool", ToolUseID: "call_1", Content: "done"},
	})
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != "tool" || msgs[0].ToolCallID != "call_1" {
		t.Errorf("Unexpected tool message: %+v", msgs[0])
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := map[string]string{
		"stop":           "end_turn",
		"length":         "max_tokens",
		"tool_calls":     "tool_use",
		"content_filter": "content_filter",
		"other":          "other",
	}
	for in, want := range cases {
		if got := mapFinishReason(in); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}
