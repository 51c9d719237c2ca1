// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teradata-labs/easel/pkg/types"
)

// TokenCounter estimates token counts for providers that do not report
// usage themselves (Ollama). Uses tiktoken with cl100k_base encoding, a
// reasonable approximation across model families.
type TokenCounter struct {
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter creates a token counter. If the tiktoken encoding cannot
// be loaded, the counter falls back to character-based estimation.
func NewTokenCounter() *TokenCounter {
	tkm, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{encoder: nil}
	}
	return &TokenCounter{encoder: tkm}
}

// CountTokens returns the token count for a text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.encoder == nil {
		// ~4 chars per token is the usual rough estimate
		return len(text) / 4
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}

// EstimateMessagesTokens estimates the token count for a conversation,
// including per-message formatting overhead.
func (tc *TokenCounter) EstimateMessagesTokens(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		// role + structural formatting
		total += 10
		total += tc.CountTokens(msg.Content)
		for _, block := range msg.ContentBlocks {
			if block.Type == "text" {
				total += tc.CountTokens(block.Text)
			}
		}
		if len(msg.ToolCalls) > 0 {
			total += tc.CountTokens(fmt.Sprintf("%v", msg.ToolCalls))
		}
		if msg.ToolResult != nil {
			total += tc.CountTokens(fmt.Sprintf("%v", *msg.ToolResult))
		}
	}
	return total
}
