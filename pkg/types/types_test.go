// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teradata-labs/easel/pkg/palette"
)

func TestUsageAdd(t *testing.T) {
	u := Usage{InputTokens: 100, OutputTokens: 40, TotalTokens: 140, CostUSD: 0.01}
	u.Add(Usage{InputTokens: 50, OutputTokens: 10, TotalTokens: 60, CostUSD: 0.002})

	assert.Equal(t, 150, u.InputTokens)
	assert.Equal(t, 50, u.OutputTokens)
	assert.Equal(t, 200, u.TotalTokens, "total must equal input + output")
	assert.InDelta(t, 0.012, u.CostUSD, 1e-9)
}

func TestUsageAddRecomputesTotal(t *testing.T) {
	// A provider that reports an inconsistent total should not poison
	// the accumulated record.
	u := Usage{}
	u.Add(Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 999})
	assert.Equal(t, 15, u.TotalTokens)
}

type fakeProvider struct{}

func (f *fakeProvider) Chat(_ context.Context, _ []Message, _ []palette.Tool, _ ChatOptions) (*LLMResponse, error) {
	return &LLMResponse{Content: "ok"}, nil
}
func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

type fakeStreamingProvider struct {
	fakeProvider
}

func (f *fakeStreamingProvider) ChatStream(_ context.Context, _ []Message, _ []palette.Tool, _ ChatOptions, cb TokenCallback) (*LLMResponse, error) {
	cb("ok")
	return &LLMResponse{Content: "ok"}, nil
}

func TestSupportsStreaming(t *testing.T) {
	assert.False(t, SupportsStreaming(&fakeProvider{}))
	assert.True(t, SupportsStreaming(&fakeStreamingProvider{}))
}
