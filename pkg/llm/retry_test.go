// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/types"
)

func retryConfigForTest(maxRetries int) RetryConfig {
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestChat_RetriesTransientFailure(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{
			&ProviderError{Provider: "scripted", StatusCode: 529, Message: "overloaded"},
			&ProviderError{Provider: "scripted", StatusCode: 529, Message: "overloaded"},
		},
		responses: []*types.LLMResponse{
			{Content: "recovered", StopReason: "end_turn"},
		},
	}
	client := NewClient(provider, palette.NewRegistry(), 5, WithRetry(retryConfigForTest(3)))

	text, err := client.Chat(context.Background(), "", []types.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 3, provider.calls)
}

func TestChat_RetriesExhausted(t *testing.T) {
	boom := &ProviderError{Provider: "scripted", StatusCode: 500, Message: "boom"}
	provider := &scriptedProvider{
		errs:      []error{boom, boom, boom},
		responses: []*types.LLMResponse{{Content: "never"}},
	}
	client := NewClient(provider, palette.NewRegistry(), 5, WithRetry(retryConfigForTest(2)))

	_, err := client.Chat(context.Background(), "", []types.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "after 3 attempts")
	var perr *ProviderError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, provider.calls)
}

func TestChat_NoRetryWhenDisabled(t *testing.T) {
	provider := &scriptedProvider{
		errs:      []error{errors.New("down")},
		responses: []*types.LLMResponse{{Content: "never"}},
	}
	client := NewClient(provider, palette.NewRegistry(), 5)

	_, err := client.Chat(context.Background(), "", []types.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestChat_NoRetryAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{responses: []*types.LLMResponse{{Content: "never"}}}
	client := NewClient(provider, palette.NewRegistry(), 5, WithRetry(retryConfigForTest(5)))

	_, err := client.Chat(ctx, "", []types.Message{{Role: "user", Content: "hi"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, provider.calls)
}
