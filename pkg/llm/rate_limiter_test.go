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
)

func TestRateLimiterDisabledPassesThrough(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Enabled: false})

	calls := 0
	err := rl.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRateLimiterRetriesThrottling(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 100,
		BurstCapacity:     10,
		MaxRetries:        3,
		RetryBackoff:      time.Millisecond,
	})

	calls := 0
	err := rl.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("429 TooManyRequests")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRateLimiterExhaustsRetries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 100,
		BurstCapacity:     10,
		MaxRetries:        2,
		RetryBackoff:      time.Millisecond,
	})

	err := rl.Do(context.Background(), func(context.Context) error {
		return errors.New("rate limit exceeded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttling")
}

func TestRateLimiterDoesNotRetryOtherErrors(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 100,
		BurstCapacity:     10,
		MaxRetries:        5,
		RetryBackoff:      time.Millisecond,
	})

	calls := 0
	err := rl.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("invalid request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRateLimiterHonorsCancellation(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 0.001, // bucket refills too slowly to serve a second call
		BurstCapacity:     1,
	})

	// Drain the only token.
	require.NoError(t, rl.Do(context.Background(), func(context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rl.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsThrottlingError(t *testing.T) {
	assert.True(t, isThrottlingError(errors.New("HTTP 429 returned")))
	assert.True(t, isThrottlingError(errors.New("ThrottlingException: slow down")))
	assert.False(t, isThrottlingError(errors.New("connection refused")))
	assert.False(t, isThrottlingError(nil))
}
