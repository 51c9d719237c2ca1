// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiterConfig configures the upstream request rate limiter.
type RateLimiterConfig struct {
	// Enabled enables rate limiting.
	Enabled bool

	// RequestsPerSecond is the maximum sustained request rate.
	// Default: 2.
	RequestsPerSecond float64

	// BurstCapacity is the maximum burst of requests allowed.
	// Default: 5.
	BurstCapacity int

	// MinDelay is the minimum spacing between requests, applied on top of
	// the token bucket. Default: 300ms.
	MinDelay time.Duration

	// MaxRetries is the retry budget for throttling (HTTP 429) errors.
	// Default: 5.
	MaxRetries int

	// RetryBackoff is the initial backoff for throttling retries; doubles
	// each retry. Default: 1s.
	RetryBackoff time.Duration

	// Logger for rate limiter events.
	Logger *zap.Logger
}

// DefaultRateLimiterConfig returns conservative defaults suitable for
// provider on-demand quotas.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 2.0,
		BurstCapacity:     5,
		MinDelay:          300 * time.Millisecond,
		MaxRetries:        5,
		RetryBackoff:      1 * time.Second,
		Logger:            zap.NewNop(),
	}
}

// RateLimiter implements token-bucket request pacing with retry on
// throttling. One limiter is shared per provider client; callers wrap each
// upstream call in Do.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	lastCall   time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2.0
	}
	if config.BurstCapacity <= 0 {
		config.BurstCapacity = 5
	}
	return &RateLimiter{
		config:     config,
		tokens:     float64(config.BurstCapacity),
		maxTokens:  float64(config.BurstCapacity),
		refillRate: config.RequestsPerSecond,
		lastRefill: time.Now(),
	}
}

// Do paces the call through the token bucket and retries it with
// exponential backoff when the provider throttles.
func (rl *RateLimiter) Do(ctx context.Context, call func(context.Context) error) error {
	if !rl.config.Enabled {
		return call(ctx)
	}

	if err := rl.wait(ctx); err != nil {
		return err
	}

	backoff := rl.config.RetryBackoff
	for attempt := 0; attempt <= rl.config.MaxRetries; attempt++ {
		err := call(ctx)
		if err == nil || !isThrottlingError(err) {
			return err
		}

		rl.config.Logger.Warn("llm request throttled, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", rl.config.MaxRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if attempt == rl.config.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("llm request failed after %d attempts due to throttling", rl.config.MaxRetries+1)
}

// wait blocks until a bucket token is available and the minimum delay since
// the previous call has elapsed.
func (rl *RateLimiter) wait(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if rl.tryAcquire() {
			return nil
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (rl *RateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens = min(rl.maxTokens, rl.tokens+elapsed*rl.refillRate)
	rl.lastRefill = now

	if rl.tokens < 1.0 {
		return false
	}
	if rl.config.MinDelay > 0 && now.Sub(rl.lastCall) < rl.config.MinDelay {
		return false
	}

	rl.tokens -= 1.0
	rl.lastCall = now
	return true
}

// isThrottlingError checks if an error is a throttling error (HTTP 429).
func isThrottlingError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "ThrottlingException") ||
		strings.Contains(msg, "TooManyRequests") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "throttle")
}
