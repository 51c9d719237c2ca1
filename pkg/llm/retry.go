// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/easel/internal/log"
)

// RetryConfig controls exponential backoff for non-streaming Chat calls.
// Streaming requests are never retried; a partially delivered stream
// cannot be replayed to the client.
type RetryConfig struct {
	Enabled      bool
	MaxRetries   int           // attempts beyond the first, default 3
	InitialDelay time.Duration // default 500ms
	Multiplier   float64       // default 2.0
	MaxDelay     time.Duration // default 10s
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// WithRetry enables backoff retries on Chat.
func WithRetry(cfg RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = cfg.withDefaults()
	}
}

// retryCall runs fn with exponential backoff per the client's retry
// config. Context cancellation stops retrying immediately.
func (c *Client) retryCall(ctx context.Context, fn func(context.Context) error) error {
	if !c.retry.Enabled {
		return c.call(ctx, fn)
	}

	var lastErr error
	delay := c.retry.InitialDelay

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		err := c.call(ctx, fn)
		if err == nil {
			if attempt > 0 {
				log.Info("provider retry succeeded",
					zap.String("provider", c.provider.Name()),
					zap.Int("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		if attempt >= c.retry.MaxRetries {
			break
		}

		log.Warn("provider call failed, retrying",
			zap.String("provider", c.provider.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.retry.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * c.retry.Multiplier)
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}

	return fmt.Errorf("provider call failed after %d attempts: %w", c.retry.MaxRetries+1, lastErr)
}
