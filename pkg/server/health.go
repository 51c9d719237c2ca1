// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/teradata-labs/easel/internal/version"
	"github.com/teradata-labs/easel/pkg/hub"
	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/types"
)

// ValidateProvider performs a preflight check on the configured LLM
// provider during startup, so misconfiguration fails before the server
// accepts connections.
func ValidateProvider(ctx context.Context, client *llm.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	provider := client.Provider()
	if _, err := provider.Chat(checkCtx, []types.Message{
		{Role: "user", Content: "ping"},
	}, nil, types.ChatOptions{}); err != nil {
		return fmt.Errorf("provider preflight check failed (%s/%s): %w",
			provider.Name(), provider.Model(), err)
	}
	return nil
}

// HealthHandler reports liveness plus connection counters.
func HealthHandler(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"version":     version.Version,
			"connections": h.Count(),
			"unreachable": h.UnreachableCount(),
		})
	}
}
