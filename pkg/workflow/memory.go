// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/teradata-labs/easel/pkg/types"
)

// MemoryRepository is a process-local ChatRepository. History survives
// reconnects but not restarts; the standalone binary uses it so multi-turn
// conversations work without an external store.
type MemoryRepository struct {
	mu      sync.RWMutex
	history map[string][]types.Message
}

// NewMemoryRepository creates an empty in-memory chat repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{history: make(map[string][]types.Message)}
}

func (r *MemoryRepository) History(_ context.Context, boardID string) ([]types.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := r.history[boardID]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *MemoryRepository) AppendMessage(_ context.Context, boardID string, msg types.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.history[boardID] = append(r.history[boardID], msg)
	return nil
}

var _ ChatRepository = (*MemoryRepository)(nil)
