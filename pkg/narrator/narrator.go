// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package narrator turns tool-loop events into short status lines for the
// client to show while the model works.
package narrator

import (
	"fmt"
	"sync"
)

// Narrator converts loop events into human-readable progress text. State is
// per-request: a new Narrator starts clean, and Reset restores that state
// when an instance is reused across sequential requests. Concurrent
// requests must not share one; give each request its own.
type Narrator struct {
	mu        sync.Mutex
	iteration int
	toolCalls int
}

// New creates a Narrator ready for its first request.
func New() *Narrator {
	return &Narrator{}
}

// Reset clears all per-request state so no progress text bleeds from one
// conversation turn into the next.
func (n *Narrator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.iteration = 0
	n.toolCalls = 0
}

// OnIterationAdvanced records a new tool-call round-trip and returns a
// status line for it. The first iteration stays quiet about counts.
func (n *Narrator) OnIterationAdvanced() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.iteration++
	if n.iteration <= 1 {
		return "Thinking..."
	}
	return fmt.Sprintf("Still working (step %d)...", n.iteration)
}

// OnToolInvoked maps a tool invocation to a present-tense status line.
// Unknown tool names fall back to a generic narration rather than erroring.
func (n *Narrator) OnToolInvoked(toolName string, args map[string]interface{}) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toolCalls++

	switch toolName {
	case "create_shape":
		if kind, ok := args["kind"].(string); ok && kind != "" {
			return fmt.Sprintf("Adding a %s to the board...", shapeLabel(kind))
		}
		return "Adding a shape to the board..."
	case "update_shape":
		return "Updating a shape..."
	case "delete_shape":
		return "Removing a shape..."
	case "describe_canvas":
		return "Looking at the board..."
	default:
		return "Working on it..."
	}
}

// ToolCalls reports how many tools have been invoked this request.
func (n *Narrator) ToolCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.toolCalls
}

// Iteration reports the current tool-call round-trip count.
func (n *Narrator) Iteration() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.iteration
}

func shapeLabel(kind string) string {
	switch kind {
	case "sticky_note":
		return "sticky note"
	default:
		return kind
	}
}
