// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryCanvas is an in-process Canvas implementation. It backs the
// standalone server binary and tests; deployments with a real board
// backend supply their own Canvas instead.
type MemoryCanvas struct {
	mu     sync.Mutex
	shapes map[string]memoryShape
	order  []string
}

type memoryShape struct {
	kind  string
	props map[string]interface{}
}

// NewMemoryCanvas creates an empty in-memory canvas.
func NewMemoryCanvas() *MemoryCanvas {
	return &MemoryCanvas{shapes: make(map[string]memoryShape)}
}

func (c *MemoryCanvas) CreateShape(_ context.Context, kind string, props map[string]interface{}) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("shape kind is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id := "shape-" + uuid.NewString()[:8]
	copied := make(map[string]interface{}, len(props))
	for k, v := range props {
		copied[k] = v
	}
	c.shapes[id] = memoryShape{kind: kind, props: copied}
	c.order = append(c.order, id)
	return id, nil
}

func (c *MemoryCanvas) UpdateShape(_ context.Context, shapeID string, props map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	shape, ok := c.shapes[shapeID]
	if !ok {
		return fmt.Errorf("shape %s not found", shapeID)
	}
	for k, v := range props {
		shape.props[k] = v
	}
	c.shapes[shapeID] = shape
	return nil
}

func (c *MemoryCanvas) DeleteShape(_ context.Context, shapeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.shapes[shapeID]; !ok {
		return fmt.Errorf("shape %s not found", shapeID)
	}
	delete(c.shapes, shapeID)
	for i, id := range c.order {
		if id == shapeID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *MemoryCanvas) Describe(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.shapes) == 0 {
		return "The board is empty.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The board has %d shape(s):\n", len(c.shapes))
	for _, id := range c.order {
		shape := c.shapes[id]
		b.WriteString("- " + shape.kind + " (" + id + ")")
		if len(shape.props) > 0 {
			keys := make([]string, 0, len(shape.props))
			for k := range shape.props {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, fmt.Sprintf("%s=%v", k, shape.props[k]))
			}
			b.WriteString(": " + strings.Join(pairs, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// Count returns the number of shapes on the board.
func (c *MemoryCanvas) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.shapes)
}
