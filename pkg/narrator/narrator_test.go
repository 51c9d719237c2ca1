// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package narrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnToolInvokedKnownTools(t *testing.T) {
	n := New()
	n.Reset()

	assert.Equal(t, "Adding a rectangle to the board...",
		n.OnToolInvoked("create_shape", map[string]interface{}{"kind": "rectangle"}))
	assert.Equal(t, "Adding a sticky note to the board...",
		n.OnToolInvoked("create_shape", map[string]interface{}{"kind": "sticky_note"}))
	assert.Equal(t, "Adding a shape to the board...",
		n.OnToolInvoked("create_shape", nil))
	assert.Equal(t, "Updating a shape...", n.OnToolInvoked("update_shape", nil))
	assert.Equal(t, "Removing a shape...", n.OnToolInvoked("delete_shape", nil))
	assert.Equal(t, "Looking at the board...", n.OnToolInvoked("describe_canvas", nil))
}

func TestOnToolInvokedUnknownToolFallsBack(t *testing.T) {
	n := New()
	n.Reset()

	assert.Equal(t, "Working on it...", n.OnToolInvoked("summon_dragon", nil))
	assert.Equal(t, 1, n.ToolCalls())
}

func TestOnIterationAdvanced(t *testing.T) {
	n := New()
	n.Reset()

	assert.Equal(t, "Thinking...", n.OnIterationAdvanced())
	assert.Equal(t, "Still working (step 2)...", n.OnIterationAdvanced())
	assert.Equal(t, "Still working (step 3)...", n.OnIterationAdvanced())
	assert.Equal(t, 3, n.Iteration())
}

func TestResetClearsState(t *testing.T) {
	n := New()
	n.Reset()
	n.OnIterationAdvanced()
	n.OnIterationAdvanced()
	n.OnToolInvoked("create_shape", nil)

	// Without the reset, the next request would start at step 3.
	n.Reset()
	assert.Equal(t, 0, n.Iteration())
	assert.Equal(t, 0, n.ToolCalls())
	assert.Equal(t, "Thinking...", n.OnIterationAdvanced())
}
