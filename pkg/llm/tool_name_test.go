// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teradata-labs/easel/pkg/palette"
)

func TestSanitizeToolName(t *testing.T) {
	assert.Equal(t, "create_shape", SanitizeToolName("create_shape"))
	assert.Equal(t, "board_create_shape", SanitizeToolName("board:create_shape"))
	assert.Equal(t, "a_b_c", SanitizeToolName("a.b/c"))
	assert.Equal(t, "shape-tool-2", SanitizeToolName("shape-tool-2"))
}

func TestToolNameRoundTrip(t *testing.T) {
	names := []string{"board:create_shape", "delete_shape"}
	m := BuildToolNameMap(names)

	assert.Equal(t, "board:create_shape", ReverseToolName(m, "board_create_shape"))
	assert.Equal(t, "delete_shape", ReverseToolName(m, "delete_shape"))
	// Unmapped names pass through unchanged.
	assert.Equal(t, "mystery", ReverseToolName(m, "mystery"))
}

func TestToolNameMapFromTools(t *testing.T) {
	m := ToolNameMap([]palette.Tool{
		&countingTool{name: "board:create_shape"},
		&countingTool{name: "delete_shape"},
	})

	assert.Equal(t, "board:create_shape", m["board_create_shape"])
	assert.Equal(t, "delete_shape", m["delete_shape"])
}
