// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"strings"

	"github.com/teradata-labs/easel/pkg/palette"
)

// SanitizeToolName converts a tool name to a provider-compatible format.
// Model providers restrict tool names to narrow patterns:
//   - OpenAI: ^[a-zA-Z0-9_-]{1,64}$
//   - Bedrock: ^[a-zA-Z0-9_-]{1,64}$
//   - Gemini: ^[a-zA-Z_][a-zA-Z0-9_]*$
//
// Characters outside [a-zA-Z0-9_-] are replaced with underscores so that
// namespaced catalog names survive the round trip.
func SanitizeToolName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '_', ch == '-':
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// BuildToolNameMap creates a mapping from sanitized to original tool names.
func BuildToolNameMap(names []string) map[string]string {
	m := make(map[string]string, len(names))
	for _, name := range names {
		m[SanitizeToolName(name)] = name
	}
	return m
}

// ToolNameMap builds the sanitized-to-original mapping for a tool set.
// Providers build this once per request and consult it when converting
// responses back.
func ToolNameMap(tools []palette.Tool) map[string]string {
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name()
	}
	return BuildToolNameMap(names)
}

// ReverseToolName maps a sanitized tool name back to its original.
// Returns the sanitized name unchanged when there is no mapping.
func ReverseToolName(nameMap map[string]string, sanitizedName string) string {
	if original, exists := nameMap[sanitizedName]; exists {
		return original
	}
	return sanitizedName
}
