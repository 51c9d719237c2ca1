// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package agent composes the exact payload sent to a provider client:
// the system prompt built per request from board and theme, the user
// content assembled under a single strategy per turn, and the streamed
// tool-loop invocation with per-turn narrator state.
package agent

import (
	"context"
	"strings"

	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/narrator"
	"github.com/teradata-labs/easel/pkg/types"
)

// DefaultPromptTemplate is the system prompt template. {{board_id}} and
// {{theme}} are substituted on every request.
const DefaultPromptTemplate = `You are Easel, an assistant embedded in a collaborative canvas application.
You are working on board {{board_id}}. The active theme is {{theme}}.

You can read and modify the board through the tools available to you. When the
user asks for a change, make it with tools rather than describing how they
could do it themselves. Keep answers short; the canvas is the primary output.

When shapes or screenshots are attached to a message, treat them as the
subject of the request unless the user says otherwise.`

// Agent turns a user turn into a streamed provider request. It holds no
// per-turn state and may run any number of turns concurrently.
type Agent struct {
	client         *llm.Client
	promptTemplate string
}

// Option customizes an Agent.
type Option func(*Agent)

// WithPromptTemplate replaces the system prompt template. The template
// may reference {{board_id}} and {{theme}}.
func WithPromptTemplate(template string) Option {
	return func(a *Agent) {
		a.promptTemplate = template
	}
}

// New creates an Agent around a provider client.
func New(client *llm.Client, opts ...Option) *Agent {
	a := &Agent{
		client:         client,
		promptTemplate: DefaultPromptTemplate,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SystemPrompt builds the system prompt for one request. Board and theme
// vary per call, so the result is never cached.
func (a *Agent) SystemPrompt(boardID, theme string) string {
	if theme == "" {
		theme = "light"
	}
	return strings.NewReplacer(
		"{{board_id}}", boardID,
		"{{theme}}", theme,
	).Replace(a.promptTemplate)
}

// TurnInput is everything one user turn carries into the Agent.
type TurnInput struct {
	BoardID  string
	Theme    string
	UserText string

	// History is the prior conversation, oldest first, without the new
	// user turn.
	History []types.Message

	// Optional context and attachments.
	CustomRules string
	CanvasState string
	Selections  []AnnotatedSelection
	ShapeImages []UploadedImage
	Uploads     []UploadedImage

	ThinkingEnabled bool
}

// StreamTurn runs one streamed turn through the tool loop, pushing events
// for the given connection into the sink. Each turn gets its own narrator,
// so no progress state bleeds between turns even when they overlap.
func (a *Agent) StreamTurn(ctx context.Context, sink llm.EventSink, connectionID string, in TurnInput) (*llm.StreamResult, error) {
	content := AssembleContent(in.UserText, in.CustomRules, in.CanvasState,
		in.Selections, in.ShapeImages, in.Uploads)

	messages := make([]types.Message, 0, len(in.History)+1)
	messages = append(messages, in.History...)
	messages = append(messages, content.Message())

	return a.client.ChatStreamWithUsage(ctx, llm.StreamRequest{
		Sink:            sink,
		ConnectionID:    connectionID,
		BoardID:         in.BoardID,
		SystemPrompt:    a.SystemPrompt(in.BoardID, in.Theme),
		Messages:        messages,
		ThinkingEnabled: in.ThinkingEnabled,
		Narrator:        narrator.New(),
	})
}
