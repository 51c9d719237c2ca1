// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package workflow is the single call surface the rest of the
// application integrates against: it validates an inbound chat turn,
// loads history, runs the agent's streamed tool loop, and persists the
// finished exchange.
package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/teradata-labs/easel/internal/log"
	"github.com/teradata-labs/easel/pkg/agent"
	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/types"
)

var (
	// ErrMissingBoardID is returned when a turn has no board identifier.
	ErrMissingBoardID = errors.New("board id is required")
	// ErrEmptyMessage is returned when a turn carries no user text and
	// no attachments.
	ErrEmptyMessage = errors.New("message text is required")
)

// ChatRepository persists conversation history. Implementations live
// outside this engine; the workflow only needs these two operations.
type ChatRepository interface {
	History(ctx context.Context, boardID string) ([]types.Message, error)
	AppendMessage(ctx context.Context, boardID string, msg types.Message) error
}

// TurnRequest is one inbound chat turn.
type TurnRequest struct {
	BoardID      string
	ConnectionID string
	UserText     string
	Theme        string

	// History is the prior conversation. When nil and a repository is
	// configured, history is loaded from it instead.
	History []types.Message

	CustomRules string
	CanvasState string
	Selections  []agent.AnnotatedSelection
	ShapeImages []agent.UploadedImage
	Uploads     []agent.UploadedImage

	ThinkingEnabled bool
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	Text  string
	Usage types.Usage

	// Truncated reports the iteration ceiling cut the turn short; Text
	// is the best partial answer.
	Truncated bool
}

// Workflow orchestrates chat turns.
type Workflow struct {
	agent *agent.Agent
	sink  llm.EventSink
	repo  ChatRepository
}

// Option customizes a Workflow.
type Option func(*Workflow)

// WithRepository persists turns through the given repository.
func WithRepository(repo ChatRepository) Option {
	return func(w *Workflow) {
		w.repo = repo
	}
}

// New creates a Workflow. The sink receives all streamed events;
// *hub.Hub is the production implementation.
func New(ag *agent.Agent, sink llm.EventSink, opts ...Option) *Workflow {
	w := &Workflow{agent: ag, sink: sink}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleTurn runs one chat turn end to end and returns the final text
// and usage. On iteration-ceiling truncation the partial answer is
// returned with Truncated set rather than an error. Cancellation
// persists nothing.
func (w *Workflow) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.BoardID == "" {
		return nil, ErrMissingBoardID
	}
	if req.UserText == "" && len(req.Selections) == 0 && len(req.ShapeImages) == 0 && len(req.Uploads) == 0 {
		return nil, ErrEmptyMessage
	}

	history := req.History
	if history == nil && w.repo != nil {
		loaded, err := w.repo.History(ctx, req.BoardID)
		if err != nil {
			return nil, err
		}
		history = loaded
	}

	result, err := w.agent.StreamTurn(ctx, w.sink, req.ConnectionID, agent.TurnInput{
		BoardID:         req.BoardID,
		Theme:           req.Theme,
		UserText:        req.UserText,
		History:         history,
		CustomRules:     req.CustomRules,
		CanvasState:     req.CanvasState,
		Selections:      req.Selections,
		ShapeImages:     req.ShapeImages,
		Uploads:         req.Uploads,
		ThinkingEnabled: req.ThinkingEnabled,
	})

	var truncated bool
	if err != nil {
		var ceiling *llm.MaxIterationsError
		if !errors.As(err, &ceiling) {
			// Provider failure or cancellation: nothing is persisted,
			// the caller gets one terminal error for the turn.
			return nil, err
		}
		truncated = true
		log.Warn("turn hit iteration ceiling",
			zap.String("board_id", req.BoardID),
			zap.Int("iterations", ceiling.Iterations))
	}

	w.persist(ctx, req, result)

	return &TurnResult{
		Text:      result.Text,
		Usage:     result.Usage,
		Truncated: truncated,
	}, nil
}

// persist appends the finished exchange. A persistence failure does not
// fail the turn; the answer already reached the user.
func (w *Workflow) persist(ctx context.Context, req TurnRequest, result *llm.StreamResult) {
	if w.repo == nil {
		return
	}
	userMsg := types.Message{Role: "user", Content: req.UserText}
	assistantMsg := types.Message{Role: "assistant", Content: result.Text}

	if err := w.repo.AppendMessage(ctx, req.BoardID, userMsg); err != nil {
		log.Warn("failed to persist user message",
			zap.String("board_id", req.BoardID), zap.Error(err))
		return
	}
	if err := w.repo.AppendMessage(ctx, req.BoardID, assistantMsg); err != nil {
		log.Warn("failed to persist assistant message",
			zap.String("board_id", req.BoardID), zap.Error(err))
	}
}
