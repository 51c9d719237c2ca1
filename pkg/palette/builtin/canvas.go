// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package builtin provides the built-in canvas tools exposed to the model.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/easel/pkg/palette"
)

// Canvas is the board mutation surface the tools operate against.
// The application wires a concrete implementation (in-memory board,
// database-backed board) when constructing the tools.
type Canvas interface {
	// CreateShape adds a shape to the board and returns its identifier.
	CreateShape(ctx context.Context, kind string, props map[string]interface{}) (string, error)

	// UpdateShape applies property changes to an existing shape.
	UpdateShape(ctx context.Context, shapeID string, props map[string]interface{}) error

	// DeleteShape removes a shape from the board.
	DeleteShape(ctx context.Context, shapeID string) error

	// Describe returns a textual summary of the current board state.
	Describe(ctx context.Context) (string, error)
}

// CreateShapeTool adds shapes to the board.
type CreateShapeTool struct {
	canvas Canvas
}

// NewCreateShapeTool creates a new create_shape tool.
func NewCreateShapeTool(canvas Canvas) *CreateShapeTool {
	return &CreateShapeTool{canvas: canvas}
}

func (t *CreateShapeTool) Name() string {
	return "create_shape"
}

func (t *CreateShapeTool) Description() string {
	return `Creates a new shape on the board.

Supported kinds: rectangle, ellipse, line, arrow, text, sticky_note.
Properties are kind-specific (x, y, width, height, color, text, ...).
Returns the identifier of the created shape.`
}

func (t *CreateShapeTool) InputSchema() *palette.JSONSchema {
	return &palette.JSONSchema{
		Type:        "object",
		Description: "Parameters for shape creation",
		Properties: map[string]*palette.JSONSchema{
			"kind": palette.NewStringSchema("Shape kind to create").
				WithEnum("rectangle", "ellipse", "line", "arrow", "text", "sticky_note"),
			"properties": palette.NewObjectSchema("Kind-specific shape properties (position, size, color, text)", nil, nil),
		},
		Required: []string{"kind"},
	}
}

func (t *CreateShapeTool) Execute(ctx context.Context, params map[string]interface{}) (*palette.Result, error) {
	start := time.Now()

	kind, ok := params["kind"].(string)
	if !ok || kind == "" {
		return invalidParams("kind is required and must be a string", start), nil
	}
	props, _ := params["properties"].(map[string]interface{})

	id, err := t.canvas.CreateShape(ctx, kind, props)
	if err != nil {
		return &palette.Result{
			Success: false,
			Error: &palette.Error{
				Code:      "CANVAS_ERROR",
				Message:   fmt.Sprintf("failed to create %s: %v", kind, err),
				Retryable: true,
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	return &palette.Result{
		Success:         true,
		Data:            map[string]interface{}{"shape_id": id, "kind": kind},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// UpdateShapeTool modifies existing shapes.
type UpdateShapeTool struct {
	canvas Canvas
}

// NewUpdateShapeTool creates a new update_shape tool.
func NewUpdateShapeTool(canvas Canvas) *UpdateShapeTool {
	return &UpdateShapeTool{canvas: canvas}
}

func (t *UpdateShapeTool) Name() string {
	return "update_shape"
}

func (t *UpdateShapeTool) Description() string {
	return `Updates properties of an existing shape on the board.

Only the properties supplied are changed; everything else is left as-is.`
}

func (t *UpdateShapeTool) InputSchema() *palette.JSONSchema {
	return &palette.JSONSchema{
		Type:        "object",
		Description: "Parameters for shape update",
		Properties: map[string]*palette.JSONSchema{
			"shape_id":   palette.NewStringSchema("Identifier of the shape to update"),
			"properties": palette.NewObjectSchema("Properties to change", nil, nil),
		},
		Required: []string{"shape_id", "properties"},
	}
}

func (t *UpdateShapeTool) Execute(ctx context.Context, params map[string]interface{}) (*palette.Result, error) {
	start := time.Now()

	shapeID, ok := params["shape_id"].(string)
	if !ok || shapeID == "" {
		return invalidParams("shape_id is required and must be a string", start), nil
	}
	props, ok := params["properties"].(map[string]interface{})
	if !ok || len(props) == 0 {
		return invalidParams("properties must be a non-empty object", start), nil
	}

	if err := t.canvas.UpdateShape(ctx, shapeID, props); err != nil {
		return &palette.Result{
			Success: false,
			Error: &palette.Error{
				Code:       "CANVAS_ERROR",
				Message:    fmt.Sprintf("failed to update shape %s: %v", shapeID, err),
				Retryable:  true,
				Suggestion: "Verify the shape exists with describe_canvas before updating it",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	return &palette.Result{
		Success:         true,
		Data:            map[string]interface{}{"shape_id": shapeID},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// DeleteShapeTool removes shapes from the board.
type DeleteShapeTool struct {
	canvas Canvas
}

// NewDeleteShapeTool creates a new delete_shape tool.
func NewDeleteShapeTool(canvas Canvas) *DeleteShapeTool {
	return &DeleteShapeTool{canvas: canvas}
}

func (t *DeleteShapeTool) Name() string {
	return "delete_shape"
}

func (t *DeleteShapeTool) Description() string {
	return "Deletes a shape from the board by its identifier."
}

func (t *DeleteShapeTool) InputSchema() *palette.JSONSchema {
	return &palette.JSONSchema{
		Type:        "object",
		Description: "Parameters for shape deletion",
		Properties: map[string]*palette.JSONSchema{
			"shape_id": palette.NewStringSchema("Identifier of the shape to delete"),
		},
		Required: []string{"shape_id"},
	}
}

func (t *DeleteShapeTool) Execute(ctx context.Context, params map[string]interface{}) (*palette.Result, error) {
	start := time.Now()

	shapeID, ok := params["shape_id"].(string)
	if !ok || shapeID == "" {
		return invalidParams("shape_id is required and must be a string", start), nil
	}

	if err := t.canvas.DeleteShape(ctx, shapeID); err != nil {
		return &palette.Result{
			Success: false,
			Error: &palette.Error{
				Code:      "CANVAS_ERROR",
				Message:   fmt.Sprintf("failed to delete shape %s: %v", shapeID, err),
				Retryable: false,
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	return &palette.Result{
		Success:         true,
		Data:            map[string]interface{}{"shape_id": shapeID, "deleted": true},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// DescribeCanvasTool summarizes the current board state for the model.
type DescribeCanvasTool struct {
	canvas Canvas
}

// NewDescribeCanvasTool creates a new describe_canvas tool.
func NewDescribeCanvasTool(canvas Canvas) *DescribeCanvasTool {
	return &DescribeCanvasTool{canvas: canvas}
}

func (t *DescribeCanvasTool) Name() string {
	return "describe_canvas"
}

func (t *DescribeCanvasTool) Description() string {
	return "Returns a textual summary of every shape currently on the board. Use this before modifying shapes you have not created in this conversation."
}

func (t *DescribeCanvasTool) InputSchema() *palette.JSONSchema {
	return &palette.JSONSchema{
		Type:        "object",
		Description: "No parameters",
		Properties:  map[string]*palette.JSONSchema{},
	}
}

func (t *DescribeCanvasTool) Execute(ctx context.Context, _ map[string]interface{}) (*palette.Result, error) {
	start := time.Now()

	summary, err := t.canvas.Describe(ctx)
	if err != nil {
		return &palette.Result{
			Success: false,
			Error: &palette.Error{
				Code:      "CANVAS_ERROR",
				Message:   fmt.Sprintf("failed to describe board: %v", err),
				Retryable: true,
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	return &palette.Result{
		Success:         true,
		Data:            map[string]interface{}{"description": summary},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// RegisterCanvasTools registers all canvas tools against the given registry.
func RegisterCanvasTools(registry *palette.Registry, canvas Canvas) error {
	tools := []palette.Tool{
		NewCreateShapeTool(canvas),
		NewUpdateShapeTool(canvas),
		NewDeleteShapeTool(canvas),
		NewDescribeCanvasTool(canvas),
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register %s: %w", tool.Name(), err)
		}
	}
	return nil
}

func invalidParams(msg string, start time.Time) *palette.Result {
	return &palette.Result{
		Success: false,
		Error: &palette.Error{
			Code:    "INVALID_PARAMS",
			Message: msg,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}
