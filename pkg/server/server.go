// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package server is the transport boundary: a websocket endpoint that
// registers browser sessions with the hub and feeds their chat turns
// into the workflow, plus a plain HTTP health endpoint.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teradata-labs/easel/internal/log"
	"github.com/teradata-labs/easel/pkg/agent"
	"github.com/teradata-labs/easel/pkg/hub"
	"github.com/teradata-labs/easel/pkg/workflow"
)

// inboundTurn is the wire format of one chat turn from the browser.
type inboundTurn struct {
	BoardID         string             `json:"board_id"`
	Text            string             `json:"text"`
	Theme           string             `json:"theme,omitempty"`
	CustomRules     string             `json:"custom_rules,omitempty"`
	CanvasState     string             `json:"canvas_state,omitempty"`
	Selections      []inboundSelection `json:"selections,omitempty"`
	ShapeImages     []inboundImage     `json:"shape_images,omitempty"`
	Uploads         []inboundImage     `json:"uploads,omitempty"`
	ThinkingEnabled bool               `json:"thinking_enabled,omitempty"`
}

type inboundImage struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

type inboundSelection struct {
	Image       inboundImage `json:"image"`
	Annotations []struct {
		ShapeID string `json:"shape_id"`
		Kind    string `json:"kind"`
		Label   string `json:"label,omitempty"`
		Note    string `json:"note,omitempty"`
	} `json:"annotations,omitempty"`
}

// WSHandler upgrades websocket connections and pumps their turns into
// the workflow, one goroutine per turn.
type WSHandler struct {
	hub      *hub.Hub
	workflow *workflow.Workflow
	upgrader websocket.Upgrader

	allowedOrigins []string
}

// NewWSHandler creates the websocket handler. An empty origin list or a
// "*" entry allows every origin.
func NewWSHandler(h *hub.Hub, wf *workflow.Workflow, allowedOrigins []string) *WSHandler {
	handler := &WSHandler{
		hub:            h,
		workflow:       wf,
		allowedOrigins: allowedOrigins,
	}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     handler.checkOrigin,
	}
	return handler
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("ws: upgrade failed", zap.Error(err))
		return
	}

	connectionID := uuid.NewString()
	if err := h.hub.Register(connectionID, newWSTransport(conn)); err != nil {
		log.Error("ws: register failed", zap.String("connection_id", connectionID), zap.Error(err))
		_ = conn.Close()
		return
	}
	log.Info("ws: connected", zap.String("connection_id", connectionID))

	// Cancelling this context unwinds every in-flight turn for the
	// connection once the read loop exits.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer h.hub.Unregister(connectionID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("ws: read error", zap.String("connection_id", connectionID), zap.Error(err))
			}
			return
		}

		var turn inboundTurn
		if err := json.Unmarshal(data, &turn); err != nil {
			log.Warn("ws: malformed turn", zap.String("connection_id", connectionID), zap.Error(err))
			h.hub.Send(connectionID, hub.ErrorEvent("malformed_request"))
			continue
		}

		go h.runTurn(ctx, connectionID, turn)
	}
}

// runTurn executes one chat turn. Terminal events reach the client
// through the hub; the error event here covers failures the stream
// itself could not report.
func (h *WSHandler) runTurn(ctx context.Context, connectionID string, turn inboundTurn) {
	req := workflow.TurnRequest{
		BoardID:         turn.BoardID,
		ConnectionID:    connectionID,
		UserText:        turn.Text,
		Theme:           turn.Theme,
		CustomRules:     turn.CustomRules,
		CanvasState:     turn.CanvasState,
		ThinkingEnabled: turn.ThinkingEnabled,
	}
	for _, sel := range turn.Selections {
		converted := agent.AnnotatedSelection{
			Image: agent.UploadedImage{Data: sel.Image.Data, MIMEType: sel.Image.MIMEType},
		}
		for _, a := range sel.Annotations {
			converted.Annotations = append(converted.Annotations, agent.ShapeAnnotation{
				ShapeID: a.ShapeID,
				Kind:    a.Kind,
				Label:   a.Label,
				Note:    a.Note,
			})
		}
		req.Selections = append(req.Selections, converted)
	}
	for _, img := range turn.ShapeImages {
		req.ShapeImages = append(req.ShapeImages, agent.UploadedImage{Data: img.Data, MIMEType: img.MIMEType})
	}
	for _, img := range turn.Uploads {
		req.Uploads = append(req.Uploads, agent.UploadedImage{Data: img.Data, MIMEType: img.MIMEType})
	}

	result, err := h.workflow.HandleTurn(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("turn failed",
			zap.String("connection_id", connectionID),
			zap.String("board_id", turn.BoardID),
			zap.Error(err))
		h.hub.Send(connectionID, hub.ErrorEvent("turn_failed"))
		return
	}

	log.Debug("turn complete",
		zap.String("connection_id", connectionID),
		zap.String("board_id", turn.BoardID),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Bool("truncated", result.Truncated))
}
