// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teradata-labs/easel/pkg/hub"
)

// writeTimeout bounds a single websocket write; a peer that cannot keep
// up fails the write and gets dropped by the hub.
const writeTimeout = 10 * time.Second

// wsTransport adapts a websocket connection to the hub's Transport.
// All writes happen on the hub's per-connection writer goroutine, so no
// extra locking is needed here.
type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

// WriteEvent sends one event as a JSON text message.
func (t *wsTransport) WriteEvent(event hub.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears the connection down.
func (t *wsTransport) Close() error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
