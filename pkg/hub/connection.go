// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hub

import (
	"go.uber.org/zap"

	"github.com/teradata-labs/easel/internal/log"
)

// Transport is the write side of a client connection. The Hub's writer
// goroutine is the only caller of WriteEvent, so implementations do not
// need to be safe for concurrent writes.
type Transport interface {
	// WriteEvent delivers one event to the client.
	WriteEvent(event Event) error

	// Close tears down the underlying connection.
	Close() error
}

// connection pairs an outbound queue with its transport. Owned exclusively
// by the Hub; other components address it only by identifier. Lifecycle is
// carried by the channels: out open means the connection is live, out closed
// means it is draining, done closed means the transport is torn down.
type connection struct {
	id        string
	out       chan Event
	transport Transport

	// done is closed when the writer goroutine has exited and the
	// transport is closed.
	done chan struct{}
}

func newConnection(id string, transport Transport, queueSize int) *connection {
	return &connection{
		id:        id,
		out:       make(chan Event, queueSize),
		transport: transport,
		done:      make(chan struct{}),
	}
}

// writeLoop drains the outbound queue to the transport in order. It exits
// when the queue is closed or the transport rejects a write. On write
// failure it asks the Hub to unregister the connection and discards the
// rest of the queue so the closer is never blocked.
func (c *connection) writeLoop(h *Hub) {
	defer close(c.done)
	defer func() {
		if err := c.transport.Close(); err != nil {
			log.Debug("transport close failed", zap.String("connection_id", c.id), zap.Error(err))
		}
	}()

	for event := range c.out {
		if err := c.transport.WriteEvent(event); err != nil {
			h.unreachable.Add(1)
			log.Warn("connection write failed, dropping connection",
				zap.String("connection_id", c.id),
				zap.Error(err))
			h.requestUnregister(c.id)
			for range c.out {
			}
			return
		}
	}
}
