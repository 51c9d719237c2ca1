// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package hub routes outbound events to live client connections.
//
// The Hub is the single source of truth for which clients are reachable and
// the only component permitted to write to a client transport. Its registry
// is owned by one goroutine; register, unregister, and send arrive as
// messages on a command queue, so the map is single-writer by construction.
// Producers never block: a slow or disconnected client costs dropped events,
// not a stalled request.
package hub

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/easel/internal/log"
)

var (
	// ErrDuplicateConnection is returned by Register when the identifier is
	// already present in the registry.
	ErrDuplicateConnection = errors.New("connection id already registered")

	// ErrHubClosed is returned by Register after the Hub has shut down.
	ErrHubClosed = errors.New("hub is closed")
)

const (
	defaultQueueSize     = 64
	defaultShutdownGrace = 5 * time.Second
)

// Options configures a Hub.
type Options struct {
	// QueueSize bounds each connection's outbound queue. When the queue is
	// full, new events are dropped (drop-new policy). Defaults to 64.
	QueueSize int

	// ShutdownGrace bounds how long Close waits for pending events to drain.
	// Defaults to 5s.
	ShutdownGrace time.Duration
}

type registerCmd struct {
	id        string
	transport Transport
	reply     chan error
}

type unregisterCmd struct {
	id string
}

type sendCmd struct {
	id    string
	event Event
}

type countCmd struct {
	reply chan int
}

type closeCmd struct {
	reply chan []*connection
}

// Hub multiplexes many live client connections and routes outbound events
// to them. Construct with New, start the run loop with Start, and stop it
// with Close; nothing happens as a side effect of package loading.
type Hub struct {
	commands  chan interface{}
	stopped   chan struct{}
	queueSize int
	grace     time.Duration

	// unreachable counts events that could not be delivered: unknown
	// connection id, full outbound queue, or transport write failure.
	// Recorded for observability only, never surfaced to the producer.
	unreachable atomic.Int64
}

// New creates a Hub. The run loop is not started until Start is called.
func New(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}
	return &Hub{
		commands:  make(chan interface{}, 256),
		stopped:   make(chan struct{}),
		queueSize: opts.QueueSize,
		grace:     opts.ShutdownGrace,
	}
}

// Start launches the run loop goroutine. Call exactly once.
func (h *Hub) Start() {
	go h.run()
}

// Register adds a connection to the registry and starts delivering events
// to its transport. The Hub takes ownership of the transport and will close
// it on unregister or shutdown.
func (h *Hub) Register(id string, transport Transport) error {
	reply := make(chan error, 1)
	select {
	case h.commands <- registerCmd{id: id, transport: transport, reply: reply}:
	case <-h.stopped:
		return ErrHubClosed
	}
	select {
	case err := <-reply:
		return err
	case <-h.stopped:
		return ErrHubClosed
	}
}

// Unregister removes and closes a connection. Unregistering an unknown id
// is a no-op.
func (h *Hub) Unregister(id string) {
	select {
	case h.commands <- unregisterCmd{id: id}:
	case <-h.stopped:
	}
}

// Send enqueues an event for delivery to the given connection. It returns
// immediately and never fails the caller: if the id is unknown or the
// connection's outbound queue is full, the event is dropped and recorded
// as unreachable.
func (h *Hub) Send(id string, event Event) {
	// Checked on its own first: once the run loop has stopped, the
	// buffered command channel would still accept the event without
	// anyone draining it.
	select {
	case <-h.stopped:
		h.unreachable.Add(1)
		return
	default:
	}
	select {
	case h.commands <- sendCmd{id: id, event: event}:
	case <-h.stopped:
		h.unreachable.Add(1)
	}
}

// Count returns the number of live connections. Returns 0 after shutdown.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	select {
	case h.commands <- countCmd{reply: reply}:
	case <-h.stopped:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.stopped:
		return 0
	}
}

// UnreachableCount reports how many events could not be delivered since
// the Hub started.
func (h *Hub) UnreachableCount() int64 {
	return h.unreachable.Load()
}

// Close shuts the Hub down: every live connection is closed and pending
// sends are drained best-effort within the configured grace period. Safe
// to call once; subsequent Register/Send calls observe the closed state.
func (h *Hub) Close() {
	reply := make(chan []*connection, 1)
	select {
	case h.commands <- closeCmd{reply: reply}:
	case <-h.stopped:
		return
	}

	conns := <-reply
	deadline := time.NewTimer(h.grace)
	defer deadline.Stop()
	for _, c := range conns {
		select {
		case <-c.done:
		case <-deadline.C:
			log.Warn("hub shutdown grace period expired",
				zap.Int("undrained_connections", len(conns)))
			return
		}
	}
}

// requestUnregister is called from writer goroutines when a transport
// rejects a write.
func (h *Hub) requestUnregister(id string) {
	select {
	case h.commands <- unregisterCmd{id: id}:
	case <-h.stopped:
	}
}

// run owns the registry. It is the only goroutine that touches the map.
func (h *Hub) run() {
	conns := make(map[string]*connection)

	for cmd := range h.commands {
		switch c := cmd.(type) {
		case registerCmd:
			if _, exists := conns[c.id]; exists {
				c.reply <- ErrDuplicateConnection
				continue
			}
			conn := newConnection(c.id, c.transport, h.queueSize)
			conns[c.id] = conn
			go conn.writeLoop(h)
			log.Debug("connection registered", zap.String("connection_id", c.id))
			c.reply <- nil

		case unregisterCmd:
			conn, exists := conns[c.id]
			if !exists {
				continue
			}
			delete(conns, c.id)
			close(conn.out)
			log.Debug("connection unregistered", zap.String("connection_id", c.id))

		case sendCmd:
			conn, exists := conns[c.id]
			if !exists {
				h.unreachable.Add(1)
				log.Debug("send to unknown connection",
					zap.String("connection_id", c.id),
					zap.String("event_type", string(c.event.Type)))
				continue
			}
			select {
			case conn.out <- c.event:
			default:
				h.unreachable.Add(1)
				log.Warn("outbound queue full, dropping event",
					zap.String("connection_id", c.id),
					zap.String("event_type", string(c.event.Type)))
			}

		case countCmd:
			c.reply <- len(conns)

		case closeCmd:
			closing := make([]*connection, 0, len(conns))
			for id, conn := range conns {
				delete(conns, id)
				close(conn.out)
				closing = append(closing, conn)
			}
			close(h.stopped)
			c.reply <- closing
			return
		}
	}
}
