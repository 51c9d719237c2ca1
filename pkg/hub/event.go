// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hub

import (
	"github.com/teradata-labs/easel/pkg/types"
)

// EventType discriminates outbound events so the client can render the
// accumulating answer, transient status text, and terminal states separately.
type EventType string

const (
	// EventTextDelta carries an incremental fragment of the assistant's answer.
	EventTextDelta EventType = "text_delta"

	// EventNarration carries a short status line describing loop progress.
	EventNarration EventType = "narration"

	// EventCompletion marks the end of a request and carries the final text
	// plus token usage.
	EventCompletion EventType = "completion"

	// EventError reports a terminal failure for the request.
	EventError EventType = "error"
)

// Event is a single outbound message routed to one connection.
type Event struct {
	Type EventType `json:"type"`

	// Text is the fragment for text_delta events and the full assembled
	// answer for completion events.
	Text string `json:"text,omitempty"`

	// Narration is the status line for narration events.
	Narration string `json:"narration,omitempty"`

	// Usage is populated on completion events.
	Usage *types.Usage `json:"usage,omitempty"`

	// Error is the error kind for error events.
	Error string `json:"error,omitempty"`
}

// TextDelta builds a text_delta event.
func TextDelta(fragment string) Event {
	return Event{Type: EventTextDelta, Text: fragment}
}

// Narration builds a narration event.
func Narration(status string) Event {
	return Event{Type: EventNarration, Narration: status}
}

// Completion builds a completion event with the final text and usage.
func Completion(finalText string, usage types.Usage) Event {
	return Event{Type: EventCompletion, Text: finalText, Usage: &usage}
}

// ErrorEvent builds an error event for the given error kind.
func ErrorEvent(kind string) Event {
	return Event{Type: EventError, Error: kind}
}
