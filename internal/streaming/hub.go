// Package streaming fans editor events out to interested subscribers such
// as the terminal host, the MCP server and tests.
package streaming

import (
	"context"
	"time"
)

// Event is one editor occurrence published by a designer session.
type Event struct {
	SessionID    string    `json:"session_id"`
	WorkflowType string    `json:"workflow_type,omitempty"`
	Type         string    `json:"type"`
	Version      uint64    `json:"version"`
	Payload      any       `json:"payload,omitempty"`
	At           time.Time `json:"at"`
}

// Filter selects events for a subscriber. Types entries ending in ".*"
// match by prefix, so "editor.*" receives every editor event.
type Filter struct {
	SessionID string   `json:"session_id,omitempty"`
	Types     []string `json:"types,omitempty"`
}

// EventHub is the pub/sub contract sessions publish to.
type EventHub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}
