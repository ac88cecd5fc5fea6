package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Draft is an editor document saved locally, either by the user, by the
// autosaver or after a failed remote save.
type Draft struct {
	Key          string                     `json:"key"`
	SessionID    string                     `json:"session_id,omitempty"`
	WorkflowType string                     `json:"workflow_type"`
	DefinitionID string                     `json:"definition_id,omitempty"`
	Reason       string                     `json:"reason,omitempty"`
	Document     *schema.WorkflowDefinition `json:"document"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// Draft reasons.
const (
	DraftManual     = "manual"
	DraftAutosave   = "autosave"
	DraftSaveFailed = "save_failed"
)

// DraftFilter narrows ListDrafts. Zero values match everything.
type DraftFilter struct {
	WorkflowType string
	Limit        int
}

// HistoryEntry is one append-only record of a definition change.
// Sequence increases by one per workflow type.
type HistoryEntry struct {
	ID           int64           `json:"id"`
	WorkflowType string          `json:"workflow_type"`
	Sequence     int64           `json:"sequence"`
	Type         string          `json:"event_type"`
	DefinitionID string          `json:"definition_id,omitempty"`
	Revision     string          `json:"revision,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// History event types.
const (
	HistorySaved       = "definition.saved"
	HistoryDeactivated = "definition.deactivated"
)

// graph is the stored body of a definition row.
type graph struct {
	Nodes       []schema.Node       `json:"nodes"`
	Connections []schema.Connection `json:"connections"`
}
