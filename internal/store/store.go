// Package store persists editor drafts and development backend
// definitions in an embedded libSQL database.
package store

import (
	"context"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Store is the persistence contract. Implementations are safe for
// concurrent use.
type Store interface {
	// Drafts
	PutDraft(ctx context.Context, d *Draft) error
	GetDraft(ctx context.Context, key string) (*Draft, error)
	ListDrafts(ctx context.Context, filter DraftFilter) ([]*Draft, error)
	DeleteDraft(ctx context.Context, key string) error

	// Definitions
	SaveDefinition(ctx context.Context, def *schema.WorkflowDefinition) (*schema.WorkflowDefinition, error)
	GetDefinition(ctx context.Context, id string) (*schema.WorkflowDefinition, error)
	ListRevisions(ctx context.Context, workflowType string) ([]schema.WorkflowDefinition, error)
	ListDefinitions(ctx context.Context, start, length int) (*schema.DefinitionPage, error)

	// History (append-only)
	ListHistory(ctx context.Context, workflowType string, since int64) ([]*HistoryEntry, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Close() error
}

var _ Store = (*LibSQLStore)(nil)
