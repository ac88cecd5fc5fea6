package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// LibSQLStore implements Store on libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLibSQLStore opens the database at dbPath, a file URI such as
// "file:/path/to/flowcanvas.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, storeError("open database", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows, so they go through QueryRow.
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies pending migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	if err := runMigrations(ctx, s.db); err != nil {
		return storeError("migrate", err)
	}
	return nil
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Drafts ---

// PutDraft inserts or replaces the draft stored under d.Key, keeping the
// original creation time on replace.
func (s *LibSQLStore) PutDraft(ctx context.Context, d *Draft) error {
	if d.Key == "" {
		return schema.NewError(schema.ErrCodeValidation, "draft key is required")
	}
	if d.Document == nil {
		return schema.NewError(schema.ErrCodeValidation, "draft document is required")
	}
	doc, err := json.Marshal(d.Document)
	if err != nil {
		return fmt.Errorf("marshal draft document: %w", err)
	}
	now := s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.WorkflowType == "" {
		d.WorkflowType = d.Document.WorkflowType
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (key, session_id, workflow_type, definition_id, reason, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET session_id=excluded.session_id, workflow_type=excluded.workflow_type,
		   definition_id=excluded.definition_id, reason=excluded.reason, document=excluded.document,
		   updated_at=excluded.updated_at`,
		d.Key, nullStr(d.SessionID), d.WorkflowType, nullStr(d.DefinitionID), nullStr(d.Reason),
		string(doc), d.CreatedAt, d.UpdatedAt,
	)
	return err
}

const draftColumns = `key, session_id, workflow_type, definition_id, reason, document, created_at, updated_at`

func (s *LibSQLStore) GetDraft(ctx context.Context, key string) (*Draft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE key = ?`, key)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("draft", key)
	}
	return d, err
}

// ListDrafts returns drafts newest first.
func (s *LibSQLStore) ListDrafts(ctx context.Context, filter DraftFilter) ([]*Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts`
	var args []any
	if filter.WorkflowType != "" {
		query += ` WHERE workflow_type = ?`
		args = append(args, filter.WorkflowType)
	}
	query += ` ORDER BY updated_at DESC, key ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteDraft(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "draft", key)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(sc scanner) (*Draft, error) {
	d := &Draft{}
	var sessionID, definitionID, reason sql.NullString
	var doc string
	if err := sc.Scan(&d.Key, &sessionID, &d.WorkflowType, &definitionID, &reason, &doc, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.SessionID = sessionID.String
	d.DefinitionID = definitionID.String
	d.Reason = reason.String
	d.Document = &schema.WorkflowDefinition{}
	if err := json.Unmarshal([]byte(doc), d.Document); err != nil {
		return nil, fmt.Errorf("decode draft %q: %w", d.Key, err)
	}
	return d, nil
}

// --- Definitions ---

// SaveDefinition stores def as the next revision of its workflow type and
// makes it the only active one. The stored document is returned with its
// assigned id, revision and timestamps.
func (s *LibSQLStore) SaveDefinition(ctx context.Context, def *schema.WorkflowDefinition) (*schema.WorkflowDefinition, error) {
	if def == nil || def.WorkflowType == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow_type is required")
	}
	body, err := json.Marshal(graph{Nodes: nonNil(def.Nodes), Connections: nonNil(def.Connections)})
	if err != nil {
		return nil, fmt.Errorf("marshal definition graph: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision_no), 0) + 1 FROM definitions WHERE workflow_type = ?`, def.WorkflowType,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("next revision: %w", err)
	}

	previous, err := activeRevisions(ctx, tx, def.WorkflowType)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE definitions SET is_active = 0 WHERE workflow_type = ? AND is_active = 1`, def.WorkflowType,
	); err != nil {
		return nil, fmt.Errorf("deactivate revisions: %w", err)
	}

	now := s.now()
	stamp := now.Format(time.RFC3339)
	stored := &schema.WorkflowDefinition{
		ID:           uuid.NewString(),
		WorkflowType: def.WorkflowType,
		WorkflowName: def.WorkflowName,
		Revision:     fmt.Sprintf("v%d", next),
		IsActive:     true,
		CreatedAt:    stamp,
		UpdatedAt:    stamp,
		Nodes:        nonNil(def.Nodes),
		Connections:  nonNil(def.Connections),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO definitions (id, workflow_type, workflow_name, revision, revision_no, is_active, graph, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		stored.ID, stored.WorkflowType, stored.WorkflowName, stored.Revision, next, string(body), stamp, stamp,
	); err != nil {
		return nil, fmt.Errorf("insert definition: %w", err)
	}

	for _, p := range previous {
		if err := appendHistory(ctx, tx, &HistoryEntry{
			WorkflowType: def.WorkflowType, Type: HistoryDeactivated,
			DefinitionID: p.id, Revision: p.revision, Timestamp: now,
		}); err != nil {
			return nil, err
		}
	}
	payload, err := json.Marshal(map[string]any{
		"nodes":       len(stored.Nodes),
		"connections": len(stored.Connections),
		"replaces":    def.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal history payload: %w", err)
	}
	if err := appendHistory(ctx, tx, &HistoryEntry{
		WorkflowType: def.WorkflowType, Type: HistorySaved,
		DefinitionID: stored.ID, Revision: stored.Revision, Payload: payload, Timestamp: now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storeError("commit definition", err)
	}
	return stored, nil
}

type revisionRef struct{ id, revision string }

func activeRevisions(ctx context.Context, tx *sql.Tx, workflowType string) ([]revisionRef, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, revision FROM definitions WHERE workflow_type = ? AND is_active = 1`, workflowType)
	if err != nil {
		return nil, fmt.Errorf("active revisions: %w", err)
	}
	defer rows.Close()
	var out []revisionRef
	for rows.Next() {
		var r revisionRef
		if err := rows.Scan(&r.id, &r.revision); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const definitionColumns = `id, workflow_type, workflow_name, revision, is_active, graph, created_at, updated_at`

func (s *LibSQLStore) GetDefinition(ctx context.Context, id string) (*schema.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE id = ?`, id)
	def, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("definition", id)
	}
	return def, err
}

// ListRevisions returns every revision of workflowType, oldest first.
func (s *LibSQLStore) ListRevisions(ctx context.Context, workflowType string) ([]schema.WorkflowDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+definitionColumns+` FROM definitions WHERE workflow_type = ? ORDER BY revision_no ASC`, workflowType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []schema.WorkflowDefinition{}
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *def)
	}
	return out, rows.Err()
}

// ListDefinitions pages over every stored revision, most recently
// updated first.
func (s *LibSQLStore) ListDefinitions(ctx context.Context, start, length int) (*schema.DefinitionPage, error) {
	if start < 0 {
		start = 0
	}
	if length <= 0 {
		length = 10
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM definitions`).Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_type, workflow_name, revision, is_active, created_at, updated_at
		 FROM definitions ORDER BY updated_at DESC, workflow_type ASC, revision_no DESC LIMIT ? OFFSET ?`,
		length, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &schema.DefinitionPage{RecordsTotal: total, RecordsFiltered: total, Data: []schema.Summary{}}
	for rows.Next() {
		var sm schema.Summary
		var active int
		if err := rows.Scan(&sm.ID, &sm.WorkflowType, &sm.WorkflowName, &sm.Revision, &active, &sm.CreatedAt, &sm.UpdatedAt); err != nil {
			return nil, err
		}
		sm.IsActive = active == 1
		page.Data = append(page.Data, sm)
	}
	return page, rows.Err()
}

func scanDefinition(sc scanner) (*schema.WorkflowDefinition, error) {
	def := &schema.WorkflowDefinition{}
	var active int
	var body string
	if err := sc.Scan(&def.ID, &def.WorkflowType, &def.WorkflowName, &def.Revision, &active, &body, &def.CreatedAt, &def.UpdatedAt); err != nil {
		return nil, err
	}
	def.IsActive = active == 1
	var g graph
	if err := json.Unmarshal([]byte(body), &g); err != nil {
		return nil, fmt.Errorf("decode definition %q: %w", def.ID, err)
	}
	def.Nodes, def.Connections = nonNil(g.Nodes), nonNil(g.Connections)
	return def, nil
}

// --- Helpers ---

// storeError marks a database failure so callers can tell it from bad input.
func storeError(op string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeStore, "store: %s", op).WithCause(err)
}

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
