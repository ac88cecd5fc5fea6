package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// appendHistory writes e inside tx with the next per-type sequence. The
// caller's transaction holds the write lock, so reading MAX(sequence) and
// inserting cannot interleave with another writer.
func appendHistory(ctx context.Context, tx *sql.Tx, e *HistoryEntry) error {
	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM definition_history WHERE workflow_type = ?`, e.WorkflowType,
	).Scan(&seq); err != nil {
		return fmt.Errorf("next history sequence: %w", err)
	}
	e.Sequence = seq

	res, err := tx.ExecContext(ctx,
		`INSERT INTO definition_history (workflow_type, sequence, event_type, definition_id, revision, payload, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.WorkflowType, seq, e.Type, nullStr(e.DefinitionID), nullStr(e.Revision), nullRaw(e.Payload), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// ListHistory returns entries of workflowType with sequence > since in
// sequence order.
func (s *LibSQLStore) ListHistory(ctx context.Context, workflowType string, since int64) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_type, sequence, event_type, definition_id, revision, payload, timestamp
		 FROM definition_history WHERE workflow_type = ? AND sequence > ? ORDER BY sequence ASC`,
		workflowType, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		var defID, revision, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkflowType, &e.Sequence, &e.Type, &defID, &revision, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.DefinitionID, e.Revision = defID.String, revision.String
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, checkSequence(out, since)
}

// checkSequence reports a gap in an ordered history listing.
func checkSequence(entries []*HistoryEntry, since int64) error {
	want := since + 1
	for _, e := range entries {
		if e.Sequence != want {
			return fmt.Errorf("history gap for %s: expected sequence %d, got %d", e.WorkflowType, want, e.Sequence)
		}
		want++
	}
	return nil
}
