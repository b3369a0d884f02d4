package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	stateQueries = map[string]string{
		"rule":        "SELECT COUNT(*) FROM rule",
		"transaction": "SELECT COUNT(*) FROM ledger",
		"category":    "SELECT COUNT(DISTINCT categoria) FROM ledger",
		"batch":       "SELECT COUNT(*) FROM import_batch",
	}

	clearQueries = []string{
		"DELETE FROM ledger",
		"DELETE FROM import_batch",
		"DELETE FROM rule",
	}

	selectBatchesSQL = `SELECT id, source, created_at, new_count, dup_count
		FROM import_batch
		ORDER BY created_at DESC
		LIMIT ?
	`
)

// Batch is one recorded save into the ledger.
type Batch struct {
	ID         string `json:"id" yaml:"id"`
	Source     string `json:"source,omitempty" yaml:"source,omitempty"`
	CreatedAt  string `json:"created_at" yaml:"createdAt"`
	New        int    `json:"new" yaml:"new"`
	Duplicates int    `json:"duplicates" yaml:"duplicates"`
}

// GetDataState returns the current state of the database.
func GetDataState(db *sql.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64)
	for k, v := range stateQueries {
		var count int64
		err := db.QueryRow(v).Scan(&count)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("error getting %s count: %w", k, err)
		}
		state[k] = count
	}

	return state, nil
}

// ListBatches returns the most recent import batches.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]*Batch, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, s.q(selectBatchesSQL), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute batch select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*Batch, 0)
	for rows.Next() {
		b := &Batch{}
		if err := rows.Scan(&b.ID, &b.Source, &b.CreatedAt, &b.New, &b.Duplicates); err != nil {
			return nil, fmt.Errorf("failed to scan batch row: %w", err)
		}
		list = append(list, b)
	}

	return list, rows.Err()
}

// Clear deletes all rules, transactions and batches.
func Clear(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errDBNotInitialized
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, q := range clearQueries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute %q: %w", q, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
