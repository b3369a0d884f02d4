package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/statement"
)

const (
	deleteRulesSQL = `DELETE FROM rule`

	insertRuleSQL = `INSERT INTO rule (pos, pattern, categoria, subcategoria, prioridade, ativo)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	selectRulesSQL = `SELECT pattern, categoria, subcategoria, prioridade, ativo
		FROM rule
		ORDER BY pos
	`

	insertLedgerSQL = `INSERT INTO ledger (tx_id, data, valor, descricao, conta, categoria,
			subcategoria, merchant_key, metodo, created_at, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tx_id) DO NOTHING
	`

	insertBatchSQL = `INSERT INTO import_batch (id, source, created_at, new_count, dup_count)
		VALUES (?, ?, ?, ?, ?)
	`

	selectLedgerSQL = `SELECT data, valor, descricao, conta, categoria, subcategoria, merchant_key, metodo
		FROM ledger
	`
)

// Store keeps rules and the transaction ledger in a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	// Source labels import batches, e.g. the statement file name.
	Source string
}

// NewStore wraps an open database.
func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

func (s *Store) q(query string) string {
	return rebind(s.dialect, query)
}

// LoadRules returns the stored rule table in its saved order.
func (s *Store) LoadRules(ctx context.Context) ([]*classify.RuleSpec, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, selectRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to execute rule select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*classify.RuleSpec, 0)
	for rows.Next() {
		r := &classify.RuleSpec{}
		var active int
		if err := rows.Scan(&r.Pattern, &r.Category, &r.Subcategory, &r.Priority, &active); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		r.Active = active != 0
		list = append(list, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule rows: %w", err)
	}

	return list, nil
}

// ReplaceRules overwrites the rule table.
func (s *Store) ReplaceRules(ctx context.Context, rules []*classify.RuleSpec) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, deleteRulesSQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.q(insertRuleSQL))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare rule insert statement: %w", err)
	}
	defer stmt.Close()

	pos := 0
	for _, r := range rules {
		if r == nil {
			continue
		}
		pos++
		active := 0
		if r.Active {
			active = 1
		}
		if _, err := stmt.ExecContext(ctx, pos, strings.TrimSpace(r.Pattern), strings.TrimSpace(r.Category),
			strings.TrimSpace(r.Subcategory), r.Priority, active); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert rule %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("rules saved", "count", pos)
	return nil
}

// AppendTransactions inserts transactions not yet in the ledger and records
// the import batch.
func (s *Store) AppendTransactions(ctx context.Context, txs []*statement.Transaction) (*ledger.AppendResult, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	if len(txs) == 0 {
		return &ledger.AppendResult{Action: ledger.ActionNone}, nil
	}

	batchID := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.q(insertLedgerSQL))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to prepare ledger insert statement: %w", err)
	}
	defer stmt.Close()

	res := &ledger.AppendResult{BatchID: batchID}
	for _, t := range txs {
		amount := sql.NullFloat64{Float64: t.Amount, Valid: t.HasAmount}
		r, err := stmt.ExecContext(ctx, statement.TxID(t), t.Date, amount, t.Description, t.Account,
			t.Category, t.Subcategory, t.MerchantKey, t.Method, now, batchID)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to insert transaction: %w", err)
		}

		n, err := r.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n > 0 {
			res.New++
		} else {
			res.Duplicates++
		}
	}

	if _, err := tx.ExecContext(ctx, s.q(insertBatchSQL), batchID, s.Source, now, res.New, res.Duplicates); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to insert import batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	res.Action = ledger.ActionAppend
	if res.New == 0 {
		res.Action = ledger.ActionSkip
	}

	slog.Debug("transactions saved", "batch", batchID, "new", res.New, "duplicates", res.Duplicates)
	return res, nil
}

// ListTransactions returns ledger entries ordered by date.
func (s *Store) ListTransactions(ctx context.Context, flt *ledger.Filter) ([]*statement.Transaction, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	var (
		where []string
		args  []any
	)

	if flt != nil {
		if len(flt.Categories) > 0 {
			marks := make([]string, len(flt.Categories))
			for i, c := range flt.Categories {
				marks[i] = "?"
				args = append(args, c)
			}
			where = append(where, "categoria IN ("+strings.Join(marks, ", ")+")")
		}
		if flt.Account != "" {
			where = append(where, "LOWER(conta) = LOWER(?)")
			args = append(args, flt.Account)
		}
	}

	query := selectLedgerSQL
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY data, created_at, tx_id"
	if flt != nil && flt.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, flt.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute ledger select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*statement.Transaction, 0)
	for rows.Next() {
		t := &statement.Transaction{}
		var amount sql.NullFloat64
		if err := rows.Scan(&t.Date, &amount, &t.Description, &t.Account, &t.Category,
			&t.Subcategory, &t.MerchantKey, &t.Method); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		t.Amount, t.HasAmount = amount.Float64, amount.Valid
		list = append(list, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger rows: %w", err)
	}

	return list, nil
}
