// Package ledger defines where rules and classified transactions are kept
// and implements the header-driven, ID-deduplicated append used by
// spreadsheet-like backends.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/statement"
)

const (
	ActionNone                   = "none"
	ActionOverwriteEmpty         = "overwrite_empty"
	ActionOverwriteInvalidHeader = "overwrite_invalid_header"
	ActionAppend                 = "append"
	ActionSkip                   = "skip"
)

var (
	ErrMissingIDColumn = errors.New("ledger header has no id column")
	ErrMissingColumns  = errors.New("rows are missing columns required by the ledger header")
)

// AppendResult summarizes a deduplicated append.
type AppendResult struct {
	Action     string `json:"action" yaml:"action"`
	New        int    `json:"new" yaml:"new"`
	Duplicates int    `json:"duplicates" yaml:"duplicates"`
	BatchID    string `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
}

// Filter narrows ListTransactions.
type Filter struct {
	Categories []string
	Account    string
	Limit      int
}

// Match reports whether the transaction passes the filter (Limit aside).
func (f *Filter) Match(tx *statement.Transaction) bool {
	if f == nil {
		return true
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, tx.Category) {
		return false
	}
	if f.Account != "" && !strings.EqualFold(f.Account, tx.Account) {
		return false
	}
	return true
}

// Store keeps the rule table and the classified transaction ledger.
type Store interface {
	LoadRules(ctx context.Context) ([]*classify.RuleSpec, error)
	ReplaceRules(ctx context.Context, rules []*classify.RuleSpec) error
	AppendTransactions(ctx context.Context, txs []*statement.Transaction) (*AppendResult, error)
	ListTransactions(ctx context.Context, f *Filter) ([]*statement.Transaction, error)
}

// Table is a grid of string cells whose first row is the header.
type Table interface {
	Rows(ctx context.Context) ([][]string, error)
	Append(ctx context.Context, rows [][]string) error
	Clear(ctx context.Context) error
}

func project(columns []string, rows []map[string]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		line := make([]string, len(columns))
		for i, c := range columns {
			line[i] = r[c]
		}
		out = append(out, line)
	}
	return out
}

func writeAll(ctx context.Context, t Table, columns []string, rows []map[string]string) error {
	if err := t.Clear(ctx); err != nil {
		return fmt.Errorf("clearing table: %w", err)
	}
	grid := append([][]string{slices.Clone(columns)}, project(columns, rows)...)
	if err := t.Append(ctx, grid); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	return nil
}

// AppendDedup appends rows whose idCol value is not yet in the table. An
// empty table, or one with a blank header, is overwritten with columns as
// the header. Otherwise rows are laid out by the existing header, which
// must include idCol.
func AppendDedup(ctx context.Context, t Table, columns []string, rows []map[string]string, idCol string) (*AppendResult, error) {
	if len(rows) == 0 {
		return &AppendResult{Action: ActionNone}, nil
	}

	rows, batchDups := uniqueByID(rows, idCol)

	current, err := t.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}

	if len(current) == 0 {
		if err := writeAll(ctx, t, columns, rows); err != nil {
			return nil, err
		}
		return &AppendResult{Action: ActionOverwriteEmpty, New: len(rows), Duplicates: batchDups}, nil
	}

	header := make([]string, len(current[0]))
	valid := false
	for i, h := range current[0] {
		header[i] = strings.TrimSpace(h)
		if header[i] != "" {
			valid = true
		}
	}

	if !valid {
		if err := writeAll(ctx, t, columns, rows); err != nil {
			return nil, err
		}
		return &AppendResult{Action: ActionOverwriteInvalidHeader, New: len(rows), Duplicates: batchDups}, nil
	}

	idIndex := slices.Index(header, idCol)
	if idIndex < 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrMissingIDColumn, idCol)
	}

	existing := make(map[string]struct{}, len(current))
	for _, r := range current[1:] {
		if idIndex < len(r) {
			if v := strings.TrimSpace(r[idIndex]); v != "" {
				existing[v] = struct{}{}
			}
		}
	}

	fresh := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		if _, dup := existing[strings.TrimSpace(r[idCol])]; dup {
			continue
		}
		fresh = append(fresh, r)
	}

	dups := batchDups + len(rows) - len(fresh)
	if len(fresh) == 0 {
		return &AppendResult{Action: ActionSkip, Duplicates: dups}, nil
	}

	var missing []string
	for _, h := range header {
		if _, ok := fresh[0][h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingColumns, missing)
	}

	if err := t.Append(ctx, project(header, fresh)); err != nil {
		return nil, fmt.Errorf("appending rows: %w", err)
	}

	return &AppendResult{Action: ActionAppend, New: len(fresh), Duplicates: dups}, nil
}

// uniqueByID drops rows repeating an earlier row's id. Rows without an id are kept.
func uniqueByID(rows []map[string]string, idCol string) ([]map[string]string, int) {
	seen := make(map[string]struct{}, len(rows))
	out := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		id := strings.TrimSpace(r[idCol])
		if id != "" {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, r)
	}
	return out, len(rows) - len(out)
}

// Overwrite replaces the table content with columns and rows.
func Overwrite(ctx context.Context, t Table, columns []string, rows [][]string) error {
	if err := t.Clear(ctx); err != nil {
		return fmt.Errorf("clearing table: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	grid := append([][]string{slices.Clone(columns)}, rows...)
	if err := t.Append(ctx, grid); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	return nil
}

// TransactionRows renders transactions as ledger rows keyed by column.
func TransactionRows(txs []*statement.Transaction) []map[string]string {
	rows := make([]map[string]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, statement.LedgerRow(tx))
	}
	return rows
}
