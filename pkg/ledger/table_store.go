package ledger

import (
	"context"
	"fmt"

	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/statement"
)

// TableStore is a Store backed by two tables: one holding the rule table,
// the other the transaction ledger.
type TableStore struct {
	Rules        Table
	Transactions Table
}

func (s *TableStore) LoadRules(ctx context.Context) ([]*classify.RuleSpec, error) {
	rows, err := s.Rules.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	if len(rows) < 2 {
		return []*classify.RuleSpec{}, nil
	}
	return classify.ParseRuleTable(rows[0], rows[1:])
}

func (s *TableStore) ReplaceRules(ctx context.Context, rules []*classify.RuleSpec) error {
	return Overwrite(ctx, s.Rules, classify.RuleColumns, classify.RuleTable(rules))
}

func (s *TableStore) AppendTransactions(ctx context.Context, txs []*statement.Transaction) (*AppendResult, error) {
	return AppendDedup(ctx, s.Transactions, statement.LedgerColumns, TransactionRows(txs), statement.ColTxID)
}

func (s *TableStore) ListTransactions(ctx context.Context, f *Filter) ([]*statement.Transaction, error) {
	rows, err := s.Transactions.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading transactions: %w", err)
	}
	if len(rows) < 2 {
		return []*statement.Transaction{}, nil
	}

	st, err := statement.FromTable(rows[0], rows[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("parsing transactions: %w", err)
	}

	list := make([]*statement.Transaction, 0, len(st.Transactions))
	for _, tx := range st.Transactions {
		if !f.Match(tx) {
			continue
		}
		list = append(list, tx)
		if f != nil && f.Limit > 0 && len(list) >= f.Limit {
			break
		}
	}
	return list, nil
}
