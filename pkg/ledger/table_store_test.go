package ledger

import (
	"context"
	"testing"

	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/statement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTableStore() *TableStore {
	return &TableStore{Rules: NewMemoryTable(), Transactions: NewMemoryTable()}
}

func TestTableStore_Rules(t *testing.T) {
	ctx := context.Background()
	s := newTableStore()

	rules, err := s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	require.NoError(t, s.ReplaceRules(ctx, classify.DefaultRules()))
	rules, err = s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, classify.DefaultRules(), rules)

	require.NoError(t, s.ReplaceRules(ctx, nil))
	rules, err = s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestTableStore_Transactions(t *testing.T) {
	ctx := context.Background()
	s := newTableStore()

	txs := []*statement.Transaction{
		{Date: "2024-01-01", Description: "Bar", Amount: -5, HasAmount: true, Account: "Nubank", Category: "Lazer"},
		{Date: "2024-01-02", Description: "Posto", Amount: -50, HasAmount: true, Account: "Nubank", Category: "Combustivel"},
		{Date: "2024-01-03", Description: "Salario", Amount: 3000, HasAmount: true, Account: "Itau", Category: classify.Unclassified},
	}

	res, err := s.AppendTransactions(ctx, txs)
	require.NoError(t, err)
	assert.Equal(t, ActionOverwriteEmpty, res.Action)
	assert.Equal(t, 3, res.New)

	all, err := s.ListTransactions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Posto", all[1].Description)
	assert.InDelta(t, -50, all[1].Amount, 0.001)

	lazer, err := s.ListTransactions(ctx, &Filter{Categories: []string{"Lazer"}})
	require.NoError(t, err)
	require.Len(t, lazer, 1)

	limited, err := s.ListTransactions(ctx, &Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	itau, err := s.ListTransactions(ctx, &Filter{Account: "itau"})
	require.NoError(t, err)
	assert.Len(t, itau, 1)
}
