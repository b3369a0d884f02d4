package data

import (
	"context"
	"testing"

	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/statement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ledger.Store = (*Store)(nil)

func testTransactions() []*statement.Transaction {
	return []*statement.Transaction{
		{Date: "2024-01-02", Description: "Posto Shell", Amount: -50, HasAmount: true, Account: "Nubank", Category: "Combustivel", Subcategory: "Combustivel", MerchantKey: "posto shell", Method: classify.MethodRule},
		{Date: "2024-01-01", Description: "Bar do Ze", Amount: -5.5, HasAmount: true, Account: "Nubank", Category: "Lazer", Method: classify.MethodRule},
		{Date: "2024-01-03", Description: "Salario", Account: "Itau", Category: classify.Unclassified, Method: classify.MethodUnclassified},
	}
}

func TestStore_Rules(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t), DialectSQLite)

	rules, err := s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	in := classify.DefaultRules()
	in[0].Active = false
	require.NoError(t, s.ReplaceRules(ctx, in))

	rules, err = s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, rules)

	require.NoError(t, s.ReplaceRules(ctx, in[:2]))
	rules, err = s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestStore_AppendTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t), DialectSQLite)
	s.Source = "jan.csv"

	res, err := s.AppendTransactions(ctx, testTransactions())
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionAppend, res.Action)
	assert.Equal(t, 3, res.New)
	assert.Equal(t, 0, res.Duplicates)
	assert.NotEmpty(t, res.BatchID)

	res, err = s.AppendTransactions(ctx, testTransactions())
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionSkip, res.Action)
	assert.Equal(t, 3, res.Duplicates)

	batches, err := s.ListBatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "jan.csv", batches[0].Source)
}

func TestStore_AppendTransactions_Empty(t *testing.T) {
	s := NewStore(setupTestDB(t), DialectSQLite)
	res, err := s.AppendTransactions(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionNone, res.Action)
}

func TestStore_ListTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t), DialectSQLite)
	_, err := s.AppendTransactions(ctx, testTransactions())
	require.NoError(t, err)

	all, err := s.ListTransactions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-01-01", all[0].Date)
	assert.Equal(t, "posto shell", all[1].MerchantKey)
	assert.True(t, all[1].HasAmount)
	assert.InDelta(t, -50, all[1].Amount, 0.0001)
	assert.False(t, all[2].HasAmount)

	sel, err := s.ListTransactions(ctx, &ledger.Filter{Categories: []string{"Lazer", "Combustivel"}})
	require.NoError(t, err)
	assert.Len(t, sel, 2)

	acc, err := s.ListTransactions(ctx, &ledger.Filter{Account: "itau"})
	require.NoError(t, err)
	require.Len(t, acc, 1)
	assert.Equal(t, "Salario", acc[0].Description)

	lim, err := s.ListTransactions(ctx, &ledger.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, lim, 1)
}

func TestStore_NilDB(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, DialectSQLite)

	_, err := s.LoadRules(ctx)
	assert.Error(t, err)
	assert.Error(t, s.ReplaceRules(ctx, nil))
	_, err = s.AppendTransactions(ctx, testTransactions())
	assert.Error(t, err)
	_, err = s.ListTransactions(ctx, nil)
	assert.Error(t, err)
}
