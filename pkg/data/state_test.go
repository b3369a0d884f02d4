package data

import (
	"context"
	"testing"

	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDataState_Empty(t *testing.T) {
	db := setupTestDB(t)
	state, err := GetDataState(db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state["rule"])
	assert.Equal(t, int64(0), state["transaction"])
	assert.Equal(t, int64(0), state["batch"])
}

func TestGetDataState_NilDB(t *testing.T) {
	_, err := GetDataState(nil)
	assert.Error(t, err)
}

func TestGetDataState_AfterSave(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	s := NewStore(db, DialectSQLite)

	require.NoError(t, s.ReplaceRules(ctx, classify.DefaultRules()))
	_, err := s.AppendTransactions(ctx, testTransactions())
	require.NoError(t, err)

	state, err := GetDataState(db)
	require.NoError(t, err)
	assert.Equal(t, int64(len(classify.DefaultRules())), state["rule"])
	assert.Equal(t, int64(3), state["transaction"])
	assert.Equal(t, int64(3), state["category"])
	assert.Equal(t, int64(1), state["batch"])
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	s := NewStore(db, DialectSQLite)

	require.NoError(t, s.ReplaceRules(ctx, classify.DefaultRules()))
	_, err := s.AppendTransactions(ctx, testTransactions())
	require.NoError(t, err)

	require.NoError(t, Clear(ctx, db))

	state, err := GetDataState(db)
	require.NoError(t, err)
	for k, v := range state {
		assert.Zero(t, v, k)
	}
}

func TestClear_NilDB(t *testing.T) {
	assert.Error(t, Clear(context.Background(), nil))
}
