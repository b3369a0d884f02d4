package ledger

import (
	"context"
	"slices"
	"sync"
)

// MemoryTable is an in-process Table.
type MemoryTable struct {
	mu   sync.Mutex
	rows [][]string
}

// NewMemoryTable returns a table seeded with a copy of rows.
func NewMemoryTable(rows ...[]string) *MemoryTable {
	t := &MemoryTable{}
	for _, r := range rows {
		t.rows = append(t.rows, slices.Clone(r))
	}
	return t
}

func (t *MemoryTable) Rows(_ context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = slices.Clone(r)
	}
	return out, nil
}

func (t *MemoryTable) Append(_ context.Context, rows [][]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rows {
		t.rows = append(t.rows, slices.Clone(r))
	}
	return nil
}

func (t *MemoryTable) Clear(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = nil
	return nil
}
