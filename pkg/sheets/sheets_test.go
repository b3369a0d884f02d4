package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/statement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

var _ ledger.Table = (*Tab)(nil)

type fakeAPI struct {
	mu    sync.Mutex
	title string
	tabs  map[string][][]string
	err   error
}

func newFakeAPI(tabs ...string) *fakeAPI {
	f := &fakeAPI{title: "Gastos", tabs: map[string][][]string{}}
	for _, t := range tabs {
		f.tabs["'"+t+"'"] = nil
	}
	return f
}

func (f *fakeAPI) get(_ context.Context, _, rng string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]string, len(f.tabs[rng]))
	copy(out, f.tabs[rng])
	return out, nil
}

func (f *fakeAPI) append(_ context.Context, _, rng string, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tabs[rng] = append(f.tabs[rng], rows...)
	return nil
}

func (f *fakeAPI) clear(_ context.Context, _, rng string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tabs[rng] = nil
	return nil
}

func (f *fakeAPI) meta(_ context.Context, _ string) (string, []string, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	tabs := make([]string, 0, len(f.tabs))
	for k := range f.tabs {
		tabs = append(tabs, strings.Trim(k, "'"))
	}
	return f.title, tabs, nil
}

func testClient(f *fakeAPI) *Client {
	return newClient(f, Config{SpreadsheetID: "sheet-1"})
}

func TestStore_Rules(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI("db", "config")
	s := testClient(f).Store()

	rules, err := s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	require.NoError(t, s.ReplaceRules(ctx, classify.DefaultRules()))
	assert.Equal(t, classify.RuleColumns, f.tabs["'config'"][0])

	rules, err = s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, classify.DefaultRules(), rules)
}

func TestStore_Transactions(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI("db", "config")
	s := testClient(f).Store()

	txs := []*statement.Transaction{
		{Date: "2024-01-01", Description: "Bar do Ze", Amount: -5.5, HasAmount: true, Account: "Nubank", Category: "Lazer"},
		{Date: "2024-01-02", Description: "Padaria", Amount: -12, HasAmount: true, Account: "Nubank", Category: classify.Unclassified},
	}

	res, err := s.AppendTransactions(ctx, txs)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionOverwriteEmpty, res.Action)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, statement.LedgerColumns, f.tabs["'db'"][0])

	res, err = s.AppendTransactions(ctx, txs)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionSkip, res.Action)
	assert.Equal(t, 2, res.Duplicates)

	list, err := s.ListTransactions(ctx, &ledger.Filter{Categories: []string{"Lazer"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bar do Ze", list[0].Description)
}

func TestTab_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFakeAPI("db")
	f.err = errors.New("quota")
	tab := testClient(f).Tab("db")

	_, err := tab.Rows(ctx)
	assert.ErrorContains(t, err, "quota")
	assert.Error(t, tab.Append(ctx, [][]string{{"a"}}))
	assert.NoError(t, tab.Append(ctx, nil))
	assert.Error(t, tab.Clear(ctx))
}

func TestTab_Range(t *testing.T) {
	tab := &Tab{name: "it's"}
	assert.Equal(t, "'it''s'", tab.rng())
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	r, err := testClient(newFakeAPI("db", "config")).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Gastos", r.Title)
	assert.True(t, r.OK())

	r, err = testClient(newFakeAPI("db")).Check(ctx)
	require.NoError(t, err)
	assert.False(t, r.ConfigTabFound)
	assert.False(t, r.OK())

	f := newFakeAPI()
	f.err = errors.New("not found")
	_, err = testClient(f).Check(ctx)
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, Config{}, nil)
	assert.ErrorIs(t, err, ErrNoSpreadsheet)

	_, err = New(ctx, Config{SpreadsheetID: "x"}, []byte(`{"type":"authorized_user"}`))
	assert.Error(t, err)
}

func TestService_HTTP(t *testing.T) {
	var (
		mu       sync.Mutex
		appended [][]any
		cleared  bool
		inputOpt string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":append"):
			inputOpt = r.URL.Query().Get("valueInputOption")
			var vr struct {
				Values [][]any `json:"values"`
			}
			b, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(b, &vr)
			appended = vr.Values
			_, _ = w.Write([]byte(`{}`))
		case strings.HasSuffix(r.URL.Path, ":clear"):
			cleared = true
			_, _ = w.Write([]byte(`{}`))
		case strings.Contains(r.URL.Path, "/values/"):
			_, _ = w.Write([]byte(`{"values":[["data","valor"],["2024-01-01",-5.5]]}`))
		default:
			_, _ = w.Write([]byte(`{"properties":{"title":"Gastos"},"sheets":[{"properties":{"title":"db"}},{"properties":{"title":"config"}}]}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c, err := NewWithHTTPClient(ctx, Config{SpreadsheetID: "sheet-1"}, srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	rows, err := c.Tab("db").Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"data", "valor"}, {"2024-01-01", "-5.5"}}, rows)

	require.NoError(t, c.Tab("db").Append(ctx, [][]string{{"2024-01-02", "-1.0"}}))
	require.NoError(t, c.Tab("db").Clear(ctx))

	r, err := c.Check(ctx)
	require.NoError(t, err)
	assert.True(t, r.OK())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]any{{"2024-01-02", "-1.0"}}, appended)
	assert.Equal(t, valueInputOption, inputOpt)
	assert.True(t, cleared)
}
