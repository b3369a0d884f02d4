package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/config"
	"github.com/mchmarny/expctl/pkg/data"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/statement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	api    *api
	router *gin.Engine
	clock  time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, &ledger.TableStore{
		Rules:        ledger.NewMemoryTable(),
		Transactions: ledger.NewMemoryTable(),
	})
}

func newTestServerWith(t *testing.T, store ledger.Store) *testServer {
	t.Helper()
	ts := &testServer{clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	ts.api = newAPI(store, nil, &appConfig{Config: config.Default()})
	ts.api.now = func() time.Time { return ts.clock }
	ts.router = ts.api.router(false)
	return ts
}

func (ts *testServer) do(method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestAPI_Health(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAPI_Rules(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/rules", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(http.MethodPut, "/api/rules", "application/json", []byte(`[{"pattern":"re:(","categoria":"X","subcategoria":"X","prioridade":1,"ativo":true}]`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPut, "/api/rules", "application/json", []byte(`{"not":"a list"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, err := json.Marshal(classify.DefaultRules())
	require.NoError(t, err)
	w = ts.do(http.MethodPut, "/api/rules", "application/json", body)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/rules", "", nil)
	var list []*classify.RuleSpec
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, classify.DefaultRules(), list)
}

func TestAPI_Classify(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/classify", "text/csv", []byte(statementCSV))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result       ClassifyResult           `json:"result"`
		Transactions []*statement.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Result.Transactions)
	assert.Equal(t, 1, resp.Result.Unclassified)
	require.Len(t, resp.Transactions, 4)
	assert.Equal(t, "Brita", resp.Transactions[2].Category)

	// defaults were seeded on first use
	w = ts.do(http.MethodGet, "/api/rules", "", nil)
	var rules []*classify.RuleSpec
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	assert.Len(t, rules, len(classify.DefaultRules()))

	w = ts.do(http.MethodPost, "/api/classify?format=csv", "text/csv", []byte(statementCSV))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), downloadFileName)
	assert.True(t, strings.HasPrefix(w.Body.String(), "data,valor,"))

	w = ts.do(http.MethodPost, "/api/classify", "text/csv", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_ClassifyMultipart(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(uploadFormField, "jan.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(statementCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := ts.do(http.MethodPost, "/api/classify?account=Itau", mw.FormDataContentType(), body.Bytes())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"jan.csv"`)
	assert.Contains(t, w.Body.String(), `"conta":"Itau"`)
}

func TestAPI_SaveCooldownAndReport(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/transactions", "text/csv", []byte(statementCSV))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res ClassifyResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotNil(t, res.Saved)
	assert.Equal(t, 4, res.Saved.New)
	assert.NotEmpty(t, res.Saved.BatchID)

	w = ts.do(http.MethodPost, "/api/transactions", "text/csv", []byte(statementCSV))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))

	ts.clock = ts.clock.Add(saveCooldown)
	w = ts.do(http.MethodPost, "/api/transactions", "text/csv", []byte(statementCSV))
	require.Equal(t, http.StatusOK, w.Code)
	res = ClassifyResult{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, ledger.ActionSkip, res.Saved.Action)

	w = ts.do(http.MethodGet, "/api/transactions?category=Brita", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []*statement.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Pedreira São Francisco", list[0].Description)

	w = ts.do(http.MethodGet, "/api/transactions?limit=2", "", nil)
	list = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = ts.do(http.MethodGet, "/api/report", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rep Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, 4, rep.Summary.Count)
	assert.Equal(t, 1, rep.Summary.Unclassified)
	assert.NotEmpty(t, rep.Categories)

	w = ts.do(http.MethodGet, "/api/report?category=Viagem", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/report/chart?kind=percent", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = ts.do(http.MethodGet, "/api/report/chart?kind=pie", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type brokenStore struct{}

var errStoreDown = errors.New("store unavailable")

func (brokenStore) LoadRules(context.Context) ([]*classify.RuleSpec, error) {
	return nil, errStoreDown
}

func (brokenStore) ReplaceRules(context.Context, []*classify.RuleSpec) error {
	return errStoreDown
}

func (brokenStore) AppendTransactions(context.Context, []*statement.Transaction) (*ledger.AppendResult, error) {
	return nil, errStoreDown
}

func (brokenStore) ListTransactions(context.Context, *ledger.Filter) ([]*statement.Transaction, error) {
	return nil, errStoreDown
}

func TestAPI_StoreFailureIsServerError(t *testing.T) {
	ts := newTestServerWith(t, brokenStore{})

	w := ts.do(http.MethodPost, "/api/classify", "text/csv", []byte(statementCSV))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), errStoreDown.Error())

	w = ts.do(http.MethodPost, "/api/transactions", "text/csv", []byte(statementCSV))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = ts.do(http.MethodPost, "/api/classify", "text/csv", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/batches", "", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestAPI_FailedSaveKeepsNoCooldown(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/transactions", "text/csv", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/transactions", "text/csv", []byte(statementCSV))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAPI_SaveDoesNotBlockDuringUpload(t *testing.T) {
	ts := newTestServer(t)

	pr, pw := io.Pipe()
	slow := httptest.NewRequest(http.MethodPost, "/api/transactions", pr)
	slow.Header.Set("Content-Type", "text/csv")
	slowRec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.router.ServeHTTP(slowRec, slow)
	}()

	require.Eventually(t, func() bool {
		ts.api.mu.Lock()
		defer ts.api.mu.Unlock()
		return !ts.api.lastSave.IsZero()
	}, 5*time.Second, 10*time.Millisecond)

	w := ts.do(http.MethodPost, "/api/transactions", "text/csv", []byte(statementCSV))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "try again in")

	_, err := pw.Write([]byte(statementCSV))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	<-done
	assert.Equal(t, http.StatusOK, slowRec.Code, slowRec.Body.String())
}

func TestAPI_Batches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expctl.db")
	require.NoError(t, data.Init(path))
	db, err := data.GetDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := newTestServerWith(t, data.NewStore(db, data.DialectSQLite))

	w := ts.do(http.MethodGet, "/api/batches", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(http.MethodPost, "/api/transactions", "text/csv", []byte(statementCSV))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(http.MethodGet, "/api/batches?limit=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []*data.Batch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "upload.csv", list[0].Source)
	assert.Equal(t, 4, list[0].New)
}

func TestQueryAsInt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		q    string
		want int
	}{
		{"", 10},
		{"limit=3", 3},
		{"limit=abc", 10},
		{"limit=-1", 10},
		{"limit=999999", transactionLimitMax},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.q, nil)
			assert.Equal(t, tt.want, queryAsInt(c, "limit", 10))
		})
	}
}
