package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/data"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/report"
	"github.com/mchmarny/expctl/pkg/statement"
)

const (
	uploadFormField      = "file"
	downloadFileName     = "gastos_classificados.csv"
	maxUploadBytes       = 32 << 20
	transactionLimitMax  = 5000
	transactionLimitBase = 500
	batchLimitBase       = 20
)

var (
	errNoUpload   = errors.New("no statement in request, send CSV as body or multipart field 'file'")
	errBadRequest = errors.New("bad request")
)

// batchLister is implemented by stores that record import batches.
type batchLister interface {
	ListBatches(ctx context.Context, limit int) ([]*data.Batch, error)
}

// badRequest marks err as caused by the client.
func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

// abortWithError answers 400 for client errors and 500 for everything else.
func abortWithError(c *gin.Context, msg string, err error) {
	if errors.Is(err, errBadRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slog.Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func (a *api) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version,
		"store":   a.cfg.Config.Store,
	})
}

func (a *api) rulesHandler(c *gin.Context) {
	specs, err := a.store.LoadRules(c.Request.Context())
	if err != nil {
		slog.Error("failed to load rules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error loading rules"})
		return
	}
	c.JSON(http.StatusOK, specs)
}

func (a *api) replaceRulesHandler(c *gin.Context) {
	var specs []*classify.RuleSpec
	if err := c.ShouldBindJSON(&specs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error binding json: " + err.Error()})
		return
	}
	if _, err := classify.CompileRules(specs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.store.ReplaceRules(c.Request.Context(), specs); err != nil {
		slog.Error("failed to save rules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error saving rules"})
		return
	}
	c.JSON(http.StatusOK, newRulesResult("api", specs))
}

// readUpload returns the statement CSV from a multipart file field or the
// raw request body.
func readUpload(c *gin.Context) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile(uploadFormField)
		if err != nil {
			return "", nil, errNoUpload
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		return fh.Filename, b, err
	}

	b, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return "", nil, errNoUpload
	}
	return "upload.csv", b, nil
}

func (a *api) statementOptions(c *gin.Context) *statement.Options {
	opts := &statement.Options{
		Account:           a.cfg.Config.Account,
		DescriptionColumn: a.cfg.Config.DescriptionColumn,
	}
	if v := c.Query("account"); v != "" {
		opts.Account = v
	}
	if v := c.Query("column"); v != "" {
		opts.DescriptionColumn = v
	}
	return opts
}

// uploadedStatement parses and, unless already classified, classifies the upload.
func (a *api) uploadedStatement(c *gin.Context) (*statement.Statement, int, error) {
	name, b, err := readUpload(c)
	if err != nil {
		return nil, 0, badRequest(err)
	}
	st, err := statement.Read(bytes.NewReader(b), a.statementOptions(c))
	if err != nil {
		return nil, 0, badRequest(err)
	}
	st.Source = name

	if isClassified(st) && c.Query("reclassify") != "true" {
		return st, 0, nil
	}

	classifier, err := newClassifier(c.Request.Context(), a.store, "")
	if err != nil {
		return nil, 0, err
	}
	st.Classify(classifier)
	return st, len(classifier.Rules()), nil
}

func (a *api) classifyHandler(c *gin.Context) {
	st, rules, err := a.uploadedStatement(c)
	if err != nil {
		abortWithError(c, "error classifying statement", err)
		return
	}

	if c.Query("format") == "csv" {
		var buf bytes.Buffer
		if err := statement.Write(&buf, st); err != nil {
			slog.Error("failed to render csv", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "error rendering csv"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+downloadFileName+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}

	res := &ClassifyResult{Files: []string{st.Source}, Rules: rules}
	res.count(st)
	c.JSON(http.StatusOK, gin.H{
		"result":       res,
		"transactions": st.Transactions,
	})
}

// reserveSave stamps the save time when the cooldown has passed and returns
// the stamp and the one it replaced. Otherwise it returns the remaining wait.
func (a *api) reserveSave() (stamp, prev time.Time, wait time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if wait := a.cooldown - now.Sub(a.lastSave); !a.lastSave.IsZero() && wait > 0 {
		return time.Time{}, time.Time{}, wait
	}
	prev, a.lastSave = a.lastSave, now
	return now, prev, 0
}

// releaseSave drops a reservation whose save did not happen.
func (a *api) releaseSave(stamp, prev time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastSave.Equal(stamp) {
		a.lastSave = prev
	}
}

func (a *api) saveHandler(c *gin.Context) {
	stamp, prev, wait := a.reserveSave()
	if wait > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "saved recently, try again in " + wait.Round(time.Second).String()})
		return
	}

	st, _, err := a.uploadedStatement(c)
	if err != nil {
		a.releaseSave(stamp, prev)
		abortWithError(c, "error reading statement", err)
		return
	}

	saved, obj, err := saveStatement(c.Request.Context(), a.store, a.archive, st)
	if err != nil {
		a.releaseSave(stamp, prev)
		slog.Error("failed to save transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error saving transactions"})
		return
	}

	res := &ClassifyResult{Files: []string{st.Source}, Saved: saved, Archived: obj}
	res.count(st)
	c.JSON(http.StatusOK, res)
}

func queryAsInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 1 {
		slog.Debug("invalid int query parameter", "key", key, "value", v)
		return def
	}
	return min(i, transactionLimitMax)
}

func (a *api) filter(c *gin.Context) *ledger.Filter {
	return &ledger.Filter{
		Categories: c.QueryArray("category"),
		Account:    c.Query("account"),
	}
}

func (a *api) transactionsHandler(c *gin.Context) {
	flt := a.filter(c)
	flt.Limit = queryAsInt(c, "limit", transactionLimitBase)

	list, err := a.store.ListTransactions(c.Request.Context(), flt)
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error listing transactions"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) batchesHandler(c *gin.Context) {
	bl, ok := a.store.(batchLister)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "store does not record import batches"})
		return
	}

	list, err := bl.ListBatches(c.Request.Context(), queryAsInt(c, "limit", batchLimitBase))
	if err != nil {
		slog.Error("failed to list batches", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error listing batches"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) ledgerReport(c *gin.Context) (*Report, bool) {
	flt := a.filter(c)
	txs, err := a.store.ListTransactions(c.Request.Context(), &ledger.Filter{Account: flt.Account})
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error listing transactions"})
		return nil, false
	}

	rep, err := buildReport(txs, flt.Categories)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, report.ErrEmptySelection) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, false
	}
	return rep, true
}

func (a *api) reportHandler(c *gin.Context) {
	if rep, ok := a.ledgerReport(c); ok {
		c.JSON(http.StatusOK, rep)
	}
}

func (a *api) chartHandler(c *gin.Context) {
	rep, ok := a.ledgerReport(c)
	if !ok {
		return
	}

	kind := c.DefaultQuery("kind", report.KindTotal)
	var buf bytes.Buffer
	if err := report.RenderChart(&buf, rep.Categories, kind, report.FormatPNG); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
