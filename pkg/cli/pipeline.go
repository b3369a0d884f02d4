package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mchmarny/expctl/pkg/archive"
	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/data"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/net"
	"github.com/mchmarny/expctl/pkg/statement"
)

// ClassifyResult summarizes one classification run.
type ClassifyResult struct {
	Files        []string             `json:"files,omitempty" yaml:"files,omitempty"`
	Output       string               `json:"output,omitempty" yaml:"output,omitempty"`
	Rules        int                  `json:"rules" yaml:"rules"`
	Transactions int                  `json:"transactions" yaml:"transactions"`
	Classified   int                  `json:"classified" yaml:"classified"`
	Unclassified int                  `json:"unclassified" yaml:"unclassified"`
	Saved        *ledger.AppendResult `json:"saved,omitempty" yaml:"saved,omitempty"`
	Archived     *archive.Object      `json:"archived,omitempty" yaml:"archived,omitempty"`
	Duration     string               `json:"duration,omitempty" yaml:"duration,omitempty"`
}

func (r *ClassifyResult) count(st *statement.Statement) {
	r.Transactions = len(st.Transactions)
	for _, tx := range st.Transactions {
		if tx.Method == classify.MethodRule {
			r.Classified++
		} else {
			r.Unclassified++
		}
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// readRulesFrom loads a CSV or YAML rule file from a path or URL.
func readRulesFrom(ctx context.Context, src string) ([]*classify.RuleSpec, error) {
	path := src
	if isURL(src) {
		tmp, err := os.CreateTemp("", "expctl-rules-*"+filepath.Ext(strings.SplitN(src, "?", 2)[0]))
		if err != nil {
			return nil, fmt.Errorf("creating temp file: %w", err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := net.Download(ctx, src, tmp.Name()); err != nil {
			return nil, fmt.Errorf("downloading rules from %s: %w", src, err)
		}
		path = tmp.Name()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules %s: %w", src, err)
	}
	defer f.Close()

	specs, err := classify.ReadRules(f, classify.FormatOf(src))
	if err != nil {
		return nil, fmt.Errorf("parsing rules %s: %w", src, err)
	}
	return specs, nil
}

// loadRules returns the rules in file when set, otherwise the stored rules.
// An empty store is seeded with the default rules.
func loadRules(ctx context.Context, store ledger.Store, file string) ([]*classify.RuleSpec, error) {
	if file != "" {
		return readRulesFrom(ctx, file)
	}

	specs, err := store.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	if len(specs) > 0 {
		return specs, nil
	}

	specs = classify.DefaultRules()
	if err := store.ReplaceRules(ctx, specs); err != nil {
		return nil, fmt.Errorf("seeding default rules: %w", err)
	}
	slog.Info("no rules found, seeded defaults", "count", len(specs))
	return specs, nil
}

func newClassifier(ctx context.Context, store ledger.Store, file string) (*classify.Classifier, error) {
	specs, err := loadRules(ctx, store, file)
	if err != nil {
		return nil, err
	}
	c, err := classify.NewClassifier(specs)
	if err != nil {
		return nil, fmt.Errorf("compiling rules: %w", err)
	}
	return c, nil
}

// isClassified reports whether the statement already carries categories.
func isClassified(st *statement.Statement) bool {
	for _, tx := range st.Transactions {
		if tx.Category == "" {
			return false
		}
	}
	return len(st.Transactions) > 0
}

// saveStatement appends the statement to the ledger and, when an archive
// is configured, stores the classified CSV under the batch id.
func saveStatement(ctx context.Context, store ledger.Store, arc *archive.Archive, st *statement.Statement) (*ledger.AppendResult, *archive.Object, error) {
	if ds, ok := store.(*data.Store); ok {
		ds.Source = filepath.Base(st.Source)
	}

	res, err := store.AppendTransactions(ctx, st.Transactions)
	if err != nil {
		return nil, nil, fmt.Errorf("saving transactions: %w", err)
	}
	if res.BatchID == "" && res.New > 0 {
		res.BatchID = uuid.NewString()
	}
	slog.Info("transactions saved", "action", res.Action, "new", res.New, "duplicates", res.Duplicates)

	if arc == nil || res.New == 0 {
		return res, nil, nil
	}

	var buf bytes.Buffer
	if err := statement.Write(&buf, st); err != nil {
		return nil, nil, err
	}
	obj, err := arc.Put(ctx, res.BatchID, buf.Bytes())
	if err != nil {
		return res, nil, fmt.Errorf("archiving statement: %w", err)
	}
	return res, obj, nil
}
