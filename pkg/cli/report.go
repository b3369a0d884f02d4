package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/report"
	"github.com/mchmarny/expctl/pkg/statement"
	"github.com/urfave/cli/v2"
)

var (
	reportInputFlag = &cli.StringSliceFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Usage:   "Classified CSV to report on (default: the ledger)",
	}

	categoryFlag = &cli.StringSliceFlag{
		Name:  "category",
		Usage: "Category to include (can be specified multiple times, default: all classified)",
	}

	reportAccountFlag = &cli.StringFlag{
		Name:  "account",
		Usage: "Only transactions of this account",
	}

	chartFlag = &cli.StringFlag{
		Name:  "chart",
		Usage: "Write a bar chart to this file (.png or .svg)",
	}

	kindFlag = &cli.StringFlag{
		Name:  "kind",
		Usage: fmt.Sprintf("Chart values [%s, %s]", report.KindTotal, report.KindPercent),
		Value: report.KindTotal,
	}

	reportCmd = &cli.Command{
		Name:   "report",
		Usage:  "Summarize classified transactions by category",
		Action: cmdReport,
		Flags: []cli.Flag{
			reportInputFlag,
			categoryFlag,
			reportAccountFlag,
			rulesFileFlag,
			chartFlag,
			kindFlag,
		},
	}
)

// Report is the category breakdown of a set of transactions.
type Report struct {
	Summary    *report.Summary         `json:"summary" yaml:"summary"`
	Categories []*report.CategoryTotal `json:"categories" yaml:"categories"`
	Chart      string                  `json:"chart,omitempty" yaml:"chart,omitempty"`
}

func buildReport(txs []*statement.Transaction, categories []string) (*Report, error) {
	totals, err := report.ByCategory(txs, categories)
	if err != nil {
		return nil, err
	}
	return &Report{Summary: report.Summarize(txs), Categories: totals}, nil
}

// reportTransactions reads classified CSVs, classifying any that are not,
// or lists the ledger when no input is given.
func reportTransactions(ctx context.Context, store ledger.Store, inputs []string, rulesFile string, opts *statement.Options, flt *ledger.Filter) ([]*statement.Transaction, error) {
	if len(inputs) == 0 {
		return store.ListTransactions(ctx, &ledger.Filter{Account: flt.Account})
	}

	list, err := statement.ReadAll(ctx, inputs, opts)
	if err != nil {
		return nil, err
	}

	var (
		txs        []*statement.Transaction
		classifier *classify.Classifier
	)
	for _, st := range list {
		if !isClassified(st) {
			if classifier == nil {
				if classifier, err = newClassifier(ctx, store, rulesFile); err != nil {
					return nil, err
				}
			}
			st.Classify(classifier)
		}
		for _, tx := range st.Transactions {
			if flt.Match(tx) {
				txs = append(txs, tx)
			}
		}
	}
	return txs, nil
}

func cmdReport(c *cli.Context) (retErr error) {
	ctx := c.Context
	store, err := getConfig(c).getStore(ctx)
	if err != nil {
		return err
	}

	flt := &ledger.Filter{Account: c.String(reportAccountFlag.Name)}
	txs, err := reportTransactions(ctx, store, c.StringSlice(reportInputFlag.Name), c.String(rulesFileFlag.Name), statementOptions(c), flt)
	if err != nil {
		return err
	}

	rep, err := buildReport(txs, c.StringSlice(categoryFlag.Name))
	if err != nil {
		return err
	}

	if path := c.String(chartFlag.Name); path != "" {
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && retErr == nil {
				retErr = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		if err := report.RenderChart(f, rep.Categories, c.String(kindFlag.Name), format); err != nil {
			return err
		}
		rep.Chart = path
	}

	return printResult(c, rep)
}
