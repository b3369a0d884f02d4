package cli

import (
	"fmt"
	"time"

	"github.com/mchmarny/expctl/pkg/archive"
	"github.com/mchmarny/expctl/pkg/statement"
	"github.com/urfave/cli/v2"
)

const classifyOutputDefault = "gastos_classificados.csv"

var (
	inputFlag = &cli.StringSliceFlag{
		Name:     "input",
		Aliases:  []string{"i"},
		Usage:    "Statement CSV export (can be specified multiple times)",
		Required: true,
	}

	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Path of the classified CSV",
		Value:   classifyOutputDefault,
	}

	rulesFileFlag = &cli.StringFlag{
		Name:    "rules",
		Aliases: []string{"model"},
		Usage:   "Rule file (CSV or YAML, path or URL) used instead of the stored rules",
	}

	accountFlag = &cli.StringFlag{
		Name:  "account",
		Usage: "Account name for statements without a 'conta' column (default: from config)",
	}

	columnFlag = &cli.StringFlag{
		Name:  "column",
		Usage: "Column holding the transaction description (default: from config)",
	}

	saveFlag = &cli.BoolFlag{
		Name:  "save",
		Usage: "Append the classified transactions to the ledger, skipping duplicates",
	}

	archiveFlag = &cli.BoolFlag{
		Name:  "archive",
		Usage: "Copy the classified CSV to the configured object store (requires --save)",
	}

	classifyCmd = &cli.Command{
		Name:    "classify",
		Aliases: []string{"c"},
		Usage:   "Classify statement exports using the rule table",
		UsageText: `expctl classify --input nubank-jan.csv                      # writes gastos_classificados.csv
   expctl classify -i jan.csv -i feb.csv -o q1.csv --save        # classify, merge and save to ledger
   expctl classify -i jan.csv --rules https://example.com/r.csv  # use rules from a URL`,
		Action: cmdClassify,
		Flags: []cli.Flag{
			inputFlag,
			outputFlag,
			rulesFileFlag,
			accountFlag,
			columnFlag,
			saveFlag,
			archiveFlag,
		},
	}
)

func statementOptions(c *cli.Context) *statement.Options {
	cfg := getConfig(c)
	opts := &statement.Options{
		Account:           cfg.Config.Account,
		DescriptionColumn: cfg.Config.DescriptionColumn,
	}
	if v := c.String(accountFlag.Name); v != "" {
		opts.Account = v
	}
	if v := c.String(columnFlag.Name); v != "" {
		opts.DescriptionColumn = v
	}
	return opts
}

func cmdClassify(c *cli.Context) error {
	start := time.Now()
	ctx := c.Context
	cfg := getConfig(c)
	inputs := c.StringSlice(inputFlag.Name)

	store, err := cfg.getStore(ctx)
	if err != nil {
		return err
	}

	classifier, err := newClassifier(ctx, store, c.String(rulesFileFlag.Name))
	if err != nil {
		return err
	}

	list, err := statement.ReadAll(ctx, inputs, statementOptions(c))
	if err != nil {
		return err
	}
	st := statement.Merge(list...)
	if len(inputs) == 1 {
		st.Source = inputs[0]
	}
	st.Classify(classifier)

	res := &ClassifyResult{
		Files:  inputs,
		Output: c.String(outputFlag.Name),
		Rules:  len(classifier.Rules()),
	}
	res.count(st)

	if err := statement.WriteFile(res.Output, st); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if c.Bool(saveFlag.Name) {
		var arc *archive.Archive
		if c.Bool(archiveFlag.Name) {
			if arc, err = cfg.getArchive(ctx); err != nil {
				return err
			}
		}
		saved, obj, err := saveStatement(ctx, store, arc, st)
		if err != nil {
			return err
		}
		res.Saved = saved
		res.Archived = obj
	}

	res.Duration = time.Since(start).String()
	return printResult(c, res)
}
