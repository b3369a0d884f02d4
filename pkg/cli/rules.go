package cli

import (
	"fmt"
	"os"

	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/urfave/cli/v2"
)

var (
	rulesInFileFlag = &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f", "data"},
		Usage:    "Rule file, CSV or YAML, local path or http(s) URL",
		Required: true,
	}

	rulesOutFileFlag = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Destination file, CSV or YAML by extension (default: CSV to stdout)",
	}

	textFlag = &cli.StringFlag{
		Name:     "text",
		Aliases:  []string{"t"},
		Usage:    "Transaction description to classify",
		Required: true,
	}

	rulesCmd = &cli.Command{
		Name:            "rules",
		Aliases:         []string{"r"},
		HideHelpCommand: true,
		Usage:           "Manage the classification rule table",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List stored rules",
				Action: cmdRulesList,
			},
			{
				Name:   "import",
				Usage:  "Replace stored rules with the rules in a file",
				Action: cmdRulesImport,
				Flags:  []cli.Flag{rulesInFileFlag},
			},
			{
				Name:   "export",
				Usage:  "Write stored rules to a file",
				Action: cmdRulesExport,
				Flags:  []cli.Flag{rulesOutFileFlag},
			},
			{
				Name:   "seed",
				Usage:  "Replace stored rules with the built-in defaults",
				Action: cmdRulesSeed,
			},
			{
				Name:   "test",
				Usage:  "Show how a description is normalized and classified",
				Action: cmdRulesTest,
				Flags:  []cli.Flag{textFlag, rulesFileFlag},
			},
		},
	}
)

// RulesResult reports a rule table change.
type RulesResult struct {
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	Count  int    `json:"count" yaml:"count"`
	Active int    `json:"active" yaml:"active"`
}

func newRulesResult(src string, specs []*classify.RuleSpec) *RulesResult {
	r := &RulesResult{Source: src, Count: len(specs)}
	for _, s := range specs {
		if s.Active {
			r.Active++
		}
	}
	return r
}

// RuleTestResult explains the classification of one description.
type RuleTestResult struct {
	Text        string          `json:"text" yaml:"text"`
	Normalized  string          `json:"normalized" yaml:"normalized"`
	MerchantKey string          `json:"merchant_key" yaml:"merchantKey"`
	Result      classify.Result `json:"result" yaml:"result"`
}

func cmdRulesList(c *cli.Context) error {
	store, err := getConfig(c).getStore(c.Context)
	if err != nil {
		return err
	}
	specs, err := store.LoadRules(c.Context)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	return printResult(c, specs)
}

func cmdRulesImport(c *cli.Context) error {
	ctx := c.Context
	src := c.String(rulesInFileFlag.Name)

	specs, err := readRulesFrom(ctx, src)
	if err != nil {
		return err
	}
	if _, err := classify.CompileRules(specs); err != nil {
		return fmt.Errorf("validating rules: %w", err)
	}

	store, err := getConfig(c).getStore(ctx)
	if err != nil {
		return err
	}
	if err := store.ReplaceRules(ctx, specs); err != nil {
		return fmt.Errorf("saving rules: %w", err)
	}
	return printResult(c, newRulesResult(src, specs))
}

func cmdRulesExport(c *cli.Context) (retErr error) {
	store, err := getConfig(c).getStore(c.Context)
	if err != nil {
		return err
	}
	specs, err := store.LoadRules(c.Context)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	path := c.String(rulesOutFileFlag.Name)
	if path == "" {
		return classify.WriteRules(c.App.Writer, specs, classify.FormatCSV)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if err := classify.WriteRules(f, specs, classify.FormatOf(path)); err != nil {
		return err
	}
	return printResult(c, newRulesResult(path, specs))
}

func cmdRulesSeed(c *cli.Context) error {
	store, err := getConfig(c).getStore(c.Context)
	if err != nil {
		return err
	}
	specs := classify.DefaultRules()
	if err := store.ReplaceRules(c.Context, specs); err != nil {
		return fmt.Errorf("saving rules: %w", err)
	}
	return printResult(c, newRulesResult("defaults", specs))
}

func cmdRulesTest(c *cli.Context) error {
	ctx := c.Context
	store, err := getConfig(c).getStore(ctx)
	if err != nil {
		return err
	}
	classifier, err := newClassifier(ctx, store, c.String(rulesFileFlag.Name))
	if err != nil {
		return err
	}

	text := c.String(textFlag.Name)
	mk, res := classifier.Describe(text)
	return printResult(c, &RuleTestResult{
		Text:        text,
		Normalized:  classify.NormalizeText(text),
		MerchantKey: mk,
		Result:      res,
	})
}
