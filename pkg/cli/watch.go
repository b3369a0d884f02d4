package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mchmarny/expctl/pkg/archive"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/statement"
	"github.com/mchmarny/expctl/pkg/watch"
	"github.com/urfave/cli/v2"
)

const (
	inboxDirName      = "inbox"
	classifiedDirName = "classified"
	classifiedSuffix  = "_classificado.csv"
)

var (
	dirFlag = &cli.StringFlag{
		Name:  "dir",
		Usage: "Inbox directory to watch for statement CSVs (default: ~/.expctl/inbox)",
	}

	watchCmd = &cli.Command{
		Name:   "watch",
		Usage:  "Classify statement CSVs as they are dropped into an inbox directory",
		Action: cmdWatch,
		Flags: []cli.Flag{
			dirFlag,
			rulesFileFlag,
			accountFlag,
			columnFlag,
			saveFlag,
			archiveFlag,
		},
	}
)

// inboxProcessor classifies a file and writes the result next to the inbox.
type inboxProcessor struct {
	store     ledger.Store
	archive   *archive.Archive
	rulesFile string
	outDir    string
	opts      *statement.Options
	save      bool
}

func (p *inboxProcessor) process(ctx context.Context, path string) error {
	classifier, err := newClassifier(ctx, p.store, p.rulesFile)
	if err != nil {
		return err
	}

	st, err := statement.ReadFile(path, p.opts)
	if err != nil {
		return err
	}
	st.Classify(classifier)

	res := &ClassifyResult{Files: []string{path}, Rules: len(classifier.Rules())}
	res.count(st)

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + classifiedSuffix
	res.Output = filepath.Join(p.outDir, name)
	if err := statement.WriteFile(res.Output, st); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if p.save {
		if res.Saved, res.Archived, err = saveStatement(ctx, p.store, p.archive, st); err != nil {
			return err
		}
	}

	slog.Info("statement classified", "file", path, "output", res.Output,
		"transactions", res.Transactions, "unclassified", res.Unclassified)
	return nil
}

func cmdWatch(c *cli.Context) error {
	cfg := getConfig(c)
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dir := c.String(dirFlag.Name)
	if dir == "" {
		dir = filepath.Join(cfg.HomeDir, inboxDirName)
	}
	outDir := filepath.Join(dir, classifiedDirName)
	if err := os.MkdirAll(outDir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	store, err := cfg.getStore(ctx)
	if err != nil {
		return err
	}

	p := &inboxProcessor{
		store:     store,
		rulesFile: c.String(rulesFileFlag.Name),
		outDir:    outDir,
		opts:      statementOptions(c),
		save:      c.Bool(saveFlag.Name),
	}
	if p.save && c.Bool(archiveFlag.Name) {
		if p.archive, err = cfg.getArchive(ctx); err != nil {
			return err
		}
	}

	stats, err := runWatcher(ctx, dir, p.process)
	if err != nil {
		return err
	}
	return printResult(c, stats)
}

// runWatcher watches dir until ctx is done.
func runWatcher(ctx context.Context, dir string, h watch.Handler) (*watch.Stats, error) {
	w, err := watch.New(dir, watch.DebounceDefault, h)
	if err != nil {
		return nil, err
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	<-ctx.Done()
	w.Stop()
	stats := w.Stats()
	return &stats, nil
}
