package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/expctl/pkg/config"
	"github.com/mchmarny/expctl/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Do not ask for confirmation",
	}

	resetCmd = &cli.Command{
		Name:            "reset",
		Usage:           "Delete all stored rules, transactions and import batches",
		HideHelpCommand: true,
		Flags:           []cli.Flag{yesFlag},
		Action:          cmdReset,
	}
)

func cmdReset(c *cli.Context) error {
	cfg := getConfig(c)
	if cfg.Config.Store != config.StoreLocal {
		return errors.New("reset only applies to the local store")
	}

	if !c.Bool(yesFlag.Name) {
		fmt.Fprintf(c.App.Writer, "This will permanently delete all data in %s\n", cfg.DSN)
		fmt.Fprint(c.App.Writer, "Are you sure? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(c.App.Writer, "Aborted.")
			return nil
		}
	}

	if err := data.Clear(c.Context, cfg.DB); err != nil {
		return fmt.Errorf("clearing database: %w", err)
	}

	slog.Info("database cleared", "db", cfg.DSN)
	state, err := data.GetDataState(cfg.DB)
	if err != nil {
		return err
	}
	return printResult(c, state)
}
