package cli

import (
	"errors"
	"fmt"

	"github.com/mchmarny/expctl/pkg/auth"
	"github.com/mchmarny/expctl/pkg/net"
	"github.com/mchmarny/expctl/pkg/sheets"
	"github.com/urfave/cli/v2"
)

var sheetsCmd = &cli.Command{
	Name:            "sheets",
	HideHelpCommand: true,
	Usage:           "Google Sheets backend utilities",
	Subcommands: []*cli.Command{
		{
			Name:   "check",
			Usage:  "Verify credentials, spreadsheet access and expected tabs",
			Action: cmdSheetsCheck,
		},
	},
}

func cmdSheetsCheck(c *cli.Context) error {
	cfg := getConfig(c)
	if cfg.Config.Sheets.SpreadsheetID == "" {
		return errors.New("spreadsheet id not configured, set GOOGLE_SHEET_ID or sheets.spreadsheetId")
	}

	creds, _, err := auth.LoadCredentials(cfg.HomeDir)
	if err != nil {
		return err
	}
	sa, err := auth.ParseServiceAccount(creds)
	if err != nil {
		return err
	}

	ctx, err := net.WithBaseClient(c.Context)
	if err != nil {
		return err
	}
	client, err := sheets.New(ctx, sheetsConfig(cfg.Config), creds)
	if err != nil {
		return err
	}

	rep, err := client.Check(ctx)
	if err != nil {
		return fmt.Errorf("%w (is the spreadsheet shared with %s?)", err, sa.ClientEmail)
	}

	if err := printResult(c, rep); err != nil {
		return err
	}
	if !rep.ConfigTabFound {
		return fmt.Errorf("config tab %q not found in spreadsheet %q", rep.ConfigTab, rep.Title)
	}
	return nil
}
