package cli

import (
	"fmt"
	"os"

	"github.com/mchmarny/expctl/pkg/auth"
	"github.com/urfave/cli/v2"
)

var (
	credentialsFlag = &cli.StringFlag{
		Name:  "credentials",
		Usage: "Google service account key file (JSON) to store",
	}

	clearFlag = &cli.BoolFlag{
		Name:  "clear",
		Usage: "Remove stored credentials",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store or inspect the Google service account used for the sheets store",
		Action:          cmdAuth,
		Flags: []cli.Flag{
			credentialsFlag,
			clearFlag,
		},
	}
)

// AuthStatus describes the active credentials.
type AuthStatus struct {
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	ClientEmail string `json:"client_email,omitempty" yaml:"clientEmail,omitempty"`
	ProjectID   string `json:"project_id,omitempty" yaml:"projectId,omitempty"`
	Cleared     bool   `json:"cleared,omitempty" yaml:"cleared,omitempty"`
}

func cmdAuth(c *cli.Context) error {
	cfg := getConfig(c)

	if c.Bool(clearFlag.Name) {
		if err := auth.ClearCredentials(cfg.HomeDir); err != nil {
			return err
		}
		return printResult(c, &AuthStatus{Cleared: true})
	}

	if path := c.String(credentialsFlag.Name); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		sa, err := auth.SaveCredentials(cfg.HomeDir, b)
		if err != nil {
			return err
		}
		return printResult(c, &AuthStatus{Source: "saved", ClientEmail: sa.ClientEmail, ProjectID: sa.ProjectID})
	}

	b, src, err := auth.LoadCredentials(cfg.HomeDir)
	if err != nil {
		return err
	}
	sa, err := auth.ParseServiceAccount(b)
	if err != nil {
		return err
	}
	return printResult(c, &AuthStatus{Source: src, ClientEmail: sa.ClientEmail, ProjectID: sa.ProjectID})
}
