package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/expctl/pkg/archive"
	"github.com/mchmarny/expctl/pkg/auth"
	"github.com/mchmarny/expctl/pkg/config"
	"github.com/mchmarny/expctl/pkg/data"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/logging"
	"github.com/mchmarny/expctl/pkg/net"
	"github.com/mchmarny/expctl/pkg/sheets"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "expctl"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	dbFlag = &urfave.StringFlag{
		Name:    "db",
		Usage:   "Path to the SQLite database file or a postgres:// DSN",
		EnvVars: []string{"EXPCTL_DB"},
	}

	configFlag = &urfave.StringFlag{
		Name:  "config",
		Usage: "Path to the config file (default: ~/.expctl/config.yaml)",
	}

	storeFlag = &urfave.StringFlag{
		Name:  "store",
		Usage: fmt.Sprintf("Where rules and the ledger are kept [%s, %s] (overrides config)", config.StoreLocal, config.StoreSheets),
	}

	homeFlag = &urfave.StringFlag{
		Name:    "home",
		Usage:   "App directory for config, database and credentials",
		EnvVars: []string{"EXPCTL_HOME"},
		Hidden:  true,
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	HomeDir string
	DSN     string
	Format  string
	Debug   bool
	DB      *sql.DB
	Config  *config.Config

	store ledger.Store
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

// getStore returns the configured ledger store, connecting on first use.
func (a *appConfig) getStore(ctx context.Context) (ledger.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	switch a.Config.Store {
	case config.StoreSheets:
		creds, src, err := auth.LoadCredentials(a.HomeDir)
		if err != nil {
			return nil, err
		}
		slog.Debug("using service account credentials", "source", src)

		ctx, err = net.WithBaseClient(ctx)
		if err != nil {
			return nil, err
		}
		client, err := sheets.New(ctx, sheetsConfig(a.Config), creds)
		if err != nil {
			return nil, err
		}
		a.store = client.Store()
	default:
		if a.DB == nil {
			return nil, fmt.Errorf("database not open: %s", a.DSN)
		}
		a.store = data.NewStore(a.DB, data.DialectOf(a.DSN))
	}
	return a.store, nil
}

// getArchive returns nil when no archive endpoint is configured.
func (a *appConfig) getArchive(ctx context.Context) (*archive.Archive, error) {
	if !a.Config.Archive.Enabled() {
		return nil, nil
	}
	ac := a.Config.Archive
	arc, err := archive.New(archive.Config{
		Endpoint:  ac.Endpoint,
		Bucket:    ac.Bucket,
		AccessKey: ac.AccessKey,
		SecretKey: ac.SecretKey,
		UseSSL:    ac.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := arc.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return arc, nil
}

func sheetsConfig(c *config.Config) sheets.Config {
	return sheets.Config{
		SpreadsheetID: c.Sheets.SpreadsheetID,
		DBTab:         c.Sheets.DBTab,
		ConfigTab:     c.Sheets.ConfigTab,
	}
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Classify bank statement exports into expense categories",
		Flags: []urfave.Flag{
			debugFlag,
			dbFlag,
			configFlag,
			storeFlag,
			formatFlag,
			homeFlag,
		},
		Commands: []*urfave.Command{
			authCmd,
			classifyCmd,
			rulesCmd,
			reportCmd,
			sheetsCmd,
			watchCmd,
			serverCmd,
			resetCmd,
		},
		Before: func(c *urfave.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			c.App.Metadata[appConfigKey] = cfg
			return nil
		},
		After: func(c *urfave.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

func setup(c *urfave.Context) (*appConfig, error) {
	debug := c.Bool(debugFlag.Name)
	if debug {
		logging.SetDefaultCLILogger("debug")
	}

	home := c.String(homeFlag.Name)
	if home == "" {
		home = getHomeDir()
	} else if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("creating app dir %s: %w", home, err)
	}

	cfgPath := c.String(configFlag.Name)
	if cfgPath == "" {
		cfgPath = filepath.Join(home, config.FileName)
	}

	conf, err := config.ReadOrCreate(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if s := c.String(storeFlag.Name); s != "" {
		conf.Store = s
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	app := &appConfig{
		HomeDir: home,
		Format:  formatJSON,
		Debug:   debug,
		Config:  conf,
	}

	if f := c.String(formatFlag.Name); f == formatYAML || f == "yml" {
		app.Format = formatYAML
	}

	if conf.Store != config.StoreLocal {
		return app, nil
	}

	app.DSN = c.String(dbFlag.Name)
	if app.DSN == "" {
		app.DSN = filepath.Join(home, data.DataFileName)
	}

	if err := data.Init(app.DSN); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(app.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	app.DB = db
	return app, nil
}

func getHomeDir() string {
	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	if created {
		slog.Debug("created app dir", "path", dir)
	}
	return dir
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

// printResult writes v to the app writer in the selected format.
func printResult(c *urfave.Context, v any) error {
	if err := encode(c.App.Writer, getConfig(c).Format, v); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	return nil
}
