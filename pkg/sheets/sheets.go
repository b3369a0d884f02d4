// Package sheets keeps the rule table and the transaction ledger in a Google
// spreadsheet: one tab for rules, one for classified transactions.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/mchmarny/expctl/pkg/ledger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	valueInputOption = "USER_ENTERED"
	insertDataOption = "INSERT_ROWS"
)

var (
	Scopes = []string{gsheets.SpreadsheetsScope, gsheets.DriveScope}

	ErrNoSpreadsheet = errors.New("spreadsheet id required")
)

// Config locates the spreadsheet and its tabs.
type Config struct {
	SpreadsheetID string
	DBTab         string
	ConfigTab     string
}

// api is the narrow slice of the Sheets service this package uses.
type api interface {
	get(ctx context.Context, id, rng string) ([][]string, error)
	append(ctx context.Context, id, rng string, rows [][]string) error
	clear(ctx context.Context, id, rng string) error
	meta(ctx context.Context, id string) (title string, tabs []string, err error)
}

// Client talks to one spreadsheet.
type Client struct {
	api api
	cfg Config
}

// New builds a client authenticated with a service account key. The
// context must carry the base HTTP client under oauth2.HTTPClient when one
// other than http.DefaultClient is wanted.
func New(ctx context.Context, cfg Config, credentials []byte) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, ErrNoSpreadsheet
	}

	jwt, err := google.JWTConfigFromJSON(credentials, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}

	svc, err := gsheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	slog.Debug("sheets client created", "spreadsheet", cfg.SpreadsheetID, "account", jwt.Email)
	return newClient(&service{svc: svc}, cfg), nil
}

// NewWithHTTPClient builds a client over an already authorized HTTP client.
func NewWithHTTPClient(ctx context.Context, cfg Config, hc *http.Client, opts ...option.ClientOption) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, ErrNoSpreadsheet
	}
	if hc == nil {
		hc = http.DefaultClient
		if v, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
			hc = v
		}
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(hc)}, opts...)
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return newClient(&service{svc: svc}, cfg), nil
}

func newClient(a api, cfg Config) *Client {
	if cfg.DBTab == "" {
		cfg.DBTab = "db"
	}
	if cfg.ConfigTab == "" {
		cfg.ConfigTab = "config"
	}
	return &Client{api: a, cfg: cfg}
}

// Tab returns the named worksheet as a ledger table.
func (c *Client) Tab(name string) *Tab {
	return &Tab{api: c.api, id: c.cfg.SpreadsheetID, name: name}
}

// Store returns a ledger store over the config and db tabs.
func (c *Client) Store() *ledger.TableStore {
	return &ledger.TableStore{
		Rules:        c.Tab(c.cfg.ConfigTab),
		Transactions: c.Tab(c.cfg.DBTab),
	}
}

// CheckReport describes what Check found.
type CheckReport struct {
	SpreadsheetID  string   `json:"spreadsheet_id" yaml:"spreadsheetId"`
	Title          string   `json:"title" yaml:"title"`
	Tabs           []string `json:"tabs" yaml:"tabs"`
	ConfigTab      string   `json:"config_tab" yaml:"configTab"`
	ConfigTabFound bool     `json:"config_tab_found" yaml:"configTabFound"`
	DBTab          string   `json:"db_tab" yaml:"dbTab"`
	DBTabFound     bool     `json:"db_tab_found" yaml:"dbTabFound"`
}

// OK reports whether the spreadsheet has both tabs.
func (r *CheckReport) OK() bool {
	return r.ConfigTabFound && r.DBTabFound
}

// Check opens the spreadsheet and verifies the expected tabs exist.
func (c *Client) Check(ctx context.Context) (*CheckReport, error) {
	title, tabs, err := c.api.meta(ctx, c.cfg.SpreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet %s: %w", c.cfg.SpreadsheetID, err)
	}

	r := &CheckReport{
		SpreadsheetID:  c.cfg.SpreadsheetID,
		Title:          title,
		Tabs:           tabs,
		ConfigTab:      c.cfg.ConfigTab,
		ConfigTabFound: slices.Contains(tabs, c.cfg.ConfigTab),
		DBTab:          c.cfg.DBTab,
		DBTabFound:     slices.Contains(tabs, c.cfg.DBTab),
	}
	return r, nil
}
