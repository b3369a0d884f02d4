// Package config reads and writes the expctl YAML config file and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"
	dirMode  = 0700
	fileMode = 0600

	StoreLocal  = "local"
	StoreSheets = "sheets"

	DBTabDefault     = "db"
	ConfigTabDefault = "config"
	BucketDefault    = "expctl"
	AccountDefault   = "Nubank"
	ColumnDefault    = "descricao"

	EnvSheetID        = "GOOGLE_SHEET_ID"
	EnvDBTab          = "DB_SHEET_TAB"
	EnvConfigTab      = "CONFIG_SHEET_TAB"
	EnvMinioHost      = "MINIO_HOST"
	EnvMinioAccessKey = "MINIO_ACCESS_KEY"
	EnvMinioSecretKey = "MINIO_SECRET_KEY"
	EnvMinioBucket    = "MINIO_BUCKET"
	EnvMinioSSL       = "MINIO_USE_SSL"
)

// Config represents app config object.
type Config struct {
	// Store selects where rules and the ledger live: local or sheets.
	Store             string  `yaml:"store"`
	Account           string  `yaml:"account"`
	DescriptionColumn string  `yaml:"descriptionColumn"`
	Sheets            Sheets  `yaml:"sheets"`
	Archive           Archive `yaml:"archive"`
}

// Sheets locates the Google spreadsheet backend.
type Sheets struct {
	SpreadsheetID string `yaml:"spreadsheetId"`
	DBTab         string `yaml:"dbTab"`
	ConfigTab     string `yaml:"configTab"`
}

// Archive configures the optional S3-compatible statement archive.
type Archive struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Enabled reports whether an archive endpoint is configured.
func (a *Archive) Enabled() bool {
	return a != nil && a.Endpoint != ""
}

// Default returns the config written on first use.
func Default() *Config {
	return &Config{
		Store:             StoreLocal,
		Account:           AccountDefault,
		DescriptionColumn: ColumnDefault,
		Sheets: Sheets{
			DBTab:     DBTabDefault,
			ConfigTab: ConfigTabDefault,
		},
		Archive: Archive{
			Bucket: BucketDefault,
		},
	}
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreLocal:
	case StoreSheets:
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("sheets store requires a spreadsheet id (set %s or sheets.spreadsheetId)", EnvSheetID)
		}
	default:
		return fmt.Errorf("invalid store %q, expected %s or %s", c.Store, StoreLocal, StoreSheets)
	}
	return nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Sheets.SpreadsheetID, EnvSheetID)
	set(&c.Sheets.DBTab, EnvDBTab)
	set(&c.Sheets.ConfigTab, EnvConfigTab)
	set(&c.Archive.Endpoint, EnvMinioHost)
	set(&c.Archive.AccessKey, EnvMinioAccessKey)
	set(&c.Archive.SecretKey, EnvMinioSecretKey)
	set(&c.Archive.Bucket, EnvMinioBucket)

	if v := os.Getenv(EnvMinioSSL); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("ignoring invalid bool", "env", EnvMinioSSL, "value", v)
		} else {
			c.Archive.UseSSL = b
		}
	}
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Store == "" {
		c.Store = d.Store
	}
	if c.Account == "" {
		c.Account = d.Account
	}
	if c.DescriptionColumn == "" {
		c.DescriptionColumn = d.DescriptionColumn
	}
	if c.Sheets.DBTab == "" {
		c.Sheets.DBTab = d.Sheets.DBTab
	}
	if c.Sheets.ConfigTab == "" {
		c.Sheets.ConfigTab = d.Sheets.ConfigTab
	}
	if c.Archive.Bucket == "" {
		c.Archive.Bucket = d.Archive.Bucket
	}
}

// Save writes the config into path.
func Save(path string, c *Config) error {
	if path == "" {
		return errors.New("config path required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// ReadOrCreate reads app config from path or creates one with defaults.
// Environment overrides are applied to the returned value only.
func ReadOrCreate(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path required")
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("failed to create dir %s: %w", filepath.Dir(path), err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	c.fillDefaults()
	c.ApplyEnv()
	return &c, nil
}

// GetOrCreateHomeDir returns the app directory under the user home.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
