// Package auth stores the Google service account key used to reach the
// spreadsheet backend. The key lives in the OS keychain when one is
// available and in a 0600 file under the app directory otherwise.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

const (
	// EnvCredentials names a key file that takes precedence over stored keys.
	EnvCredentials = "GOOGLE_APPLICATION_CREDENTIALS"

	keyringService  = "expctl"
	keyringUser     = "google_service_account"
	credsFileName   = "google_credentials.json"
	credsFileMode   = 0600
	serviceAcctType = "service_account"

	SourceEnv     = "env"
	SourceKeyring = "keyring"
	SourceFile    = "file"
)

var (
	ErrNoCredentials      = errors.New("no service account credentials found, run: expctl auth --credentials <key.json>")
	ErrInvalidCredentials = errors.New("invalid service account credentials")
)

// ServiceAccount is the subset of a Google key file we validate and show.
type ServiceAccount struct {
	Type        string `json:"type" yaml:"type"`
	ProjectID   string `json:"project_id" yaml:"projectId"`
	ClientEmail string `json:"client_email" yaml:"clientEmail"`
	PrivateKey  string `json:"private_key" yaml:"-"`
}

// ParseServiceAccount validates a service account key.
func ParseServiceAccount(b []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(b, &sa); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if sa.Type != serviceAcctType {
		return nil, fmt.Errorf("%w: type is %q, expected %q", ErrInvalidCredentials, sa.Type, serviceAcctType)
	}
	if sa.ClientEmail == "" {
		return nil, fmt.Errorf("%w: client_email is empty", ErrInvalidCredentials)
	}
	if sa.PrivateKey == "" {
		return nil, fmt.Errorf("%w: private_key is empty", ErrInvalidCredentials)
	}
	return &sa, nil
}

// SaveCredentials validates and stores a service account key.
func SaveCredentials(dir string, b []byte) (*ServiceAccount, error) {
	sa, err := ParseServiceAccount(b)
	if err != nil {
		return nil, err
	}

	if err := keyring.Set(keyringService, keyringUser, string(b)); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		if err := os.WriteFile(filepath.Join(dir, credsFileName), b, credsFileMode); err != nil {
			return nil, fmt.Errorf("writing credentials file: %w", err)
		}
		return sa, nil
	}

	// keychain copy wins, drop any stale file
	_ = os.Remove(filepath.Join(dir, credsFileName))
	return sa, nil
}

// LoadCredentials returns the service account key and where it came from.
func LoadCredentials(dir string) ([]byte, string, error) {
	if p := os.Getenv(EnvCredentials); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, "", fmt.Errorf("reading %s file %s: %w", EnvCredentials, p, err)
		}
		return b, SourceEnv, nil
	}

	s, err := keyring.Get(keyringService, keyringUser)
	if err == nil && s != "" {
		return []byte(s), SourceKeyring, nil
	}

	b, err := os.ReadFile(filepath.Join(dir, credsFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNoCredentials
		}
		return nil, "", fmt.Errorf("reading credentials file: %w", err)
	}

	// migrate to keychain
	if err := keyring.Set(keyringService, keyringUser, string(b)); err == nil {
		slog.Info("migrated credentials from file to OS keychain")
		_ = os.Remove(filepath.Join(dir, credsFileName))
	}

	return b, SourceFile, nil
}

// ClearCredentials removes stored keys from both the keychain and the file.
func ClearCredentials(dir string) error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain delete failed", "error", err)
	}
	if err := os.Remove(filepath.Join(dir, credsFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting credentials file: %w", err)
	}
	return nil
}
