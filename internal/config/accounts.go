package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Account protocol kinds
const (
	KindIMAP     = "IMAP"
	KindPOP3     = "POP3"
	KindGmailAPI = "GMAIL_API"
)

// DefaultSyncInterval is used when an account config does not specify one
const DefaultSyncInterval = 5 * time.Minute

var (
	// ErrInvalidAccountConfig indicates an account config failed validation
	ErrInvalidAccountConfig = errors.New("invalid account config")
)

// Account is the per-account sync configuration, loaded from one YAML file.
// The account name is derived from the file name and acts as a stable key.
type Account struct {
	Name string `yaml:"-"`

	Type     string `yaml:"type"` // IMAP / POP3 / GMAIL_API
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	SSL      *bool  `yaml:"ssl"` // nil 表示默认开启
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// Folders to sync for IMAP: explicit names, or the single entry "all"
	// for auto-discovery. Defaults to ["INBOX"].
	Folders []string `yaml:"folders"`

	// Labels to sync for GMAIL_API. Defaults to INBOX, SENT, DRAFT.
	Labels []string `yaml:"labels"`

	// CredentialsFile is the OAuth client secret JSON for GMAIL_API accounts,
	// relative to the secrets dir unless absolute.
	CredentialsFile string `yaml:"credentials_file"`

	Sync struct {
		Interval string `yaml:"interval"` // e.g. 30s, 5m, 1h30m
	} `yaml:"sync"`
}

// UseSSL reports whether the account connects over TLS (default true)
func (a *Account) UseSSL() bool {
	return a.SSL == nil || *a.SSL
}

// SyncInterval returns the parsed polling interval for the account
func (a *Account) SyncInterval() time.Duration {
	return ParseInterval(a.Sync.Interval)
}

// SyncAllFolders reports whether IMAP folder auto-discovery was requested
func (a *Account) SyncAllFolders() bool {
	for _, f := range a.Folders {
		if strings.EqualFold(f, "all") {
			return true
		}
	}
	return false
}

var intervalRe = regexp.MustCompile(`(\d+)\s*([smhd])`)

// ParseInterval parses a human-readable interval string to a duration.
// Supports 30s, 5m, 1h, 1d and combinations like 1h30m.
// Invalid or empty input yields DefaultSyncInterval.
func ParseInterval(s string) time.Duration {
	units := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
	}

	var total time.Duration
	for _, m := range intervalRe.FindAllStringSubmatch(strings.ToLower(s), -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += time.Duration(n) * units[m[2]]
	}
	if total <= 0 {
		return DefaultSyncInterval
	}
	return total
}

// LoadAccount loads and validates a single account YAML config file
func LoadAccount(path string) (*Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var acct Account
	if err := yaml.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAccountConfig, filepath.Base(path), err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	acct.Name = name
	acct.Type = strings.ToUpper(strings.TrimSpace(acct.Type))

	if err := acct.validate(); err != nil {
		return nil, err
	}

	acct.applyDefaults()
	return &acct, nil
}

func (a *Account) validate() error {
	switch a.Type {
	case KindIMAP, KindPOP3, KindGmailAPI:
	default:
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidAccountConfig, a.Name, a.Type)
	}

	if a.Email == "" {
		return fmt.Errorf("%w: %s: missing email", ErrInvalidAccountConfig, a.Name)
	}

	if a.Type != KindGmailAPI && a.Host == "" {
		return fmt.Errorf("%w: %s: missing host", ErrInvalidAccountConfig, a.Name)
	}

	return nil
}

func (a *Account) applyDefaults() {
	if a.Port == 0 {
		switch a.Type {
		case KindIMAP:
			if a.UseSSL() {
				a.Port = 993
			} else {
				a.Port = 143
			}
		case KindPOP3:
			if a.UseSSL() {
				a.Port = 995
			} else {
				a.Port = 110
			}
		}
	}

	if a.Type == KindIMAP && len(a.Folders) == 0 {
		a.Folders = []string{"INBOX"}
	}
	if a.Type == KindGmailAPI && len(a.Labels) == 0 {
		a.Labels = []string{"INBOX", "SENT", "DRAFT"}
	}
}

// LoadAccounts loads all *.yml and *.yaml configs from the accounts directory.
// Invalid configs are skipped with a logged error so one broken file never
// prevents the remaining accounts from syncing.
func LoadAccounts(dir string) ([]*Account, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var accounts []*Account
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		if strings.HasPrefix(entry.Name(), "example.") {
			continue
		}

		acct, err := LoadAccount(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("[Config] Skipping %s: %v", entry.Name(), err)
			continue
		}
		accounts = append(accounts, acct)
		log.Printf("[Config] Loaded account '%s' (%s)", acct.Name, acct.Type)
	}

	return accounts, nil
}
