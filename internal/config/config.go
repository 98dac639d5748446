package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	DataDir      string `json:"data_dir"`
	ArchiveDir   string `json:"archive_dir"`  // 邮件归档目录（独立于数据目录）
	AccountsDir  string `json:"accounts_dir"` // per-account YAML configs
	SecretsDir   string `json:"secrets_dir"`  // OAuth credentials and token files
	DatabasePath string `json:"database_path"`
	APIPort      string `json:"api_port"`
	LogLevel     string `json:"log_level"`
	CORSOrigins  string `json:"cors_origins"` // CORS 允许的域名，逗号分隔，* 表示全部
}

// Default configuration values
const (
	DefaultDataDir      = "data"
	DefaultArchiveDir   = "" // 空表示使用 DataDir/emails
	DefaultAccountsDir  = "accounts"
	DefaultSecretsDir   = "secrets"
	DefaultDatabasePath = "data/mailkeep.db"
	DefaultAPIPort      = "8081"
	DefaultLogLevel     = "INFO"
	DefaultCORSOrigins  = "*"
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:      DefaultDataDir,
		ArchiveDir:   DefaultArchiveDir,
		AccountsDir:  DefaultAccountsDir,
		SecretsDir:   DefaultSecretsDir,
		DatabasePath: DefaultDatabasePath,
		APIPort:      DefaultAPIPort,
		LogLevel:     DefaultLogLevel,
		CORSOrigins:  DefaultCORSOrigins,
	}

	// Config file is optional; environment variables win over it either way
	cfg.loadFromFile()

	// Override with environment variables
	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	// Look for config file in current directory and data directory
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if err := json.Unmarshal(data, c); err != nil {
			return err
		}
		return nil
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("MAILKEEP_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("MAILKEEP_ARCHIVE_DIR"); val != "" {
		c.ArchiveDir = val
	}
	if val := os.Getenv("MAILKEEP_ACCOUNTS_DIR"); val != "" {
		c.AccountsDir = val
	}
	if val := os.Getenv("MAILKEEP_SECRETS_DIR"); val != "" {
		c.SecretsDir = val
	}
	if val := os.Getenv("MAILKEEP_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("MAILKEEP_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("MAILKEEP_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("MAILKEEP_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = val
	}
}

// GetArchiveBaseDir returns the base directory for downloaded mail
// If ArchiveDir is set, use it; otherwise use DataDir/emails
func (c *Config) GetArchiveBaseDir() string {
	if c.ArchiveDir != "" {
		return c.ArchiveDir
	}
	return filepath.Join(c.DataDir, "emails")
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
