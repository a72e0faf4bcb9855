package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// MailboxConfig holds the IMAP settings for the account being digested.
type MailboxConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Folder   string `mapstructure:"folder" yaml:"folder"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// SMTPConfig holds the SMTP settings used to deliver the digest.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
}

// LLMConfig holds settings for the summarization model endpoint.
// BaseURL may point at any OpenAI-compatible chat completions API.
type LLMConfig struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// DigestConfig controls batch selection and run limits.
type DigestConfig struct {
	// To is the destination address for the digest email.
	To string `mapstructure:"to" yaml:"to"`

	Subject string `mapstructure:"subject" yaml:"subject"`

	// Limit caps the number of new messages per run (1-50).
	Limit int `mapstructure:"limit" yaml:"limit"`

	// MaxConcurrency caps parallel summarizer calls.
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`

	// DeadlineSec is the run-wide summarization deadline in seconds.
	DeadlineSec int `mapstructure:"deadline_sec" yaml:"deadline_sec"`
}

// StateConfig holds local persistence paths.
type StateConfig struct {
	// LedgerPath is the processed-message ledger file.
	LedgerPath string `mapstructure:"ledger_path" yaml:"ledger_path"`

	// ArchiveDB is the SQLite database recording run history and
	// archived digests.
	ArchiveDB string `mapstructure:"archive_db" yaml:"archive_db"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// Provider selects default mailbox hosts: gmail, outlook, qq, 163.
	Provider string `mapstructure:"provider" yaml:"provider"`

	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	SMTP    SMTPConfig    `mapstructure:"smtp" yaml:"smtp"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Digest  DigestConfig  `mapstructure:"digest" yaml:"digest"`
	State   StateConfig   `mapstructure:"state" yaml:"state"`
}

// providerPreset holds the well-known server defaults for a provider.
type providerPreset struct {
	imapHost string
	smtpHost string
	smtpPort string
}

var providerPresets = map[string]providerPreset{
	"gmail":   {"imap.gmail.com", "smtp.gmail.com", "587"},
	"outlook": {"outlook.office365.com", "smtp.office365.com", "587"},
	"qq":      {"imap.qq.com", "smtp.qq.com", "465"},
	"163":     {"imap.163.com", "smtp.163.com", "465"},
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/maildigest/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "maildigest", "config.yaml")
}

// defaultStateDir returns the directory holding ledger and archive files.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "state")
	}
	return filepath.Join(home, ".local", "share", "maildigest")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	stateDir := defaultStateDir()
	return &AppConfig{
		Provider: "gmail",
		Mailbox: MailboxConfig{
			Folder: "INBOX",
			TLS:    true,
		},
		LLM: LLMConfig{
			Model:     "gpt-4o",
			MaxTokens: 1024,
		},
		Digest: DigestConfig{
			Subject:        "Daily mail digest",
			Limit:          20,
			MaxConcurrency: 8,
			DeadlineSec:    60,
		},
		State: StateConfig{
			LedgerPath: filepath.Join(stateDir, "processed.json"),
			ArchiveDB:  filepath.Join(stateDir, "archive.db"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. If the file does not exist, it returns a default configuration.
// Provider presets fill in any mailbox/SMTP hosts left unset.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("provider", "gmail")
	v.SetDefault("mailbox.folder", "INBOX")
	v.SetDefault("mailbox.tls", true)
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("digest.subject", "Daily mail digest")
	v.SetDefault("digest.limit", 20)
	v.SetDefault("digest.max_concurrency", 8)
	v.SetDefault("digest.deadline_sec", 60)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyProviderPreset()
	cfg.clampLimits()

	if cfg.State.LedgerPath == "" {
		cfg.State.LedgerPath = filepath.Join(defaultStateDir(), "processed.json")
	}
	if cfg.State.ArchiveDB == "" {
		cfg.State.ArchiveDB = filepath.Join(defaultStateDir(), "archive.db")
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("provider", cfg.Provider)
	v.Set("mailbox", cfg.Mailbox)
	v.Set("smtp", cfg.SMTP)
	v.Set("llm", cfg.LLM)
	v.Set("digest", cfg.Digest)
	v.Set("state", cfg.State)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// applyProviderPreset fills in any mailbox/SMTP server fields left
// empty with the well-known defaults for the configured provider.
func (c *AppConfig) applyProviderPreset() {
	preset, ok := providerPresets[strings.ToLower(c.Provider)]
	if !ok {
		return
	}

	if c.Mailbox.Host == "" {
		c.Mailbox.Host = preset.imapHost
	}
	if c.Mailbox.Port == "" {
		c.Mailbox.Port = "993"
	}
	if c.SMTP.Host == "" {
		c.SMTP.Host = preset.smtpHost
	}
	if c.SMTP.Port == "" {
		c.SMTP.Port = preset.smtpPort
	}
	if c.SMTP.Username == "" {
		c.SMTP.Username = c.Mailbox.Username
	}
}

// clampLimits bounds user-supplied run limits to safe ranges.
func (c *AppConfig) clampLimits() {
	if c.Digest.Limit < 1 {
		c.Digest.Limit = 1
	}
	if c.Digest.Limit > 50 {
		c.Digest.Limit = 50
	}
	if c.Digest.MaxConcurrency < 1 {
		c.Digest.MaxConcurrency = 1
	}
	if c.Digest.DeadlineSec < 1 {
		c.Digest.DeadlineSec = 60
	}
}
