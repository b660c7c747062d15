package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// RemoteConfig holds connection settings for the remote message store.
// Credentials are resolved outside this package; only the account name
// lives in the config file.
type RemoteConfig struct {
	// IMAPHost is the IMAP server hostname.
	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`

	// IMAPPort is the IMAP server port.
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port"`

	// SMTPHost is the SMTP submission hostname.
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`

	// SMTPPort is the SMTP submission port.
	SMTPPort string `mapstructure:"smtp_port" yaml:"smtp_port"`

	// Username is the account name; it also scopes local snapshots.
	Username string `mapstructure:"username" yaml:"username"`

	// TLS selects implicit TLS (true) or STARTTLS (false).
	TLS bool `mapstructure:"tls" yaml:"tls"`
}

// SyncConfig holds the tuning knobs for the synchronization engine.
// All windows are expressed in seconds unless noted otherwise.
type SyncConfig struct {
	// PageSize bounds a single full fetch.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// SnapshotMaxAgeSec is the freshness window for local snapshots;
	// older records are treated as cache misses.
	SnapshotMaxAgeSec int `mapstructure:"snapshot_max_age_sec" yaml:"snapshot_max_age_sec"`

	// StaleAfterSec is how old a folder's data may be before a
	// background sync bothers refetching it.
	StaleAfterSec int `mapstructure:"stale_after_sec" yaml:"stale_after_sec"`

	// DedupeWindowSec is how long a push event's (id, folder) key
	// suppresses redundant deliveries.
	DedupeWindowSec int `mapstructure:"dedupe_window_sec" yaml:"dedupe_window_sec"`

	// DebounceDelayMs is the delay before a post-event incremental fetch,
	// giving the remote store time to commit.
	DebounceDelayMs int `mapstructure:"debounce_delay_ms" yaml:"debounce_delay_ms"`

	// PollFallbackSec is the polling period used while the push channel
	// is detached.
	PollFallbackSec int `mapstructure:"poll_fallback_sec" yaml:"poll_fallback_sec"`

	// EventBuffer is the UI event channel capacity.
	EventBuffer int `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// DBPath is the local snapshot database location. Empty selects
	// the default under the user config directory.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	Remote RemoteConfig `mapstructure:"remote" yaml:"remote"`
	Sync   SyncConfig   `mapstructure:"sync" yaml:"sync"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsync", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Remote: RemoteConfig{
			IMAPPort: "993",
			SMTPPort: "587",
			TLS:      true,
		},
		Sync: DefaultSyncConfig(),
	}
}

// DefaultSyncConfig returns the engine defaults: 200-record pages, a one
// hour snapshot freshness window, a five minute background staleness
// window, a five second push dedupe window, a two second post-event
// debounce, and a fifteen minute polling fallback.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		PageSize:          200,
		SnapshotMaxAgeSec: 3600,
		StaleAfterSec:     300,
		DedupeWindowSec:   5,
		DebounceDelayMs:   2000,
		PollFallbackSec:   900,
		EventBuffer:       64,
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	def := DefaultSyncConfig()
	v.SetDefault("remote.imap_port", "993")
	v.SetDefault("remote.smtp_port", "587")
	v.SetDefault("remote.tls", true)
	v.SetDefault("sync.page_size", def.PageSize)
	v.SetDefault("sync.snapshot_max_age_sec", def.SnapshotMaxAgeSec)
	v.SetDefault("sync.stale_after_sec", def.StaleAfterSec)
	v.SetDefault("sync.dedupe_window_sec", def.DedupeWindowSec)
	v.SetDefault("sync.debounce_delay_ms", def.DebounceDelayMs)
	v.SetDefault("sync.poll_fallback_sec", def.PollFallbackSec)
	v.SetDefault("sync.event_buffer", def.EventBuffer)

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

	v.Set("db_path", cfg.DBPath)
	v.Set("remote", cfg.Remote)
	v.Set("sync", cfg.Sync)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
