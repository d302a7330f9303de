package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: filepath.Join(GlobalDeckhandPath(), "deckhand.db"),
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Sync: SyncConfig{
			Interval:      5 * time.Minute,
			Workers:       4,
			SiblingBoards: 4,
			Timeout:       15 * time.Second,
		},
		Dashboard: DashboardConfig{
			Enabled: false,
			Port:    8080,
		},
		Accounts: map[string]AccountConfig{},
	}
}

// Load loads and merges configuration from global and project sources
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load global config first
	if err := loadFile(GlobalConfigPath(), cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}

	// Load project config (overrides global)
	if err := loadFile(ProjectConfigPath(), cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays DECKHAND_* environment variables on top of the file
// configuration, e.g. DECKHAND_SYNC_INTERVAL=30s.
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("deckhand")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if s := v.GetString("database"); s != "" {
		cfg.Database = s
	}
	if s := v.GetString("log.file"); s != "" {
		cfg.Log.File = s
	}
	if d := v.GetDuration("sync.interval"); d > 0 {
		cfg.Sync.Interval = d
	}
	if n := v.GetInt("sync.workers"); n > 0 {
		cfg.Sync.Workers = n
	}
	if n := v.GetInt("sync.sibling_boards"); n > 0 {
		cfg.Sync.SiblingBoards = n
	}
	if d := v.GetDuration("sync.timeout"); d > 0 {
		cfg.Sync.Timeout = d
	}
	if os.Getenv("DECKHAND_DASHBOARD_ENABLED") != "" {
		cfg.Dashboard.Enabled = v.GetBool("dashboard.enabled")
	}
	if n := v.GetInt("dashboard.port"); n > 0 {
		cfg.Dashboard.Port = n
	}
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return err
	}

	return v.Unmarshal(cfg)
}

// GlobalConfigPath returns the path to the global config file
func GlobalConfigPath() string {
	return filepath.Join(GlobalDeckhandPath(), "config.yaml")
}

// ProjectConfigPath returns the path to the project config file
func ProjectConfigPath() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, ".deckhand", "config.yaml")
}

// GlobalDeckhandPath returns the path to the global deckhand directory
func GlobalDeckhandPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".deckhand")
}

// WriteDefault writes a commented default configuration to path,
// creating parent directories as needed. Existing files are preserved.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := `# Deckhand configuration
#
# database: ~/.deckhand/deckhand.db
#
# log:
#   file: ~/.deckhand/deckhand.log
#   max_size_mb: 10
#   max_backups: 3
#   max_age_days: 28
#
# sync:
#   interval: 5m
#   workers: 4
#   sibling_boards: 4
#   timeout: 15s
#
# dashboard:
#   enabled: false
#   port: 8080
#
# accounts:
#   work:
#     password: app-password-here
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
