// Package config loads deckhand's configuration from YAML files, with
// a per-user global file overridden by a per-directory project file.
package config

import "time"

// Config represents the full deckhand configuration
type Config struct {
	// Database is the path to the local SQLite cache
	Database string `yaml:"database" mapstructure:"database"`

	// Log configuration
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Sync configuration
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Dashboard configuration
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`

	// Accounts holds per-account credentials keyed by account name.
	// Only the app password lives here; everything else is in the
	// database.
	Accounts map[string]AccountConfig `yaml:"accounts" mapstructure:"accounts"`
}

// LogConfig configures file logging for the serve command
type LogConfig struct {
	// File is the log file path; empty logs to stderr only
	File string `yaml:"file" mapstructure:"file"`

	// MaxSizeMB rotates the log after this many megabytes
	MaxSizeMB int `yaml:"max_size_mb" mapstructure:"max_size_mb"`

	// MaxBackups is how many rotated files to keep
	MaxBackups int `yaml:"max_backups" mapstructure:"max_backups"`

	// MaxAgeDays drops rotated files older than this
	MaxAgeDays int `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// SyncConfig configures the sync engine and daemon
type SyncConfig struct {
	// Interval between periodic syncs in serve mode
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// Workers sizes the engine's background pool
	Workers int `yaml:"workers" mapstructure:"workers"`

	// SiblingBoards caps concurrent board pulls per sync
	SiblingBoards int `yaml:"sibling_boards" mapstructure:"sibling_boards"`

	// Timeout for individual server requests
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DashboardConfig configures the WebSocket monitoring server
type DashboardConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Port    int  `yaml:"port" mapstructure:"port"`
}

// AccountConfig holds the credentials for one account
type AccountConfig struct {
	// Password is the app password used for Basic auth
	Password string `yaml:"password" mapstructure:"password"`
}
