// Package container provides dependency injection and lifecycle management
// for the voucher approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
)

// Config holds all configuration for the Container.
type Config struct {
	Database     DatabaseConfig
	Lark         LarkConfig
	Notification NotificationConfig
	Reminder     ReminderConfig
	Storage      StorageConfig

	// MileageRates are upserted into the rate table on start, on top of the
	// seeded rows
	MileageRates []entity.MileageRate
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsDir reads migrations from disk instead of the embedded set
	MigrationsDir string
}

// LarkConfig holds Lark API settings. Empty credentials select the log notifier.
type LarkConfig struct {
	AppID      string
	AppSecret  string
	BaseURL    string
	APITimeout time.Duration
}

// NotificationConfig holds event handler settings.
type NotificationConfig struct {
	// HandlerTimeout bounds each asynchronous handler run
	HandlerTimeout time.Duration
}

// ReminderConfig holds approval reminder worker settings.
type ReminderConfig struct {
	Enabled      bool
	PollInterval time.Duration
	StaleAfter   time.Duration
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// ExportDir is where generated workbooks are archived
	ExportDir string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/vouchers.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Lark: LarkConfig{
			APITimeout: 30 * time.Second,
		},
		Notification: NotificationConfig{
			HandlerTimeout: 30 * time.Second,
		},
		Reminder: ReminderConfig{
			Enabled:      true,
			PollInterval: time.Hour,
			StaleAfter:   72 * time.Hour,
		},
		Storage: StorageConfig{
			ExportDir: "exports",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.ExportDir == "" {
		return fmt.Errorf("storage.export_dir is required")
	}
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}
	if c.Reminder.Enabled && (c.Reminder.PollInterval <= 0 || c.Reminder.StaleAfter <= 0) {
		return fmt.Errorf("reminder intervals must be positive")
	}
	for _, r := range c.MileageRates {
		if !r.Rate.IsPositive() {
			return fmt.Errorf("mileage rate for %s must be positive", r.EffectiveDate.Format("2006-01-02"))
		}
	}
	return nil
}
