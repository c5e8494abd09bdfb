package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Notification NotificationConfig `mapstructure:"notification"`
	Reminder     ReminderConfig     `mapstructure:"reminder"`
	Export       ExportConfig       `mapstructure:"export"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	MileageRates []MileageRate      `mapstructure:"mileage_rates"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsDir overrides the migrations compiled into the binary
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// LarkConfig holds Lark API configuration. Leaving both credentials empty
// disables Lark and notifications go to the log.
type LarkConfig struct {
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	BaseURL    string        `mapstructure:"base_url"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// NotificationConfig bounds event handler runs
type NotificationConfig struct {
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

// ReminderConfig holds approval reminder worker configuration
type ReminderConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

// ExportConfig holds export archive configuration
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// MileageRate is one row of the rate table as written in the config file,
// e.g. {effective_date: "2024-01-01", rate: "0.67"}
type MileageRate struct {
	EffectiveDate string `mapstructure:"effective_date"`
	Rate          string `mapstructure:"rate"`
}

// Parse returns the effective date and the per-mile rate
func (r MileageRate) Parse() (time.Time, decimal.Decimal, error) {
	date, err := time.Parse("2006-01-02", r.EffectiveDate)
	if err != nil {
		return time.Time{}, decimal.Decimal{}, fmt.Errorf("mileage_rates: bad effective_date %q: %w", r.EffectiveDate, err)
	}
	rate, err := decimal.NewFromString(r.Rate)
	if err != nil {
		return time.Time{}, decimal.Decimal{}, fmt.Errorf("mileage_rates: bad rate %q: %w", r.Rate, err)
	}
	if !rate.IsPositive() {
		return time.Time{}, decimal.Decimal{}, fmt.Errorf("mileage_rates: rate for %s must be positive", r.EffectiveDate)
	}
	return date, rate, nil
}

// Load loads configuration from file and environment variables. A .env file
// in the working directory is read first when present. configPath may be
// empty to run on defaults and environment alone.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := gotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/vouchers.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	// Lark defaults
	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.base_url", "")
	v.SetDefault("lark.api_timeout", 30*time.Second)

	v.SetDefault("notification.handler_timeout", 30*time.Second)

	// Reminder defaults
	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.poll_interval", time.Hour)
	v.SetDefault("reminder.stale_after", 72*time.Hour)

	v.SetDefault("export.output_dir", "exports")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the credentials' conventional variable names
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("server.port", "PORT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	if c.Reminder.Enabled {
		if c.Reminder.PollInterval <= 0 {
			return fmt.Errorf("reminder.poll_interval must be positive")
		}
		if c.Reminder.StaleAfter <= 0 {
			return fmt.Errorf("reminder.stale_after must be positive")
		}
	}

	if c.Export.OutputDir == "" {
		return fmt.Errorf("export.output_dir is required")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	seen := make(map[string]bool, len(c.MileageRates))
	for _, r := range c.MileageRates {
		if _, _, err := r.Parse(); err != nil {
			return err
		}
		if seen[r.EffectiveDate] {
			return fmt.Errorf("mileage_rates: duplicate effective_date %s", r.EffectiveDate)
		}
		seen[r.EffectiveDate] = true
	}

	return nil
}
