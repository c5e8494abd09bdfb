package config

import (
	"github.com/garyjia/inspector-vouchers/internal/container"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
)

// ToContainerConfig converts the application Config to a container.Config.
// Call after Validate; unparsable rates are skipped.
func (c *Config) ToContainerConfig() *container.Config {
	rates := make([]entity.MileageRate, 0, len(c.MileageRates))
	for _, r := range c.MileageRates {
		date, rate, err := r.Parse()
		if err != nil {
			continue
		}
		rates = append(rates, entity.MileageRate{EffectiveDate: date, Rate: rate})
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Lark: container.LarkConfig{
			AppID:      c.Lark.AppID,
			AppSecret:  c.Lark.AppSecret,
			BaseURL:    c.Lark.BaseURL,
			APITimeout: c.Lark.APITimeout,
		},
		Notification: container.NotificationConfig{
			HandlerTimeout: c.Notification.HandlerTimeout,
		},
		Reminder: container.ReminderConfig{
			Enabled:      c.Reminder.Enabled,
			PollInterval: c.Reminder.PollInterval,
			StaleAfter:   c.Reminder.StaleAfter,
		},
		Storage: container.StorageConfig{
			ExportDir: c.Export.OutputDir,
		},
		MileageRates: rates,
	}
}
