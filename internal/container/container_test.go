package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

func testConfig(t *testing.T) *Config {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "vouchers.db")
	cfg.Storage.ExportDir = filepath.Join(dir, "exports")
	cfg.Notification.HandlerTimeout = 5 * time.Second
	cfg.Reminder.PollInterval = time.Hour
	return cfg
}

func person(name string, role entity.Role, title string) *entity.Person {
	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return &entity.Person{
		Name:           name,
		Role:           role,
		PositionTitle:  title,
		FullName:       name + " Example",
		EmployeeNumber: "E-" + name,
		DutyStation:    "Est. 12",
		HomeAddress:    "2 Side St",
		CertifiedAt:    &at,
		Active:         true,
	}
}

func TestNewContainer_RejectsBadInput(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Lark.AppID = "cli_only"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_StartServeClose(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := testConfig(t)
	cfg.MileageRates = []entity.MileageRate{{
		EffectiveDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Rate:          decimal.RequireFromString("0.70"),
	}}

	c, err := NewContainer(cfg, zap.New(core))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx))

	health := c.Health(ctx)
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.Equal(t, "log", health.Components["notifier"].Message)
	assert.True(t, health.Components["worker.ReminderWorker"].Healthy)

	people := c.Repositories().Person
	sup := person("sup", entity.RoleSupervisor, "SCSI")
	require.NoError(t, people.Create(ctx, sup))
	alice := person("alice", entity.RoleInspector, "CSI")
	alice.AssignedSupervisorID = &sup.ID
	require.NoError(t, people.Create(ctx, alice))

	vouchers := c.Services().Voucher
	trip, err := vouchers.AddTrip(ctx, alice.ID, &entity.Trip{
		TripDate: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Miles:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	v, err := vouchers.SubmitVoucher(ctx, trip.VoucherID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateSubmitted, v.Status)
	// configured rate overrides the seeded 2024 rate from March on
	assert.Equal(t, "70.00", v.TotalAmount.StringFixed(2))

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx))

	// the dispatcher drained before close returned
	sent := logs.FilterMessage("Notification").All()
	require.Len(t, sent, 1)
	assert.Equal(t, "Voucher awaiting your approval", sent[0].ContextMap()["title"])
	assert.Equal(t, sup.ID, sent[0].ContextMap()["person_id"])
}

func TestContainer_ReminderDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reminder.Enabled = false

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Zero(t, c.Workers().GetWorkerCount())
	health := c.Health(context.Background())
	assert.True(t, health.Overall)
	assert.Equal(t, "reminders disabled", health.Components["workers"].Message)
}

func TestContainer_MigrationsDirOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.MigrationsDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Database.MigrationsDir, "001_broken.sql"), []byte("CREATE TABLE ("), 0o644))

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")
	assert.False(t, c.Ready())
}
