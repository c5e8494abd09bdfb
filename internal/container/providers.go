package container

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/application/dispatcher"
	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/application/service"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/hierarchy"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/export"
	infraLark "github.com/garyjia/inspector-vouchers/internal/infrastructure/external/lark"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/notify"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/persistence/repository"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/storage"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/worker"
	"github.com/garyjia/inspector-vouchers/migrations"
	"github.com/garyjia/inspector-vouchers/pkg/database"
	"github.com/garyjia/inspector-vouchers/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	var source fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		source = os.DirFS(cfg.MigrationsDir)
	}
	if err := database.NewMigrator(db, logger).RunMigrations(ctx, source); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Person:        repository.NewPersonRepository(sqlDB, logger),
		Voucher:       repository.NewVoucherRepository(sqlDB, logger),
		Trip:          repository.NewTripRepository(sqlDB, logger),
		Certification: repository.NewCertificationRepository(sqlDB, logger),
		Assignment:    repository.NewAssignmentRepository(sqlDB, logger),
		Rate:          repository.NewRateRepository(sqlDB, logger),
	}, nil
}

// SeedMileageRates upserts configured rates into the rate table
func SeedMileageRates(ctx context.Context, repo *repository.RateRepository, rates []entity.MileageRate, logger *zap.Logger) error {
	for i := range rates {
		if err := repo.Upsert(ctx, &rates[i]); err != nil {
			return err
		}
		logger.Info("Mileage rate configured",
			zap.Time("effective_date", rates[i].EffectiveDate),
			zap.String("rate", rates[i].Rate.String()))
	}
	return nil
}

// ProvideNotifier returns the Lark messenger when credentials are set and
// the log notifier otherwise. The second value names the choice for health
// reporting.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) (port.Notifier, string) {
	larkCfg := infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.APITimeout,
	}
	if !larkCfg.Enabled() {
		logger.Warn("Lark credentials not configured, notifications go to the log")
		return notify.NewLogNotifier(logger), "log"
	}

	client := infraLark.NewClient(larkCfg, logger)
	return infraLark.NewMessenger(infraLark.NewMessageAPI(client, logger), logger), "lark"
}

// ProvideStorage creates the export archive storage.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.ExportArchive, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	return storage.NewLocalFileStorage(cfg.ExportDir, logger)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *NotificationConfig, logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
		dispatcher.WithHandlerTimeout(cfg.HandlerTimeout),
	)
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Notifier   port.Notifier
	Storage    port.ExportArchive
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// notification handlers to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.TxManager == nil || deps.Dispatcher == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("transaction manager, dispatcher and notifier are required")
	}

	repos := deps.Repos
	svcLogger := utils.NewKVLogger(deps.Logger.Named("service"))
	resolver := hierarchy.NewResolver(repos.Person)

	bundle := &ServiceBundle{
		Voucher: service.NewVoucherService(
			repos.Voucher,
			repos.Trip,
			repos.Person,
			repos.Certification,
			repos.Rate,
			deps.TxManager,
			resolver,
			deps.Dispatcher,
			svcLogger,
		),
		Assignment: service.NewAssignmentService(
			repos.Assignment,
			repos.Person,
			deps.TxManager,
			resolver,
			deps.Dispatcher,
			svcLogger,
		),
		Notification: service.NewNotificationService(
			repos.Voucher,
			repos.Person,
			deps.Notifier,
			svcLogger,
		),
		Export: service.NewExportService(
			repos.Voucher,
			repos.Person,
			export.NewExcelExporter(deps.Logger.Named("export")),
			deps.Storage,
			svcLogger,
		),
	}

	bundle.Notification.Register(deps.Dispatcher)
	return bundle, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Repos      *RepositoryBundle
	Dispatcher dispatcher.Dispatcher
	Reminder   *ReminderConfig
	Logger     *zap.Logger
}

// ProvideWorkers creates the worker manager with every enabled worker
// registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Repos == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.Reminder != nil && deps.Reminder.Enabled {
		cfg := worker.DefaultReminderWorkerConfig()
		cfg.PollInterval = deps.Reminder.PollInterval
		cfg.StaleAfter = deps.Reminder.StaleAfter
		reminder := worker.NewReminderWorker(cfg, deps.Repos.Voucher, deps.Dispatcher, deps.Logger.Named("reminder"))
		if err := manager.Register(reminder); err != nil {
			return nil, err
		}
	}

	return manager, nil
}
