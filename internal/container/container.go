package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/application/dispatcher"
	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/application/service"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/persistence/repository"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/inspector-vouchers/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle. Components
// start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	notifier     port.Notifier
	notifierKind string
	archive  port.ExportArchive

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Person        port.PersonRepository
	Voucher       port.VoucherRepository
	Trip          port.TripRepository
	Certification port.CertificationRepository
	Assignment    port.AssignmentRepository
	Rate          *repository.RateRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Voucher      service.VoucherService
	Assignment   service.AssignmentService
	Notification service.NotificationService
	Export       service.ExportService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database, migrations, repositories and configured rates
// 2. Notifier and export storage
// 3. Event dispatcher
// 4. Application services and notification subscriptions
// 5. Workers
// A failed step releases whatever the earlier steps opened.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"database", c.initDatabase},
		{"external clients", c.initExternalClients},
		{"dispatcher", c.initDispatcher},
		{"services", c.initServices},
		{"workers", c.initWorkers},
	}
	for _, step := range steps {
		if err := step.fn(runCtx); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %v", len(errs), errs[0])
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown stops workers, drains the dispatcher and closes the database.
// Callers hold c.mu.
func (c *Container) teardown() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	// drains async notification handlers before the database goes away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.sqlDB = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health probes each component. Overall is false when any probe fails.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	for _, p := range []struct {
		name  string
		probe func(context.Context) ComponentHealth
	}{
		{"database", c.probeDatabase},
		{"dispatcher", c.probeDispatcher},
		{"notifier", c.probeNotifier},
		{"workers", c.probeWorkers},
	} {
		h := p.probe(ctx)
		status.Components[p.name] = h
		status.Overall = status.Overall && h.Healthy
	}

	if c.workers != nil {
		for name, ws := range c.workers.Statuses() {
			h := ComponentHealth{Healthy: ws.Running, Message: ws.LastError}
			status.Components["worker."+name] = h
			status.Overall = status.Overall && h.Healthy
		}
	}
	return status
}

var notInitialized = ComponentHealth{Message: "not initialized"}

func (c *Container) probeDatabase(ctx context.Context) ComponentHealth {
	if c.sqlDB == nil {
		return notInitialized
	}
	if err := c.sqlDB.PingContext(ctx); err != nil {
		return ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return ComponentHealth{Healthy: true}
}

func (c *Container) probeDispatcher(context.Context) ComponentHealth {
	if c.dispatcher == nil {
		return notInitialized
	}
	st := c.dispatcher.Stats()
	return ComponentHealth{
		Healthy: true,
		Message: fmt.Sprintf("handlers succeeded: %d, failed: %d, in flight: %d", st.Succeeded, st.Failed, st.InFlight),
	}
}

func (c *Container) probeNotifier(context.Context) ComponentHealth {
	if c.notifier == nil {
		return notInitialized
	}
	return ComponentHealth{Healthy: true, Message: c.notifierKind}
}

func (c *Container) probeWorkers(context.Context) ComponentHealth {
	switch {
	case c.workers == nil:
		return notInitialized
	case c.workers.GetWorkerCount() == 0:
		return ComponentHealth{Healthy: true, Message: "reminders disabled"}
	default:
		return ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("%d running", c.workers.GetWorkerCount()),
		}
	}
}

func (c *Container) initDatabase(ctx context.Context) error {
	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.sqlDB, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos

	return SeedMileageRates(ctx, repos.Rate, c.config.MileageRates, c.logger)
}

func (c *Container) initExternalClients(context.Context) error {
	c.notifier, c.notifierKind = ProvideNotifier(&c.config.Lark, c.logger.Named("notifier"))

	archive, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.archive = archive
	return nil
}

func (c *Container) initDispatcher(context.Context) error {
	c.dispatcher = ProvideDispatcher(&c.config.Notification, c.logger)
	return nil
}

func (c *Container) initServices(context.Context) error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Notifier:   c.notifier,
		Storage:    c.archive,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initWorkers(ctx context.Context) error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:      c.repositories,
		Dispatcher: c.dispatcher,
		Reminder:   &c.config.Reminder,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	return c.workers.StartAll(ctx)
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}
