package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/domain/event"
)

// ReminderWorkerConfig holds configuration for the approval reminder worker
type ReminderWorkerConfig struct {
	PollInterval time.Duration
	// StaleAfter is how long a voucher may wait on an approver before a
	// reminder goes out. Reminders repeat at most once per StaleAfter.
	StaleAfter  time.Duration
	ScanTimeout time.Duration
}

// DefaultReminderWorkerConfig returns default configuration
func DefaultReminderWorkerConfig() ReminderWorkerConfig {
	return ReminderWorkerConfig{
		PollInterval: time.Hour,
		StaleAfter:   72 * time.Hour,
		ScanTimeout:  30 * time.Second,
	}
}

// EventPublisher receives reminder events
type EventPublisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// Status is a snapshot of a worker's run statistics
type Status struct {
	Running     bool      `json:"running"`
	LastRun     time.Time `json:"last_run,omitempty"`
	SentCount   int       `json:"sent_count"`
	FailedScans int       `json:"failed_scans"`
	LastError   string    `json:"last_error,omitempty"`
}

// ReminderWorker periodically raises voucher.reminder events for vouchers
// that have waited on an approver longer than StaleAfter
type ReminderWorker struct {
	config      ReminderWorkerConfig
	voucherRepo port.VoucherRepository
	events      EventPublisher
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	// voucher ID -> time of the last reminder sent for it
	reminded    map[int64]time.Time
	lastRun     time.Time
	sentCount   int
	failedScans int
	lastError   error
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(
	config ReminderWorkerConfig,
	voucherRepo port.VoucherRepository,
	events EventPublisher,
	logger *zap.Logger,
) *ReminderWorker {
	return &ReminderWorker{
		config:      config,
		voucherRepo: voucherRepo,
		events:      events,
		logger:      logger,
		now:         time.Now,
		reminded:    make(map[int64]time.Time),
	}
}

// Start begins the polling loop
func (w *ReminderWorker) Start(ctx context.Context) error {
	if w.config.PollInterval <= 0 || w.config.StaleAfter <= 0 {
		return fmt.Errorf("reminder worker needs a positive poll interval and stale age")
	}

	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("reminder worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	done := w.done
	w.mu.Unlock()

	w.logger.Info("ReminderWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Duration("stale_after", w.config.StaleAfter))

	go w.pollLoop(runCtx, done)
	return nil
}

// Stop cancels the loop and waits for an in-flight scan to finish
func (w *ReminderWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("ReminderWorker stopped", zap.Int("sent_count", w.Status().SentCount))
	return nil
}

// Name returns the worker name for identification
func (w *ReminderWorker) Name() string {
	return "ReminderWorker"
}

// Status returns the worker's run statistics
func (w *ReminderWorker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Status{
		Running:     w.isRunning,
		LastRun:     w.lastRun,
		SentCount:   w.sentCount,
		FailedScans: w.failedScans,
	}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

func (w *ReminderWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("Reminder scan failed", zap.Error(err))
			}
		}
	}
}

// RunOnce scans for stale vouchers and publishes one reminder per voucher
// not reminded within StaleAfter. It returns the number of reminders sent.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	if w.config.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.ScanTimeout)
		defer cancel()
	}

	now := w.now()
	stale, err := w.voucherRepo.ListStale(ctx, now.Add(-w.config.StaleAfter))

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastRun = now
	if err != nil {
		w.failedScans++
		w.lastError = err
		return 0, fmt.Errorf("failed to list stale vouchers: %w", err)
	}
	w.lastError = nil

	waiting := make(map[int64]struct{}, len(stale))
	sent := 0
	for _, v := range stale {
		waiting[v.ID] = struct{}{}
		if last, ok := w.reminded[v.ID]; ok && now.Sub(last) < w.config.StaleAfter {
			continue
		}

		evt := event.NewEvent(event.TypeVoucherReminder, v.ID, 0, map[string]interface{}{
			"status":        string(v.Status),
			"waiting_since": v.UpdatedAt.UTC().Format(time.RFC3339),
		})
		w.events.DispatchAsync(ctx, evt)
		w.reminded[v.ID] = now
		sent++
	}

	// forget vouchers that moved on so a later stall reminds again
	for id := range w.reminded {
		if _, ok := waiting[id]; !ok {
			delete(w.reminded, id)
		}
	}

	w.sentCount += sent
	if sent > 0 {
		w.logger.Info("Approval reminders published", zap.Int("count", sent), zap.Int("stale", len(stale)))
	}
	return sent, nil
}
