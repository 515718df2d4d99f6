package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/services"
)

// Handler processes one claimed job to a settled result.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) (queue.Result, error)
}

// Manager coordinates queue processing across worker slots.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	handler  Handler
	notifier notifications.Service
	logger   *slog.Logger

	workers            int
	pollInterval       time.Duration
	errorRetryInterval time.Duration
	heartbeatInterval  time.Duration
	heartbeatTimeout   time.Duration
	sweepInterval      time.Duration
	retentionAge       time.Duration
	retentionCount     int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithIntervals overrides the polling cadence (used in tests to avoid
// second-granularity waits).
func WithIntervals(poll, heartbeat, sweep time.Duration) ManagerOption {
	return func(m *Manager) {
		if poll > 0 {
			m.pollInterval = poll
			m.errorRetryInterval = poll
		}
		if heartbeat > 0 {
			m.heartbeatInterval = heartbeat
		}
		if sweep > 0 {
			m.sweepInterval = sweep
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, handler Handler, logger *slog.Logger, opts ...ManagerOption) *Manager {
	return NewManagerWithNotifier(cfg, store, handler, logger, notifications.NewService(cfg), opts...)
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier
// (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, handler Handler, logger *slog.Logger, notifier notifications.Service, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Queue.Workers
	if workers < 1 {
		workers = 1
	}
	m := &Manager{
		cfg:                cfg,
		store:              store,
		handler:            handler,
		notifier:           notifier,
		logger:             logging.NewComponentLogger(logger, "workflow"),
		workers:            workers,
		pollInterval:       time.Duration(cfg.Queue.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Queue.ErrorRetryInterval) * time.Second,
		heartbeatInterval:  time.Duration(cfg.Queue.HeartbeatInterval) * time.Second,
		heartbeatTimeout:   time.Duration(cfg.Queue.HeartbeatTimeout) * time.Second,
		sweepInterval:      time.Duration(cfg.Queue.RetentionSweepInterval) * time.Second,
		retentionAge:       time.Duration(cfg.Queue.RetentionHours) * time.Hour,
		retentionCount:     cfg.Queue.RetentionCount,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the worker slots and the maintenance loop. It is an error to
// start a running manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow manager already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for slot := 0; slot < m.workers; slot++ {
		m.wg.Add(1)
		go func(slot int) {
			defer m.wg.Done()
			m.workerLoop(runCtx, slot)
		}(slot)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.maintenanceLoop(runCtx)
	}()

	m.logger.Info("workflow started", logging.Int("workers", m.workers))
	return nil
}

// Stop cancels processing and waits for in-flight work to unwind.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether the manager has been started and not yet stopped.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) workerLoop(ctx context.Context, slot int) {
	logger := m.logger.With(logging.Int("worker", slot))
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := m.store.ClaimNextReady(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim next job", logging.Error(err))
			if !sleepCtx(ctx, m.errorRetryInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, m.pollInterval) {
				return
			}
			continue
		}

		m.process(ctx, logger, job)
	}
}

func (m *Manager) process(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	jobCtx, cancel := context.WithCancel(services.WithJobID(ctx, job.ID))
	defer cancel()

	jobLogger := logging.WithContext(jobCtx, logger)
	jobLogger.Info("job claimed",
		logging.String(logging.FieldURL, job.Payload.URL),
		logging.Int("attempt", job.Attempts),
		logging.Int("max_attempts", job.MaxAttempts))

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		m.heartbeatLoop(jobCtx, job.ID)
	}()

	result, err := m.handler.Handle(jobCtx, job)
	cancel()
	<-heartbeatDone

	if err != nil {
		m.settleFailure(ctx, jobLogger, job, err)
		return
	}

	if _, completeErr := m.store.Complete(ctx, job.ID, result); completeErr != nil {
		jobLogger.Error("complete job", logging.Error(completeErr))
		return
	}
	jobLogger.Info("job completed",
		logging.String(logging.FieldVideoID, result.VideoID),
		logging.Bool("is_music", result.IsMusic))
	title := result.Title
	if title == "" {
		title = job.Payload.URL
	}
	if notifyErr := m.notifier.NotifyJobCompleted(ctx, title, result.IsMusic); notifyErr != nil {
		jobLogger.Warn("completion notification", logging.Error(notifyErr))
	}
}

func (m *Manager) settleFailure(ctx context.Context, logger *slog.Logger, job *queue.Job, handleErr error) {
	final := services.IsTerminal(handleErr)
	settled, failErr := m.store.Fail(ctx, job.ID, handleErr.Error(), final)
	if failErr != nil {
		logger.Error("record job failure", logging.Error(failErr))
		return
	}

	if settled.Status == queue.StatusDelayed {
		logger.Warn("job attempt failed, retry scheduled",
			logging.Error(handleErr),
			logging.Int("attempt", settled.Attempts))
		return
	}

	logger.Error("job failed", logging.Error(handleErr), logging.Bool("final", final))
	if notifyErr := m.notifier.NotifyJobFailed(ctx, job.Payload.URL, handleErr.Error()); notifyErr != nil {
		logger.Warn("failure notification", logging.Error(notifyErr))
	}
}

func (m *Manager) heartbeatLoop(ctx context.Context, jobID int64) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.store.UpdateHeartbeat(ctx, jobID); err != nil && ctx.Err() == nil {
				m.logger.Warn("update heartbeat", logging.Int64(logging.FieldJobID, jobID), logging.Error(err))
			}
		}
	}
}

func (m *Manager) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runMaintenance(ctx)
		}
	}
}

func (m *Manager) runMaintenance(ctx context.Context) {
	now := time.Now().UTC()

	if reclaimed, err := m.store.ReclaimStale(ctx, now.Add(-m.heartbeatTimeout)); err != nil {
		m.logger.Error("reclaim stale jobs", logging.Error(err))
	} else if reclaimed > 0 {
		m.logger.Warn("reclaimed stalled jobs", logging.Int64("count", reclaimed))
	}

	if expired, err := m.store.SweepExpired(ctx, now.Add(-m.retentionAge)); err != nil {
		m.logger.Error("sweep expired jobs", logging.Error(err))
	} else if expired > 0 {
		m.logger.Warn("expired abandoned jobs", logging.Int64("count", expired))
	}

	if pruned, err := m.store.Prune(ctx, m.retentionAge, m.retentionCount); err != nil {
		m.logger.Error("prune settled jobs", logging.Error(err))
	} else if pruned > 0 {
		m.logger.Info("pruned settled jobs", logging.Int64("count", pruned))
	}
}

// sleepCtx waits for d unless ctx is canceled first; it reports whether the
// full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 50 * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
