// Package scheduler runs the background maintenance jobs using gocron v2:
// retention sweeps over the record tables and debounce cache cleanup.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/timeutil"
)

// BatchJob is a scheduled job that processes a batch and reports how many
// items it touched.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// DebounceSweeper expires stale debounce entries and reports the count.
type DebounceSweeper interface {
	SweepDebounce() int
}

// Manager owns the single gocron scheduler instance and the jobs
// registered on it.
type Manager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	started   bool
	startedMu sync.RWMutex
}

// NewManager creates a scheduler manager. All job times are UTC.
func NewManager(log logger.Interface) (*Manager, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, err
	}
	return &Manager{
		scheduler: scheduler,
		logger:    log.Named("scheduler"),
	}, nil
}

// RegisterRetentionJob schedules the record retention sweep. The first run
// fires immediately so a long-stopped instance catches up on restart.
func (m *Manager) RegisterRetentionJob(job BatchJob, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			m.runRetention(ctx, job)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("retention"),
		gocron.WithName("record-retention"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered retention job", "interval", interval)
	return nil
}

func (m *Manager) runRetention(ctx context.Context, job BatchJob) {
	m.logger.Debugw("retention sweep started")

	start := timeutil.NowUTC()
	removed, err := job.Execute(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Errorw("retention sweep failed",
			"error", err,
			"duration", time.Since(start),
		)
		return
	}

	if removed > 0 {
		m.logger.Infow("retention sweep completed",
			"removed", removed,
			"duration", time.Since(start),
		)
	} else {
		m.logger.Debugw("retention sweep found nothing to remove",
			"duration", time.Since(start),
		)
	}
}

// RegisterDebounceSweepJob schedules expiry of completed debounce entries.
// The cache starts empty, so there is no immediate first run.
func (m *Manager) RegisterDebounceSweepJob(sweeper DebounceSweeper, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if removed := sweeper.SweepDebounce(); removed > 0 {
				m.logger.Debugw("debounce entries expired", "count", removed)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("debounce"),
		gocron.WithName("debounce-sweep"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered debounce sweep job", "interval", interval)
	return nil
}

// Start starts the scheduler and all registered jobs.
func (m *Manager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler started", "job_count", len(m.scheduler.Jobs()))
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (m *Manager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	err := m.scheduler.Shutdown()
	m.started = false

	if err != nil {
		m.logger.Errorw("scheduler shutdown with error", "error", err)
		return err
	}

	m.logger.Infow("scheduler stopped")
	return nil
}

// IsStarted reports whether the scheduler is running.
func (m *Manager) IsStarted() bool {
	m.startedMu.RLock()
	defer m.startedMu.RUnlock()
	return m.started
}

// Jobs returns the registered jobs for inspection.
func (m *Manager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
