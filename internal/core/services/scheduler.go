package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/homeqa/internal/core/ports/driving"
	"github.com/custodia-labs/homeqa/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// DefaultSchedule syncs every connected source every fifteen minutes.
const DefaultSchedule = "@every 15m"

// Scheduler periodically starts a sync of every connected source.
type Scheduler struct {
	spec     string
	syncOrch driving.SyncOrchestrator

	mu      sync.RWMutex
	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler for a cron spec such as "@every 15m"
// or a five field expression like "*/30 * * * *".
func NewScheduler(spec string, syncOrch driving.SyncOrchestrator) *Scheduler {
	if spec == "" {
		spec = DefaultSchedule
	}
	return &Scheduler{spec: spec, syncOrch: syncOrch}
}

// Start registers the job and returns. Jobs that overrun their slot are
// skipped rather than stacked.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	entryID, err := c.AddFunc(s.spec, func() { s.runJob(jobCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}

	s.cron = c
	s.entryID = entryID
	s.ctx = jobCtx
	s.cancel = cancel
	s.running = true
	c.Start()

	logger.Info("Scheduler started with schedule %s", s.spec)
	return nil
}

// Stop halts the schedule and waits up to 30 seconds for a running job.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.cancel()

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		logger.Info("Scheduler stopped")
	case <-time.After(30 * time.Second):
		logger.Warn("Scheduler stop timed out")
	}
	s.running = false
	return nil
}

// RunOnce starts a sync of all connected sources now.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	logger.Info("Running scheduled sync once")
	return s.syncOrch.SyncAll(ctx)
}

// IsRunning reports whether the schedule is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// NextRun returns the next activation, or zero when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) runJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.syncOrch.SyncAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Scheduled sync: %v", err)
	}
}
