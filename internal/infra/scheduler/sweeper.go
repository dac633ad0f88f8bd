package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SessionSweeper purges dead sessions across all users.
type SessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweeper runs a SessionSweeper on a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	target  SessionSweeper
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	running bool
}

// NewSweeper parses schedule (standard five-field cron or a descriptor like
// "@every 10m") and registers the sweep job. The job does not run until Start.
func NewSweeper(schedule string, target SessionSweeper, logger *zap.Logger) (*Sweeper, error) {
	if target == nil {
		return nil, fmt.Errorf("scheduler: sweep target is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Sweeper{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target:  target,
		logger:  logger,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("scheduler: parse schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("session sweeper started")
}

// Stop halts the schedule and waits for an in-flight sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("session sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	removed, err := s.target.Sweep(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	s.logger.Info("session sweep completed",
		zap.Int("removed", removed),
		zap.Duration("elapsed", time.Since(start)),
	)
}
