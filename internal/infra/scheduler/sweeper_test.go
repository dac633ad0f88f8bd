package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(context.Context) (int, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	if _, err := NewSweeper("not a schedule", &countingSweeper{}, zap.NewNop()); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := NewSweeper("@every 1m", nil, zap.NewNop()); err == nil {
		t.Fatal("expected error for nil target")
	}
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	target := &countingSweeper{}
	s, err := NewSweeper("@every 1s", target, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSweeper returned error: %v", err)
	}

	s.Start()
	s.Start()

	deadline := time.Now().Add(3 * time.Second)
	for target.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if target.calls.Load() == 0 {
		t.Fatal("expected at least one sweep")
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
}

func TestSweeperRunSurvivesSweepError(t *testing.T) {
	target := &countingSweeper{err: errors.New("store down")}
	s, err := NewSweeper("@every 1h", target, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSweeper returned error: %v", err)
	}
	s.run()
	if target.calls.Load() != 1 {
		t.Fatalf("expected one sweep call, got %d", target.calls.Load())
	}
}
