package scheduler

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"camera-fleet/pkg/health"
)

// Sweeper runs one health pass over every camera.
type Sweeper interface {
	Sweep(ctx context.Context) (health.SweepResult, error)
}

// Scheduler triggers the camera health sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	ctx     context.Context
	running atomic.Bool
}

// New returns a scheduler running sweeper on schedule, a six-field cron
// expression with seconds.
func New(ctx context.Context, sweeper Sweeper, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		sweeper: sweeper,
		ctx:     ctx,
	}
	if _, err := s.cron.AddFunc(schedule, s.RunSweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running scheduled sweeps.
func (s *Scheduler) Start() {
	log.Println("[Scheduler] Starting health sweep schedule")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[Scheduler] Stopped")
}

// RunSweep runs one sweep now. An overlapping call is skipped.
func (s *Scheduler) RunSweep() {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("[Scheduler] Health sweep already running, skipping")
		return
	}
	defer s.running.Store(false)

	res, err := s.sweeper.Sweep(s.ctx)
	if err != nil {
		log.Printf("[Scheduler] Health sweep stopped early: %v", err)
	}
	log.Printf("[Scheduler] Health sweep: %d checked, %d changed, %d skipped, %d failed in %s",
		res.Checked, res.Changed, res.Skipped, res.Failed, res.Duration)
}
