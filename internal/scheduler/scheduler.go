// Package scheduler runs the background maintenance loops: cache
// sweeps, budget window resets and nightly purges. Interval jobs run
// on plain tickers; calendar jobs run on a cron schedule.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// job is one recurring interval task.
type job struct {
	name     string
	interval time.Duration
	run      func()
}

// Scheduler owns the maintenance goroutines. Register jobs before
// Start; Stop waits for in-flight runs to finish.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []job
	cron    *cron.Cron
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	log     zerolog.Logger
}

// New creates an empty scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		stop: make(chan struct{}),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Every registers an interval job. Ignored after Start.
func (s *Scheduler) Every(name string, interval time.Duration, run func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warn().Str("job", name).Msg("Job registered after start, ignoring")
		return
	}
	s.jobs = append(s.jobs, job{name: name, interval: interval, run: run})
}

// Cron registers a calendar job with a standard 5-field cron spec.
func (s *Scheduler) Cron(name, spec string, run func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.cron.AddFunc(spec, func() { s.safeRun(name, run) })
	if err != nil {
		return err
	}
	s.log.Debug().Str("job", name).Str("spec", spec).Msg("Cron job registered")
	return nil
}

// Start launches one goroutine per interval job plus the cron runner.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, j := range s.jobs {
		j := j
		s.wg.Add(1)
		go s.runLoop(j)
	}
	s.cron.Start()

	s.log.Info().Int("interval_jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop halts all loops and blocks until running jobs return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stop)
	cronCtx := s.cron.Stop()
	s.wg.Wait()
	<-cronCtx.Done()

	s.log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runLoop(j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeRun(j.name, j.run)
		}
	}
}

// safeRun isolates a panicking job so one bad sweep cannot take down
// the rest of the maintenance loops.
func (s *Scheduler) safeRun(name string, run func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("job", name).Msg("Job panicked")
		}
	}()
	run()
}
