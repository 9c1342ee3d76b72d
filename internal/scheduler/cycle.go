// Package scheduler drives the periodic stages. The pipeline itself is
// event-driven over the bus; only stage entry points like the price refresh,
// the signal cycle, and the settlement sweep need a clock.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one recurring stage entry point.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// RunAtStart fires the job once immediately instead of waiting a full
	// interval; the price refresh wants this so the first signal cycle has
	// a row to read.
	RunAtStart bool
}

type Scheduler struct {
	jobs []Job
	log  zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// jobTimeout bounds one invocation; a stuck RPC must not wedge the loop.
const jobTimeout = 90 * time.Second

func New(log zerolog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job)
	}
	s.log.Info().Int("jobs", len(s.jobs)).Msg("started")
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	if job.RunAtStart {
		s.invoke(job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.invoke(job)
		}
	}
}

func (s *Scheduler) invoke(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", job.Name).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", job.Name).Dur("took", time.Since(started)).Msg("job done")
}

// Stop halts the loops and waits for in-flight invocations to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
