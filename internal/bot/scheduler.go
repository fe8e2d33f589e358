package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// NewScheduler creates a Scheduler. Jobs receive ctx, which should be
// cancelled on shutdown.
func NewScheduler(ctx context.Context) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:  ctx,
	}
}

// Add registers job under name. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, job func(ctx context.Context)) error {
	if spec == "" {
		log.Info().Str("job", name).Msg("Scheduled job disabled")
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("job", name).Interface("panic", r).Msg("Scheduled job panicked")
			}
		}()
		job(s.ctx)
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("Scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}

	log.Info().Str("job", name).Str("spec", spec).Msg("Scheduled job registered")
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
