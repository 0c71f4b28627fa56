// Package jobs runs the server's periodic background work on cron
// schedules: sweeping expired cache entries and checking for new versions.
package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "countdown/internal/log"
	"countdown/internal/ttlcache"
)

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// New returns a Scheduler whose jobs receive ctx.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{}),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
		ctx: ctx,
	}
}

// AddSweep schedules a purge of expired entries from caches.
func (s *Scheduler) AddSweep(spec string, caches ...ttlcache.Sweeper) error {
	_, err := s.cron.AddFunc(spec, func() { Sweep(caches...) })
	if err != nil {
		return fmt.Errorf("schedule cache sweep %q: %w", spec, err)
	}
	return nil
}

// AddFunc schedules fn, passing it the scheduler's context.
func (s *Scheduler) AddFunc(spec, name string, fn func(context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() { fn(s.ctx) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

// Len reports how many jobs are scheduled.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

// Start begins running jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// Sweep purges expired entries from each cache and returns the total removed.
func Sweep(caches ...ttlcache.Sweeper) int {
	total := 0
	for _, c := range caches {
		n := c.Purge(c.Now())
		if n > 0 {
			appLog.Debug("cache sweep", "cache", c.Name(), "removed", n)
		}
		total += n
	}
	return total
}

// cronLogger routes cron's own logging into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
