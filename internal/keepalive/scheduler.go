package keepalive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "pingkeeper/pkg/logx"
)

// Handle identifies one recurring schedule.
type Handle int

// Scheduler runs jobs on a fixed interval. After Cancel returns, no new
// invocation of the job starts; an invocation already running may finish.
type Scheduler interface {
	Every(interval time.Duration, job func()) (Handle, error)
	Cancel(h Handle)
}

var ErrSchedulerStopped = errors.New("keepalive: scheduler stopped")

// CronScheduler is a Scheduler backed by robfig/cron. Each job is wrapped
// with SkipIfStillRunning so invocations of one schedule never overlap.
type CronScheduler struct {
	mu      sync.Mutex
	c       *cron.Cron
	logger  cron.Logger
	started bool
	stopped bool
}

func NewCronScheduler(log logx.Logger) *CronScheduler {
	cl := logx.CronLogger(log)
	return &CronScheduler{
		c:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger: cl,
	}
}

func (s *CronScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.c.Start()
}

// Stop halts the cron loop and waits for running jobs or ctx.
func (s *CronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	done := s.c.Stop().Done()
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Every schedules job. cron's constant-delay schedule rounds interval down
// to whole seconds, with a one second minimum.
func (s *CronScheduler) Every(interval time.Duration, job func()) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrSchedulerStopped
	}
	wrapped := cron.NewChain(cron.SkipIfStillRunning(s.logger)).Then(cron.FuncJob(job))
	id := s.c.Schedule(cron.Every(interval), wrapped)
	return Handle(id), nil
}

func (s *CronScheduler) Cancel(h Handle) {
	s.c.Remove(cron.EntryID(h))
}

// Len reports the number of live schedules.
func (s *CronScheduler) Len() int { return len(s.c.Entries()) }
