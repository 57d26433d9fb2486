// Package reminder runs named periodic jobs and implements the daily
// latest-event reminder.
package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "dicodingevent/internal/log"
)

// Scheduler keeps at most one cron entry per name. Scheduling a name that
// already exists replaces the old entry.
type Scheduler struct {
	ctx  context.Context
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler returns a stopped scheduler. Jobs receive ctx.
func NewScheduler(ctx context.Context, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := appLog.CronLogger()
	return &Scheduler{
		ctx: ctx,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Schedule registers job under name with the given schedule.
func (s *Scheduler) Schedule(name string, sched cron.Schedule, job func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		appLog.Debug("reminder: replacing entry", "name", name)
	}

	id := s.cron.Schedule(sched, cron.FuncJob(func() {
		appLog.Debug("reminder: job start", "name", name)
		job(s.ctx)
	}))
	s.entries[name] = id

	appLog.Info("reminder scheduled", "name", name, "next", s.cron.Entry(id).Next)
}

// Cancel removes the entry named name and reports whether one existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	appLog.Info("reminder canceled", "name", name)
	return true
}

func (s *Scheduler) Scheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// Next returns the next activation of name. Before Start it is zero.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}
