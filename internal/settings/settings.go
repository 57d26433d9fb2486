// Package settings applies user preference changes and their side effects.
package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/prefs"
	"dicodingevent/internal/reminder"
)

// Settings is the user-visible preference snapshot.
type Settings struct {
	DarkMode      bool `json:"dark_mode"`
	DailyReminder bool `json:"daily_reminder"`
}

// Scheduler is the part of reminder.Scheduler the service drives.
type Scheduler interface {
	Schedule(name string, sched cron.Schedule, job func(ctx context.Context))
	Cancel(name string) bool
	Scheduled(name string) bool
}

// Service applies settings changes. Each change persists the flag and
// performs its side effect under one lock, so concurrent surfaces cannot
// leave the stored flag and the reminder entry disagreeing.
type Service struct {
	prefs  prefs.Store
	sched  Scheduler
	name   string
	policy reminder.Policy
	job    func(ctx context.Context)
	now    func() time.Time

	mu sync.Mutex
}

// NewService wires preferences to the reminder entry called name.
func NewService(store prefs.Store, sched Scheduler, name string, policy reminder.Policy, job func(ctx context.Context)) *Service {
	if name == "" {
		name = reminder.DefaultName
	}
	return &Service{
		prefs:  store,
		sched:  sched,
		name:   name,
		policy: policy,
		job:    job,
		now:    time.Now,
	}
}

func (s *Service) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked()
}

func (s *Service) SetDarkMode(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setDarkModeLocked(on)
}

// SetDailyReminder persists the flag, then schedules or cancels the
// reminder. Re-enabling replaces the existing entry, restarting its delay.
func (s *Service) SetDailyReminder(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setDailyReminderLocked(on)
}

// Apply sets both flags, skipping the ones that did not change.
func (s *Service) Apply(next Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.getLocked()
	if next.DarkMode != cur.DarkMode {
		if err := s.setDarkModeLocked(next.DarkMode); err != nil {
			return s.getLocked(), err
		}
	}
	if next.DailyReminder != cur.DailyReminder {
		if err := s.setDailyReminderLocked(next.DailyReminder); err != nil {
			return s.getLocked(), err
		}
	}
	return s.getLocked(), nil
}

// Restore schedules the reminder at startup when the preference is on.
func (s *Service) Restore() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prefs.Bool(prefs.KeyDailyReminder, false) {
		return nil
	}
	return s.scheduleLocked()
}

func (s *Service) getLocked() Settings {
	return Settings{
		DarkMode:      s.prefs.Bool(prefs.KeyDarkMode, false),
		DailyReminder: s.prefs.Bool(prefs.KeyDailyReminder, false),
	}
}

func (s *Service) setDarkModeLocked(on bool) error {
	if err := s.prefs.SetBool(prefs.KeyDarkMode, on); err != nil {
		return err
	}
	appLog.Info("settings: dark mode changed", "enabled", on)
	return nil
}

func (s *Service) setDailyReminderLocked(on bool) error {
	if err := s.prefs.SetBool(prefs.KeyDailyReminder, on); err != nil {
		return err
	}
	if !on {
		s.sched.Cancel(s.name)
		return nil
	}
	return s.scheduleLocked()
}

func (s *Service) scheduleLocked() error {
	sched, err := s.policy.Schedule(s.now())
	if err != nil {
		return fmt.Errorf("settings: daily reminder: %w", err)
	}
	s.sched.Schedule(s.name, sched, s.job)
	return nil
}
