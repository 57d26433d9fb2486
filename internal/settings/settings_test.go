package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicodingevent/internal/prefs"
	"dicodingevent/internal/reminder"
)

type fakeScheduler struct {
	entries map[string]cron.Schedule
	adds    int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{entries: map[string]cron.Schedule{}}
}

func (f *fakeScheduler) Schedule(name string, sched cron.Schedule, _ func(context.Context)) {
	f.entries[name] = sched
	f.adds++
}

func (f *fakeScheduler) Cancel(name string) bool {
	_, ok := f.entries[name]
	delete(f.entries, name)
	return ok
}

func (f *fakeScheduler) Scheduled(name string) bool {
	_, ok := f.entries[name]
	return ok
}

func newService(store prefs.Store, sched Scheduler) *Service {
	s := NewService(store, sched, "", reminder.DailyPolicy(), func(context.Context) {})
	s.now = func() time.Time { return time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC) }
	return s
}

func TestDefaults(t *testing.T) {
	s := newService(prefs.NewMemory(), newFakeScheduler())
	assert.Equal(t, Settings{}, s.Get())
}

func TestDailyReminderSchedulesAndCancels(t *testing.T) {
	sched := newFakeScheduler()
	store := prefs.NewMemory()
	s := newService(store, sched)

	require.NoError(t, s.SetDailyReminder(true))
	require.True(t, sched.Scheduled(reminder.DefaultName))
	assert.True(t, store.Bool(prefs.KeyDailyReminder, false))

	now := s.now()
	assert.True(t, sched.entries[reminder.DefaultName].Next(now).Equal(now.Add(time.Hour)))

	require.NoError(t, s.SetDailyReminder(true))
	assert.Equal(t, 2, sched.adds)
	assert.Len(t, sched.entries, 1)

	require.NoError(t, s.SetDailyReminder(false))
	assert.False(t, sched.Scheduled(reminder.DefaultName))
	assert.False(t, store.Bool(prefs.KeyDailyReminder, true))
}

func TestApplyOnlyChangesDiffs(t *testing.T) {
	sched := newFakeScheduler()
	s := newService(prefs.NewMemory(), sched)

	got, err := s.Apply(Settings{DarkMode: true})
	require.NoError(t, err)
	assert.Equal(t, Settings{DarkMode: true}, got)
	assert.Zero(t, sched.adds)

	got, err = s.Apply(Settings{DarkMode: true, DailyReminder: true})
	require.NoError(t, err)
	assert.Equal(t, Settings{DarkMode: true, DailyReminder: true}, got)
	assert.Equal(t, 1, sched.adds)
}

func TestRestore(t *testing.T) {
	sched := newFakeScheduler()
	store := prefs.NewMemory()
	s := newService(store, sched)

	require.NoError(t, s.Restore())
	assert.False(t, sched.Scheduled(reminder.DefaultName))

	require.NoError(t, store.SetBool(prefs.KeyDailyReminder, true))
	require.NoError(t, s.Restore())
	assert.True(t, sched.Scheduled(reminder.DefaultName))
}

type brokenPrefs struct{ *prefs.Memory }

func (b *brokenPrefs) SetBool(string, bool) error { return errors.New("read-only file system") }

func TestPersistFailureSkipsScheduling(t *testing.T) {
	sched := newFakeScheduler()
	s := newService(&brokenPrefs{Memory: prefs.NewMemory()}, sched)

	assert.Error(t, s.SetDailyReminder(true))
	assert.False(t, sched.Scheduled(reminder.DefaultName))
}

// blockingScheduler holds Schedule until release is closed.
type blockingScheduler struct {
	mu      sync.Mutex
	fake    *fakeScheduler
	entered chan struct{}
	release chan struct{}
}

func (b *blockingScheduler) Schedule(name string, sched cron.Schedule, job func(context.Context)) {
	b.entered <- struct{}{}
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fake.Schedule(name, sched, job)
}

func (b *blockingScheduler) Cancel(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fake.Cancel(name)
}

func (b *blockingScheduler) Scheduled(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fake.Scheduled(name)
}

func TestConcurrentReminderTogglesAgree(t *testing.T) {
	sched := &blockingScheduler{
		fake:    newFakeScheduler(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	store := prefs.NewMemory()
	s := newService(store, sched)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.SetDailyReminder(true))
	}()
	<-sched.entered

	go func() {
		defer wg.Done()
		assert.NoError(t, s.SetDailyReminder(false))
	}()
	// Let the disabling call reach the service while enabling is in flight.
	time.Sleep(20 * time.Millisecond)
	close(sched.release)
	wg.Wait()

	assert.False(t, store.Bool(prefs.KeyDailyReminder, true))
	assert.False(t, sched.Scheduled(reminder.DefaultName))
}
