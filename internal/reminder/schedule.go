package reminder

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"
)

// Policy describes when a reminder fires. Exactly one of RRule, Cron or
// Interval is used, in that order of preference.
type Policy struct {
	Interval     time.Duration
	InitialDelay time.Duration
	Cron         string
	RRule        string
	// Location is the zone cron fields and RRULE hours are read in. Nil
	// keeps the zone of the time passed to Schedule.
	Location *time.Location
}

// DailyPolicy is the default reminder cadence: every 24 hours, first run one
// hour after scheduling.
func DailyPolicy() Policy {
	return Policy{Interval: 24 * time.Hour, InitialDelay: time.Hour}
}

// Schedule builds the cron schedule for p as of now.
func (p Policy) Schedule(now time.Time) (cron.Schedule, error) {
	if p.Location != nil {
		now = now.In(p.Location)
	}
	switch {
	case p.RRule != "":
		opt, err := rrule.StrToROption(p.RRule)
		if err != nil {
			return nil, fmt.Errorf("reminder: parse rrule %q: %w", p.RRule, err)
		}
		// Without an explicit DTSTART, rrule-go anchors the rule at parse time.
		if opt.Dtstart.IsZero() {
			opt.Dtstart = now.Add(p.InitialDelay).Truncate(time.Second)
		}
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("reminder: build rrule %q: %w", p.RRule, err)
		}
		return rruleSchedule{r}, nil

	case p.Cron != "":
		sched, err := cron.ParseStandard(p.Cron)
		if err != nil {
			return nil, fmt.Errorf("reminder: parse cron %q: %w", p.Cron, err)
		}
		return afterSchedule{notBefore: now.Add(p.InitialDelay), loc: p.Location, next: sched}, nil

	case p.Interval > 0:
		if p.Interval < time.Second {
			return nil, fmt.Errorf("reminder: interval %s is below one second", p.Interval)
		}
		return delayedSchedule{
			first: now.Add(p.InitialDelay),
			every: cron.Every(p.Interval),
		}, nil
	}
	return nil, fmt.Errorf("reminder: policy has no interval, cron or rrule")
}

// delayedSchedule fires at first, then at a constant interval after each
// activation.
type delayedSchedule struct {
	first time.Time
	every cron.ConstantDelaySchedule
}

func (s delayedSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.every.Next(t)
}

// afterSchedule defers a cron schedule until notBefore. A spec without
// CRON_TZ follows the zone of the time it is given, so t is kept in loc.
type afterSchedule struct {
	notBefore time.Time
	loc       *time.Location
	next      cron.Schedule
}

func (s afterSchedule) Next(t time.Time) time.Time {
	loc := s.loc
	if loc == nil {
		loc = t.Location()
	}
	if t.Before(s.notBefore) {
		t = s.notBefore.Add(-time.Second)
	}
	return s.next.Next(t.In(loc))
}

type rruleSchedule struct {
	r *rrule.RRule
}

// Next returns the zero time once the rule is exhausted, which cron treats
// as "never".
func (s rruleSchedule) Next(t time.Time) time.Time {
	return s.r.After(t, false)
}
