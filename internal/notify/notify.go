// Package notify delivers user notifications on named channels.
package notify

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	appLog "dicodingevent/internal/log"
)

const (
	ChannelDailyReminder = "daily_reminder_channel"
	ChannelNewEvent      = "event_notification_channel"
)

// IDs used when posting on each channel; a new post replaces the previous
// one with the same id.
const (
	IDDailyReminder = 1
	IDNewEvent      = 1
)

var deliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dicodingevent_notifications_total",
	Help: "Notifications by channel and outcome.",
}, []string{"channel", "result"})

type Notification struct {
	Channel string `json:"channel"`
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Gate drops notifications while permission is not granted. Dropping is not
// an error.
type Gate struct {
	next    Notifier
	granted atomic.Bool
}

func NewGate(next Notifier, granted bool) *Gate {
	g := &Gate{next: next}
	g.granted.Store(granted)
	return g
}

func (g *Gate) SetGranted(v bool) { g.granted.Store(v) }

func (g *Gate) Granted() bool { return g.granted.Load() }

func (g *Gate) Notify(ctx context.Context, n Notification) error {
	if !g.granted.Load() {
		deliveredTotal.WithLabelValues(n.Channel, "suppressed").Inc()
		appLog.Debug("notify: permission not granted, dropping", "channel", n.Channel, "title", n.Title)
		return nil
	}
	if err := g.next.Notify(ctx, n); err != nil {
		deliveredTotal.WithLabelValues(n.Channel, "error").Inc()
		return err
	}
	deliveredTotal.WithLabelValues(n.Channel, "delivered").Inc()
	return nil
}

// LogNotifier writes notifications to the service log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	appLog.Info("notification", "channel", n.Channel, "id", n.ID, "title", n.Title)
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }
