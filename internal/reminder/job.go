package reminder

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
	"dicodingevent/internal/notify"
)

// DefaultName is the unique name of the daily reminder entry.
const DefaultName = "daily_reminder"

var runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dicodingevent_reminder_runs_total",
	Help: "Latest-event reminder runs by outcome.",
}, []string{"channel", "result"})

// LatestSource returns the most recent event, or nil when there is none.
type LatestSource interface {
	LatestEvent(ctx context.Context) (*model.Event, error)
}

// NotifyLatest fetches the latest event once and, if there is one, posts it
// on channel with the event name as title and its description as body.
// Failures are logged and swallowed; a run always completes.
func NotifyLatest(ctx context.Context, src LatestSource, n notify.Notifier, channel string, id int) {
	ev, err := src.LatestEvent(ctx)
	if err != nil {
		runsTotal.WithLabelValues(channel, "fetch_error").Inc()
		appLog.Error("reminder: fetch latest event failed", err, "channel", channel)
		return
	}
	if ev == nil {
		runsTotal.WithLabelValues(channel, "no_event").Inc()
		appLog.Info("reminder: no events", "channel", channel)
		return
	}

	err = n.Notify(ctx, notify.Notification{
		Channel: channel,
		ID:      id,
		Title:   ev.Name,
		Body:    ev.Description,
	})
	if err != nil {
		runsTotal.WithLabelValues(channel, "notify_error").Inc()
		appLog.Error("reminder: notify failed", err, "channel", channel, "event_id", ev.ID)
		return
	}
	runsTotal.WithLabelValues(channel, "notified").Inc()
}

// DailyJob is the body of the daily reminder.
func DailyJob(src LatestSource, n notify.Notifier) func(ctx context.Context) {
	return func(ctx context.Context) {
		NotifyLatest(ctx, src, n, notify.ChannelDailyReminder, notify.IDDailyReminder)
	}
}
