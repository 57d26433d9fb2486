// Package eventsync keeps a surface's observable SyncState in step with
// requests to the remote event source.
//
// Every Fetch call marks the state as loading before it returns, runs exactly
// one request on the I/O pool, and publishes the terminal state in a single
// update on the UI executor. Requests are never retried or canceled. By
// default a slower, older request that completes last overwrites a newer
// result; WithLatestOnly opts into dropping such results.
package eventsync

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dicodingevent/internal/eventapi"
	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
	"dicodingevent/internal/observable"
)

// User-facing error messages.
const (
	APIErrorPrefix      = "Terjadi kesalahan API: "
	NoConnectionMessage = "Tidak ada koneksi internet atau kesalahan server"
)

var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicodingevent_fetch_total",
		Help: "Event fetches by operation and outcome.",
	}, []string{"op", "result"})
	staleDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dicodingevent_fetch_stale_dropped_total",
		Help: "Completed fetches discarded because a newer request was issued.",
	})
)

// Runner runs blocking work off the caller's goroutine.
type Runner interface {
	Go(fn func(ctx context.Context))
}

// Executor publishes state on the UI-facing context.
type Executor interface {
	Post(fn func())
}

// Controller owns one surface's SyncState.
type Controller struct {
	source eventapi.Source
	ui     Executor
	io     Runner

	state      *observable.Value[model.SyncState]
	seq        atomic.Uint64
	latestOnly bool
}

type Option func(*Controller)

// WithLatestOnly makes the controller apply only the result of the most
// recently issued request; results of superseded requests are dropped.
func WithLatestOnly() Option {
	return func(c *Controller) { c.latestOnly = true }
}

func New(source eventapi.Source, ui Executor, io Runner, opts ...Option) *Controller {
	c := &Controller{
		source: source,
		ui:     ui,
		io:     io,
		state:  observable.NewWith(model.SyncState{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state snapshot.
func (c *Controller) State() model.SyncState {
	st, _ := c.state.Get()
	return st
}

// Subscribe returns a live view of the state, starting with the current one.
func (c *Controller) Subscribe() *observable.Subscription[model.SyncState] {
	return c.state.Subscribe()
}

// FetchList requests events with the given status. A non-empty query adds a
// server-side text filter.
func (c *Controller) FetchList(status model.Status, query string) {
	seq := c.begin()
	op := "list"
	if query != "" {
		op = "search"
	}

	c.io.Go(func(ctx context.Context) {
		events, err := c.source.ListEvents(ctx, status, query)
		c.ui.Post(func() {
			c.complete(seq, op, err,
				func(st *model.SyncState) {
					if events == nil {
						events = []model.Event{}
					}
					st.Events = events
				},
				func(st *model.SyncState) { st.Events = []model.Event{} },
			)
		})
	})
}

// FetchOne requests a single event by id.
func (c *Controller) FetchOne(id int) {
	seq := c.begin()

	c.io.Go(func(ctx context.Context) {
		ev, err := c.source.GetEvent(ctx, id)
		c.ui.Post(func() {
			c.complete(seq, "detail", err,
				func(st *model.SyncState) { st.Event = ev },
				func(st *model.SyncState) { st.Event = nil },
			)
		})
	})
}

// Await blocks until the state is no longer loading and returns it. Call it
// after a Fetch to wait for that request's terminal state.
func (c *Controller) Await(ctx context.Context) (model.SyncState, error) {
	sub := c.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return c.State(), ctx.Err()
		case st, ok := <-sub.C():
			if !ok {
				return c.State(), errors.New("eventsync: subscription closed")
			}
			if !st.Loading {
				return st, nil
			}
		}
	}
}

// begin publishes the loading transition and returns the request's tag.
func (c *Controller) begin() uint64 {
	seq := c.seq.Add(1)
	c.state.Update(func(st model.SyncState) model.SyncState {
		st.Loading = true
		st.ErrorMessage = nil
		return st
	})
	return seq
}

// complete runs on the UI executor and applies one terminal state.
func (c *Controller) complete(seq uint64, op string, err error, onSuccess, onFailure func(*model.SyncState)) {
	if c.latestOnly && seq != c.seq.Load() {
		staleDroppedTotal.Inc()
		appLog.Debug("eventsync: dropping superseded result", "op", op, "seq", seq)
		return
	}

	result := "success"
	if err != nil {
		result = "transport_error"
		var apiErr *eventapi.APIError
		if errors.As(err, &apiErr) {
			result = "api_error"
		}
		appLog.Error("eventsync: fetch failed", err, "op", op)
	}
	fetchTotal.WithLabelValues(op, result).Inc()

	c.state.Update(func(st model.SyncState) model.SyncState {
		st.Loading = false
		if err != nil {
			msg := ErrorMessage(err)
			st.ErrorMessage = &msg
			onFailure(&st)
			return st
		}
		st.ErrorMessage = nil
		onSuccess(&st)
		return st
	})
}

// ErrorMessage maps a source error to the text shown to the user. A
// server-reported failure carries the server's message; anything else is
// reported as a connectivity problem.
func ErrorMessage(err error) string {
	var apiErr *eventapi.APIError
	if errors.As(err, &apiErr) {
		return APIErrorPrefix + apiErr.Message
	}
	return NoConnectionMessage
}
