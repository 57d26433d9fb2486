package eventsync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicodingevent/internal/dispatch"
	"dicodingevent/internal/eventapi"
	"dicodingevent/internal/model"
)

type fakeSource struct {
	calls atomic.Int32
	list  func(ctx context.Context, status model.Status, query string) ([]model.Event, error)
	get   func(ctx context.Context, id int) (*model.Event, error)
}

func (f *fakeSource) ListEvents(ctx context.Context, status model.Status, query string) ([]model.Event, error) {
	f.calls.Add(1)
	return f.list(ctx, status, query)
}

func (f *fakeSource) GetEvent(ctx context.Context, id int) (*model.Event, error) {
	f.calls.Add(1)
	return f.get(ctx, id)
}

func (f *fakeSource) LatestEvent(context.Context) (*model.Event, error) {
	return nil, errors.New("not used")
}

func newController(t *testing.T, src eventapi.Source, opts ...Option) *Controller {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := dispatch.NewLoop()
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	pool := dispatch.NewPool(ctx, 4)
	t.Cleanup(func() {
		cancel()
		pool.Wait()
		<-done
	})
	return New(src, loop, pool, opts...)
}

func await(t *testing.T, c *Controller) model.SyncState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := c.Await(ctx)
	require.NoError(t, err)
	return st
}

func TestFetchListLoadingTransitions(t *testing.T) {
	for _, status := range []model.Status{model.StatusPast, model.StatusUpcoming, model.StatusAll} {
		t.Run(status.String(), func(t *testing.T) {
			release := make(chan struct{})
			src := &fakeSource{list: func(_ context.Context, s model.Status, _ string) ([]model.Event, error) {
				<-release
				return []model.Event{{ID: int(s) + 10}}, nil
			}}
			c := newController(t, src)
			assert.False(t, c.State().Loading)

			c.FetchList(status, "")
			// Visible before any I/O completes.
			st := c.State()
			assert.True(t, st.Loading)
			assert.Nil(t, st.ErrorMessage)

			close(release)
			st = await(t, c)
			assert.False(t, st.Loading)
			require.NotNil(t, st.Events)
			assert.Equal(t, int(status)+10, st.Events[0].ID)
			assert.Nil(t, st.ErrorMessage)
			assert.Equal(t, int32(1), src.calls.Load())
		})
	}
}

func TestEmptySuccessVersusFailure(t *testing.T) {
	t.Run("empty success", func(t *testing.T) {
		src := &fakeSource{list: func(context.Context, model.Status, string) ([]model.Event, error) {
			return nil, nil
		}}
		c := newController(t, src)
		c.FetchList(model.StatusUpcoming, "")
		st := await(t, c)
		assert.NotNil(t, st.Events)
		assert.Empty(t, st.Events)
		assert.Nil(t, st.ErrorMessage)
		assert.False(t, st.Failed())
	})

	t.Run("server failure", func(t *testing.T) {
		src := &fakeSource{list: func(context.Context, model.Status, string) ([]model.Event, error) {
			return nil, &eventapi.APIError{StatusCode: 500, Message: "Internal Server Error"}
		}}
		c := newController(t, src)
		c.FetchList(model.StatusUpcoming, "x")
		st := await(t, c)
		assert.NotNil(t, st.Events)
		assert.Empty(t, st.Events)
		require.NotNil(t, st.ErrorMessage)
		assert.Equal(t, "Terjadi kesalahan API: Internal Server Error", *st.ErrorMessage)
	})
}

func TestFetchOneTransportFailure(t *testing.T) {
	src := &fakeSource{get: func(_ context.Context, id int) (*model.Event, error) {
		assert.Equal(t, 7, id)
		return nil, fmt.Errorf("%w: dial tcp: no such host", eventapi.ErrTransport)
	}}
	c := newController(t, src)

	c.FetchOne(7)
	st := await(t, c)
	assert.Nil(t, st.Event)
	require.NotNil(t, st.ErrorMessage)
	assert.Contains(t, *st.ErrorMessage, "koneksi internet")
	assert.NotContains(t, *st.ErrorMessage, "kesalahan API")
}

func TestFetchOneServerFailureClearsEvent(t *testing.T) {
	fail := atomic.Bool{}
	src := &fakeSource{get: func(_ context.Context, id int) (*model.Event, error) {
		if fail.Load() {
			return nil, &eventapi.APIError{StatusCode: 404, Message: "Not Found"}
		}
		return &model.Event{ID: id, Name: "ok"}, nil
	}}
	c := newController(t, src)

	c.FetchOne(3)
	st := await(t, c)
	require.NotNil(t, st.Event)
	assert.Equal(t, "ok", st.Event.Name)

	fail.Store(true)
	c.FetchOne(3)
	st = await(t, c)
	assert.Nil(t, st.Event)
	require.NotNil(t, st.ErrorMessage)
	assert.Contains(t, *st.ErrorMessage, "kesalahan API")
}

func TestPreviousResultVisibleWhileLoading(t *testing.T) {
	second := make(chan struct{})
	var n atomic.Int32
	src := &fakeSource{list: func(context.Context, model.Status, string) ([]model.Event, error) {
		if n.Add(1) == 2 {
			<-second
			return []model.Event{{ID: 2}}, nil
		}
		return []model.Event{{ID: 1}}, nil
	}}
	c := newController(t, src)

	c.FetchList(model.StatusPast, "")
	await(t, c)

	c.FetchList(model.StatusPast, "")
	st := c.State()
	assert.True(t, st.Loading)
	require.Len(t, st.Events, 1)
	assert.Equal(t, 1, st.Events[0].ID)

	close(second)
	st = await(t, c)
	assert.Equal(t, 2, st.Events[0].ID)
}

// Two overlapping requests: the older one completes last.
func runOutOfOrder(t *testing.T, opts ...Option) model.SyncState {
	t.Helper()
	gates := map[string]chan struct{}{
		"old": make(chan struct{}),
		"new": make(chan struct{}),
	}
	finished := make(chan string, 2)
	src := &fakeSource{list: func(_ context.Context, _ model.Status, q string) ([]model.Event, error) {
		<-gates[q]
		defer func() { finished <- q }()
		return []model.Event{{Name: q}}, nil
	}}
	c := newController(t, src, opts...)

	c.FetchList(model.StatusAll, "old")
	c.FetchList(model.StatusAll, "new")

	close(gates["new"])
	require.Equal(t, "new", <-finished)
	require.Eventually(t, func() bool {
		st := c.State()
		return !st.Loading && len(st.Events) == 1 && st.Events[0].Name == "new"
	}, 2*time.Second, 5*time.Millisecond)

	close(gates["old"])
	require.Equal(t, "old", <-finished)

	// Let the UI loop apply (or drop) the old result.
	time.Sleep(50 * time.Millisecond)
	return c.State()
}

func TestSupersededRequestOverwritesByDefault(t *testing.T) {
	st := runOutOfOrder(t)
	require.Len(t, st.Events, 1)
	assert.Equal(t, "old", st.Events[0].Name)
	assert.False(t, st.Loading)
}

func TestLatestOnlyDropsSupersededResult(t *testing.T) {
	st := runOutOfOrder(t, WithLatestOnly())
	require.Len(t, st.Events, 1)
	assert.Equal(t, "new", st.Events[0].Name)
	assert.False(t, st.Loading)
}

func TestSubscribersNeverSeeTornState(t *testing.T) {
	src := &fakeSource{list: func(context.Context, model.Status, string) ([]model.Event, error) {
		return nil, errors.New("reset by peer")
	}}
	c := newController(t, src)
	sub := c.Subscribe()
	defer sub.Close()
	<-sub.C() // initial

	c.FetchList(model.StatusUpcoming, "")
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-sub.C():
			if st.Loading {
				assert.Nil(t, st.ErrorMessage)
				continue
			}
			require.NotNil(t, st.ErrorMessage)
			assert.NotNil(t, st.Events)
			return
		case <-deadline:
			t.Fatal("no terminal state")
		}
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Terjadi kesalahan API: Bad Gateway",
		ErrorMessage(fmt.Errorf("wrapped: %w", &eventapi.APIError{StatusCode: 502, Message: "Bad Gateway"})))
	assert.Equal(t, NoConnectionMessage, ErrorMessage(errors.New("anything else")))
}
