package favorite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicodingevent/internal/model"
	"dicodingevent/internal/observable"
	"dicodingevent/internal/store"
)

func newService(t *testing.T, opts ...Option) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), store.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, opts...), st
}

func listing(t *testing.T, ch <-chan []model.FavoriteEvent) []model.FavoriteEvent {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no listing delivered")
		return nil
	}
}

func TestToggleTwiceRestoresState(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	ev := model.Event{ID: 3, Name: "Flutter Day", MediaCover: "cover.png"}

	fav, err := svc.IsFavorite(ctx, "3")
	require.NoError(t, err)
	require.False(t, fav)

	now, err := svc.Toggle(ctx, ev)
	require.NoError(t, err)
	assert.True(t, now)

	now, err = svc.Toggle(ctx, ev)
	require.NoError(t, err)
	assert.False(t, now)

	got, err := st.Get(ctx, "3")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestToggleInsertThenDelete(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	ev := model.Event{ID: 42, Name: "Android Dev", MediaCover: "m.png", Description: "ignored"}

	_, err := svc.Toggle(ctx, ev)
	require.NoError(t, err)

	fav, err := svc.IsFavorite(ctx, "42")
	require.NoError(t, err)
	assert.True(t, fav)

	all, err := st.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.FavoriteEvent{ID: "42", Name: "Android Dev", MediaCover: "m.png"}, all[0])

	_, err = svc.Toggle(ctx, ev)
	require.NoError(t, err)

	fav, err = svc.IsFavorite(ctx, "42")
	require.NoError(t, err)
	assert.False(t, fav)

	all, err = st.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFavoritesSeesOtherWriters(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	sub := svc.Favorites()
	defer sub.Close()
	assert.Empty(t, listing(t, sub.C()))

	// A different caller writes straight to the store.
	done := make(chan error, 1)
	go func() {
		done <- st.Upsert(ctx, model.FavoriteEvent{ID: "8", Name: "eight"})
	}()
	require.NoError(t, <-done)

	got := listing(t, sub.C())
	require.Len(t, got, 1)
	assert.Equal(t, "8", got[0].ID)

	_, err := svc.Toggle(ctx, model.Event{ID: 8})
	require.NoError(t, err)
	assert.Empty(t, listing(t, sub.C()))
}

// racyRepo widens the window between lookup and write so two toggles
// overlap deterministically.
type racyRepo struct {
	mu      sync.Mutex
	rows    map[string]model.FavoriteEvent
	gets    sync.WaitGroup
	upserts int
	watch   *observable.Value[[]model.FavoriteEvent]
}

func (r *racyRepo) Get(_ context.Context, id string) (*model.FavoriteEvent, error) {
	r.mu.Lock()
	fav, ok := r.rows[id]
	r.mu.Unlock()
	r.gets.Done()
	r.gets.Wait()
	if !ok {
		return nil, nil
	}
	return &fav, nil
}

func (r *racyRepo) Upsert(_ context.Context, fav model.FavoriteEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[fav.ID] = fav
	r.upserts++
	return nil
}

func (r *racyRepo) Delete(_ context.Context, fav model.FavoriteEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, fav.ID)
	return nil
}

func (r *racyRepo) Watch() *observable.Subscription[[]model.FavoriteEvent] {
	return r.watch.Subscribe()
}

func TestConcurrentTogglesRaceByDefault(t *testing.T) {
	repo := &racyRepo{rows: map[string]model.FavoriteEvent{}, watch: observable.New[[]model.FavoriteEvent]()}
	repo.gets.Add(2)
	svc := NewService(repo)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.Toggle(context.Background(), model.Event{ID: 1})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	// Both saw "not favorited" and both inserted.
	assert.Equal(t, []bool{true, true}, results)
	assert.Equal(t, 2, repo.upserts)
	assert.Len(t, repo.rows, 1)
}

func TestSerializedTogglesAlternate(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, WithSerializedToggles())

	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := svc.Toggle(ctx, model.Event{ID: 11, Name: "x"})
			assert.NoError(t, err)
			if v {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, added)
	fav, err := st.Get(ctx, "11")
	require.NoError(t, err)
	assert.Nil(t, fav)
	assert.Empty(t, svc.locks)
}

type failingRepo struct{ racyRepo }

func (f *failingRepo) Get(context.Context, string) (*model.FavoriteEvent, error) {
	return nil, errors.New("disk I/O error")
}

func TestToggleSurfacesStoreFailure(t *testing.T) {
	svc := NewService(&failingRepo{})
	_, err := svc.Toggle(context.Background(), model.Event{ID: 2})
	assert.ErrorContains(t, err, "disk I/O error")
}
