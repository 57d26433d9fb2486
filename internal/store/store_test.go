package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicodingevent/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, got)

	fav := model.FavoriteEvent{ID: "42", Name: "DevFest", MediaCover: "https://img/42.png"}
	require.NoError(t, s.Upsert(ctx, fav))

	got, err = s.Get(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fav, *got)

	require.NoError(t, s.Delete(ctx, model.FavoriteEvent{ID: "42"}))
	got, err = s.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(ctx, fav))
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, model.FavoriteEvent{ID: "1", Name: "one"}))
	require.NoError(t, s.Upsert(ctx, model.FavoriteEvent{ID: "2", Name: "two"}))
	require.NoError(t, s.Upsert(ctx, model.FavoriteEvent{ID: "1", Name: "one again", MediaCover: "c"}))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].ID)
	assert.Equal(t, model.FavoriteEvent{ID: "1", Name: "one again", MediaCover: "c"}, all[1])
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Upsert(context.Background(), model.FavoriteEvent{Name: "x"}))
}

func TestAllEmptyIsNotNil(t *testing.T) {
	s := openTestStore(t)
	all, err := s.All(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func next(t *testing.T, ch <-chan []model.FavoriteEvent) []model.FavoriteEvent {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no listing delivered")
		return nil
	}
}

func TestWatchFollowsWrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sub := s.Watch()
	defer sub.Close()

	initial := next(t, sub.C())
	assert.NotNil(t, initial)
	assert.Empty(t, initial)

	require.NoError(t, s.Upsert(ctx, model.FavoriteEvent{ID: "5", Name: "five"}))
	listing := next(t, sub.C())
	require.Len(t, listing, 1)
	assert.Equal(t, "5", listing[0].ID)

	require.NoError(t, s.Delete(ctx, model.FavoriteEvent{ID: "5"}))
	assert.Empty(t, next(t, sub.C()))
}

func TestWatchReplaysLatest(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Upsert(ctx, model.FavoriteEvent{ID: "9", Name: "nine"}))

	sub := s.Watch()
	defer sub.Close()
	listing := next(t, sub.C())
	require.Len(t, listing, 1)
	assert.Equal(t, "nine", listing[0].Name)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestRebind(t *testing.T) {
	s := &Store{driver: DriverPgx}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", s.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	s.driver = DriverSQLite
	assert.Equal(t, "x = ?", s.rebind("x = ?"))
}
