// Package store persists favorite events in a relational database.
//
// One *sql.DB is shared by the whole process. Three drivers are supported:
// "sqlite" (modernc.org/sqlite, pure Go, the default), "sqlite3"
// (github.com/mattn/go-sqlite3, cgo) and "pgx" (PostgreSQL through
// github.com/jackc/pgx/v5/stdlib).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
	"dicodingevent/internal/observable"
)

const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
	DriverPgx     = "pgx"
)

// ErrUnknownDriver is returned by Open for drivers other than the above.
var ErrUnknownDriver = errors.New("store: unknown database driver")

const schema = `
CREATE TABLE IF NOT EXISTS favorite_event (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	media_cover TEXT,
	position BIGINT NOT NULL
)`

// Store is the favorite event table plus a live listing of its rows.
type Store struct {
	db     *sql.DB
	driver string

	// mu orders write-then-publish so subscribers never see an older listing
	// after a newer one.
	mu    sync.Mutex
	watch *observable.Value[[]model.FavoriteEvent]
}

// Open connects to dsn with driver and prepares the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case "":
		driver = DriverSQLite
	case DriverSQLite, DriverSQLite3, DriverPgx:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if driver != DriverPgx {
		// Keep in-memory databases alive and writers serialized.
		db.SetMaxOpenConns(1)
	}

	s, err := New(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database.
func New(ctx context.Context, db *sql.DB, driver string) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	s := &Store{
		db:     db,
		driver: driver,
		watch:  observable.New[[]model.FavoriteEvent](),
	}

	favs, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	s.watch.Set(favs)

	appLog.Info("favorite store ready", "driver", driver, "favorites", len(favs))
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts fav or replaces the row with the same id. A replaced row
// moves to the end of the listing.
func (s *Store) Upsert(ctx context.Context, fav model.FavoriteEvent) error {
	if fav.ID == "" {
		return errors.New("store: favorite id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO favorite_event (id, name, media_cover, position)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM favorite_event))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			media_cover = excluded.media_cover,
			position = excluded.position
	`), fav.ID, fav.Name, fav.MediaCover)
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", fav.ID, err)
	}

	s.publishLocked(ctx)
	return nil
}

// Delete removes the row whose id matches fav. Deleting a missing row is not
// an error.
func (s *Store) Delete(ctx context.Context, fav model.FavoriteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM favorite_event WHERE id = ?`), fav.ID)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", fav.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		appLog.Debug("store: delete matched no row", "id", fav.ID)
	}

	s.publishLocked(ctx)
	return nil
}

// Get returns the favorite with id, or nil when there is none.
func (s *Store) Get(ctx context.Context, id string) (*model.FavoriteEvent, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, media_cover FROM favorite_event WHERE id = ?
	`), id)

	fav, err := scanFavorite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return fav, nil
}

// All returns every favorite in insertion order. The result is never nil.
func (s *Store) All(ctx context.Context) ([]model.FavoriteEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, media_cover FROM favorite_event ORDER BY position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	favs := []model.FavoriteEvent{}
	for rows.Next() {
		fav, err := scanFavorite(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		favs = append(favs, *fav)
	}
	return favs, rows.Err()
}

// Watch subscribes to the listing. The current listing is delivered first;
// a new one follows every committed write made through this Store.
func (s *Store) Watch() *observable.Subscription[[]model.FavoriteEvent] {
	return s.watch.Subscribe()
}

// publishLocked re-reads the table after a committed write. A failed re-read
// leaves subscribers on the previous listing.
func (s *Store) publishLocked(ctx context.Context) {
	favs, err := s.All(context.WithoutCancel(ctx))
	if err != nil {
		appLog.Error("store: refresh listing failed", err)
		return
	}
	s.watch.Set(favs)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFavorite(row scanner) (*model.FavoriteEvent, error) {
	var fav model.FavoriteEvent
	var cover sql.NullString
	if err := row.Scan(&fav.ID, &fav.Name, &cover); err != nil {
		return nil, err
	}
	fav.MediaCover = cover.String
	return &fav, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPgx {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
