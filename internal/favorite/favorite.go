// Package favorite reconciles the favorited state of events with the
// favorite store.
package favorite

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
	"dicodingevent/internal/observable"
)

var toggleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dicodingevent_favorite_toggle_total",
	Help: "Favorite toggles by resulting state.",
}, []string{"state"})

// Repository is the subset of the favorite store the service needs.
type Repository interface {
	Upsert(ctx context.Context, fav model.FavoriteEvent) error
	Delete(ctx context.Context, fav model.FavoriteEvent) error
	Get(ctx context.Context, id string) (*model.FavoriteEvent, error)
	Watch() *observable.Subscription[[]model.FavoriteEvent]
}

type Service struct {
	repo Repository

	serialize bool
	mu        sync.Mutex
	locks     map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Service)

// WithSerializedToggles makes concurrent toggles of the same id run one
// after another. Without it, two overlapping toggles may both observe the
// same state and both act on it.
func WithSerializedToggles() Option {
	return func(s *Service) { s.serialize = true }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, locks: make(map[string]*idLock)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsFavorite reports whether a favorite with id exists.
func (s *Service) IsFavorite(ctx context.Context, id string) (bool, error) {
	fav, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return fav != nil, nil
}

// Toggle flips the favorited state of ev and returns the new state.
func (s *Service) Toggle(ctx context.Context, ev model.Event) (bool, error) {
	fav := ev.Favorite()

	if s.serialize {
		unlock := s.lock(fav.ID)
		defer unlock()
	}

	exists, err := s.IsFavorite(ctx, fav.ID)
	if err != nil {
		return false, fmt.Errorf("favorite: lookup %s: %w", fav.ID, err)
	}

	if exists {
		if err := s.repo.Delete(ctx, fav); err != nil {
			return true, fmt.Errorf("favorite: remove %s: %w", fav.ID, err)
		}
		toggleTotal.WithLabelValues("removed").Inc()
		appLog.Info("favorite removed", "id", fav.ID)
		return false, nil
	}

	if err := s.repo.Upsert(ctx, fav); err != nil {
		return false, fmt.Errorf("favorite: add %s: %w", fav.ID, err)
	}
	toggleTotal.WithLabelValues("added").Inc()
	appLog.Info("favorite added", "id", fav.ID, "name", fav.Name)
	return true, nil
}

// Favorites subscribes to the live favorites listing. Until the first
// listing arrives nothing is delivered; an empty listing is a non-nil,
// zero-length slice.
func (s *Service) Favorites() *observable.Subscription[[]model.FavoriteEvent] {
	return s.repo.Watch()
}

func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
