package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dicodingevent/internal/config"
	"dicodingevent/internal/eventapi"
	"dicodingevent/internal/eventsync"
	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
	"dicodingevent/internal/observable"
	"dicodingevent/internal/settings"
)

// FavoriteService is the favorites API the surfaces use.
type FavoriteService interface {
	IsFavorite(ctx context.Context, id string) (bool, error)
	Toggle(ctx context.Context, ev model.Event) (bool, error)
	Favorites() *observable.Subscription[[]model.FavoriteEvent]
}

// SettingsService reads and applies user settings.
type SettingsService interface {
	Get() settings.Settings
	Apply(next settings.Settings) (settings.Settings, error)
}

// Options carries the server's collaborators.
type Options struct {
	Config    *config.Config
	Source    eventapi.Source
	UI        eventsync.Executor
	IO        eventsync.Runner
	Favorites FavoriteService
	Settings  SettingsService
	Hub       *Hub
	Location  *time.Location
	// SyncOptions are applied to every controller the server creates.
	SyncOptions []eventsync.Option
}

// Server provides the HTTP API and the websocket endpoint. Each HTTP request
// and each websocket session is one UI surface with its own sync state.
type Server struct {
	cfg       *config.Config
	source    eventapi.Source
	ui        eventsync.Executor
	io        eventsync.Runner
	favorites FavoriteService
	settings  SettingsService
	hub       *Hub
	loc       *time.Location
	syncOpts  []eventsync.Option
	now       func() time.Time

	router chi.Router
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	s := &Server{
		cfg:       opts.Config,
		source:    opts.Source,
		ui:        opts.UI,
		io:        opts.IO,
		favorites: opts.Favorites,
		settings:  opts.Settings,
		hub:       opts.Hub,
		loc:       opts.Location,
		syncOpts:  opts.SyncOptions,
		now:       time.Now,
		router:    chi.NewRouter(),
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Hub returns the websocket hub, which also delivers notifications.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dicodingevent", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleListEvents)
		r.Get("/events.ics", s.handleEventsICS)
		r.Get("/events/{id}", s.handleGetEvent)

		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites", s.handleToggleFavorite)
		r.Get("/favorites/{id}", s.handleGetFavorite)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	r.Get("/ws", s.handleWS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// newController creates the sync state for one surface.
func (s *Server) newController() *eventsync.Controller {
	return eventsync.New(s.source, s.ui, s.io, s.syncOpts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
