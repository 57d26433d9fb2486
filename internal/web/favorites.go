package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
	"dicodingevent/internal/settings"
)

type favoriteState struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
}

// handleListFavorites returns the current favorites listing.
func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sub := s.favorites.Favorites()
	defer sub.Close()

	select {
	case favs, ok := <-sub.C():
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "favorites unavailable")
			return
		}
		writeJSON(w, http.StatusOK, favs)
	case <-ctx.Done():
		writeError(w, http.StatusServiceUnavailable, "favorites not loaded yet")
	}
}

func (s *Server) handleGetFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fav, err := s.favorites.IsFavorite(r.Context(), id)
	if err != nil {
		appLog.Error("api favorites: lookup failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "favorite lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, favoriteState{ID: id, Favorite: fav})
}

// handleToggleFavorite flips the favorite state of the event in the body,
// which is the event as currently displayed.
//
// POST /api/favorites  {"id": 7, "name": "...", "mediaCover": "..."}
func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	if ev.ID <= 0 {
		writeError(w, http.StatusBadRequest, "event id is required")
		return
	}

	fav, err := s.favorites.Toggle(r.Context(), ev)
	if err != nil {
		appLog.Error("api favorites: toggle failed", err, "id", ev.ID)
		writeError(w, http.StatusInternalServerError, "favorite toggle failed")
		return
	}
	writeJSON(w, http.StatusOK, favoriteState{ID: strconv.Itoa(ev.ID), Favorite: fav})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Get())
}

// handlePutSettings applies the fields present in the body.
//
// PUT /api/settings  {"daily_reminder": true}
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch struct {
		DarkMode      *bool `json:"dark_mode"`
		DailyReminder *bool `json:"daily_reminder"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings body")
		return
	}

	next := s.settings.Get()
	if patch.DarkMode != nil {
		next.DarkMode = *patch.DarkMode
	}
	if patch.DailyReminder != nil {
		next.DailyReminder = *patch.DailyReminder
	}

	applied, err := s.settings.Apply(next)
	if err != nil {
		appLog.Error("api settings: apply failed", err)
		writeJSON(w, http.StatusInternalServerError, struct {
			Error    string            `json:"error"`
			Settings settings.Settings `json:"settings"`
		}{"failed to save settings", applied})
		return
	}
	writeJSON(w, http.StatusOK, applied)
}
