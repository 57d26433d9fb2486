package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"dicodingevent/internal/calendar"
	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
)

// detailResponse is the event detail screen: the sync state plus the
// favorite flag and registration availability of the loaded event.
type detailResponse struct {
	model.SyncState
	Favorite       bool               `json:"favorite"`
	Availability   model.Availability `json:"availability,omitempty"`
	RemainingQuota *int               `json:"remainingQuota,omitempty"`
}

// handleListEvents serves one list or search fetch.
//
// GET /api/events?status=upcoming&q=kotlin
//   - status: upcoming (default), past, all, or the numeric form
//   - q:      optional server-side search text
//
// The body is the terminal SyncState. A failed fetch is reported with 502
// and the user-facing message in errorMessage.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := model.ParseStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := strings.TrimSpace(q.Get("q"))

	c := s.newController()
	c.FetchList(status, query)
	st, err := c.Await(r.Context())
	if err != nil {
		// Client went away; the request itself still completes on the pool.
		appLog.Debug("api events: request abandoned", "err", err)
		return
	}
	writeJSON(w, stateStatus(st), st)
}

// handleGetEvent serves the detail screen for one event.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	c := s.newController()
	c.FetchOne(id)
	st, err := c.Await(r.Context())
	if err != nil {
		appLog.Debug("api event detail: request abandoned", "id", id, "err", err)
		return
	}

	resp := detailResponse{SyncState: st}
	if st.Event != nil {
		fav, err := s.favorites.IsFavorite(r.Context(), st.Event.FavoriteID())
		if err != nil {
			appLog.Error("api event detail: favorite lookup failed", err, "id", id)
			writeError(w, http.StatusInternalServerError, "favorite lookup failed")
			return
		}
		resp.Favorite = fav
		resp.Availability = st.Event.Availability(s.now().In(s.loc))
		remaining := st.Event.RemainingQuota()
		resp.RemainingQuota = &remaining
	}
	writeJSON(w, stateStatus(st), resp)
}

// handleEventsICS exports a status list as an iCalendar feed.
//
// GET /api/events.ics?status=upcoming
func (s *Server) handleEventsICS(w http.ResponseWriter, r *http.Request) {
	status, err := model.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := s.newController()
	c.FetchList(status, "")
	st, err := c.Await(r.Context())
	if err != nil {
		return
	}
	if st.Failed() {
		writeError(w, http.StatusBadGateway, *st.ErrorMessage)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events-`+status.String()+`.ics"`)
	if err := calendar.Write(w, st.Events, s.loc, s.now()); err != nil {
		appLog.Error("api events ics: write failed", err)
	}
}

func stateStatus(st model.SyncState) int {
	if st.Failed() {
		return http.StatusBadGateway
	}
	return http.StatusOK
}
