package model

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the format of BeginTime/EndTime as served by the event API.
const TimeLayout = "2006-01-02 15:04:05"

// Event is one remote event record. ID is stable across fetches; every other
// field may change between fetches of the same event.
type Event struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description"` // HTML
	ImageLogo   string `json:"imageLogo,omitempty"`
	MediaCover  string `json:"mediaCover"`
	Category    string `json:"category"`
	OwnerName   string `json:"ownerName"`
	CityName    string `json:"cityName"`
	Quota       int    `json:"quota"`
	Registrants int    `json:"registrants"`
	BeginTime   string `json:"beginTime"`
	EndTime     string `json:"endTime"`
	Link        string `json:"link"`
}

// FavoriteEvent is the locally persisted projection of an Event.
type FavoriteEvent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MediaCover string `json:"mediaCover,omitempty"`
}

// Favorite derives the projection stored when the user favorites e.
func (e Event) Favorite() FavoriteEvent {
	return FavoriteEvent{
		ID:         e.FavoriteID(),
		Name:       e.Name,
		MediaCover: e.MediaCover,
	}
}

// FavoriteID is the string key under which e is stored as a favorite.
func (e Event) FavoriteID() string {
	return strconv.Itoa(e.ID)
}

// Begin parses BeginTime in loc.
func (e Event) Begin(loc *time.Location) (time.Time, error) {
	return parseEventTime(e.BeginTime, loc)
}

// End parses EndTime in loc.
func (e Event) End(loc *time.Location) (time.Time, error) {
	return parseEventTime(e.EndTime, loc)
}

func parseEventTime(v string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty event time")
	}
	return time.ParseInLocation(TimeLayout, v, loc)
}

// RemainingQuota is quota minus registrants. It can be negative; the API
// does not enforce registrants <= quota.
func (e Event) RemainingQuota() int {
	return e.Quota - e.Registrants
}

// Availability describes whether registration is still possible.
type Availability string

const (
	AvailabilityOpen      Availability = "open"
	AvailabilityClosed    Availability = "closed"
	AvailabilityQuotaFull Availability = "quota_full"
)

// Availability reports the registration state at now. An event whose end
// time has passed is closed regardless of quota; an unparsable end time is
// treated as not yet ended.
func (e Event) Availability(now time.Time) Availability {
	if end, err := e.End(now.Location()); err == nil && now.After(end) {
		return AvailabilityClosed
	}
	if e.RemainingQuota() > 0 {
		return AvailabilityOpen
	}
	return AvailabilityQuotaFull
}
