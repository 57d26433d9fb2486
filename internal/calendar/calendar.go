// Package calendar exports events as an iCalendar feed.
package calendar

import (
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
)

const productID = "-//dicodingevent//events//EN"

// uidNamespace scopes the stable per-event UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://event-api.dicoding.dev/events"))

// UID returns the stable iCalendar UID for an event id.
func UID(id int) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.Itoa(id))).String() + "@dicodingevent"
}

// Build converts events into a calendar. Event times are interpreted in loc.
// Events whose times cannot be parsed are skipped.
func Build(events []model.Event, loc *time.Location, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Dicoding Events")

	for _, ev := range events {
		begin, err := ev.Begin(loc)
		if err != nil {
			appLog.Warn("calendar: skipping event with bad begin time", "id", ev.ID, "begin", ev.BeginTime)
			continue
		}
		end, err := ev.End(loc)
		if err != nil || end.Before(begin) {
			end = begin
		}

		ve := cal.AddEvent(UID(ev.ID))
		ve.SetDtStampTime(now)
		ve.SetStartAt(begin)
		ve.SetEndAt(end)
		ve.SetSummary(ev.Name)
		if ev.Summary != "" {
			ve.SetDescription(ev.Summary)
		}
		if ev.CityName != "" {
			ve.SetLocation(ev.CityName)
		}
		if ev.Link != "" {
			ve.SetURL(ev.Link)
		}
		if ev.OwnerName != "" {
			ve.SetOrganizer(ev.OwnerName)
		}
	}
	return cal
}

// Write serializes events as text/calendar to w.
func Write(w io.Writer, events []model.Event, loc *time.Location, now time.Time) error {
	cal := Build(events, loc, now)
	_, err := io.WriteString(w, cal.Serialize())
	return err
}
