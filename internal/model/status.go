package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Status selects which events the API returns. The values are the ones the
// API expects in its `active` query parameter.
type Status int

const (
	StatusPast     Status = 0
	StatusUpcoming Status = 1
	// StatusAll is the API's sentinel for "no status filter".
	StatusAll Status = -1
)

func (s Status) String() string {
	switch s {
	case StatusPast:
		return "past"
	case StatusUpcoming:
		return "upcoming"
	case StatusAll:
		return "all"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusPast || s == StatusUpcoming || s == StatusAll
}

// ParseStatus accepts "past", "upcoming", "all" or their integer forms.
// An empty string means upcoming, the default list screen.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "upcoming", "1":
		return StatusUpcoming, nil
	case "past", "finished", "0":
		return StatusPast, nil
	case "all", "-1":
		return StatusAll, nil
	}
	return 0, fmt.Errorf("unknown event status %q", v)
}
