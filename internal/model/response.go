package model

// EventResponse is the envelope every event API endpoint returns. Each call
// site reads a different field: detail reads Event, the latest-event query
// reads Events, list and search read ListEvents.
type EventResponse struct {
	Error      bool    `json:"error"`
	Message    string  `json:"message"`
	Event      *Event  `json:"event,omitempty"`
	Events     []Event `json:"events,omitempty"`
	ListEvents []Event `json:"listEvents,omitempty"`
}

// SyncState is what a synchronization controller exposes to its surface.
//
// While Loading is true the payload fields belong to the previous request.
// A completed request sets exactly one of ErrorMessage or a payload.
type SyncState struct {
	Loading      bool    `json:"isLoading"`
	ErrorMessage *string `json:"errorMessage"`
	Events       []Event `json:"events"`
	Event        *Event  `json:"event"`
}

// Failed reports whether the last completed request failed.
func (s SyncState) Failed() bool {
	return s.ErrorMessage != nil
}
