package types

import "time"

// VenueEventType labels events published by the venue gateway.
type VenueEventType string

const (
	EventVenueError        VenueEventType = "venueError"
	EventVenueConnected    VenueEventType = "venueConnected"
	EventVenueDisconnected VenueEventType = "venueDisconnected"
)

// VenueEvent is a lifecycle or error notification from the gateway fanout.
type VenueEvent struct {
	Type       VenueEventType
	Venue      VenueID
	Instrument Instrument
	Err        error
	Detail     string
	Timestamp  time.Time
}
