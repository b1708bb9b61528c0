// Package events provides the in-process event bus that carries invalidation
// events from the repositories and job queue to the WebSocket broadcaster.
// Events never carry authoritative state; receivers re-read the store.
package events

import (
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	// Entity invalidations
	EventMoviesChanged  EventType = "movies:changed"
	EventLibraryChanged EventType = "library:changed"

	// Scan and job lifecycle
	EventScanStatus   EventType = "scan:status"
	EventJobStarted   EventType = "job:started"
	EventJobCompleted EventType = "job:completed"
	EventJobFailed    EventType = "job:failed"
	EventJobProgress  EventType = "job:progress"

	// Trailer downloads
	EventTrailerProgress  EventType = "trailer:progress"
	EventTrailerCompleted EventType = "trailer:completed"
	EventTrailerFailed    EventType = "trailer:failed"

	// Media players
	EventPlayerStatus EventType = "player:status"

	// Resync push
	EventResyncData EventType = "resync:data"
)

// Event is one bus message.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler processes one event.
type EventHandler func(event Event) error

// EventFilter selects events for a subscription. Empty Types matches all.
type EventFilter struct {
	Types []EventType
}

// Matches reports whether the event passes the filter.
func (f EventFilter) Matches(event Event) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == event.Type {
			return true
		}
	}
	return false
}

// Subscription is an active registration on the bus.
type Subscription struct {
	ID      string
	Filter  EventFilter
	Handler EventHandler
	Created time.Time
}

// MoviesChanged builds the standard invalidation event for a set of movies.
func MoviesChanged(source string, ids ...uint) Event {
	return Event{
		Type:   EventMoviesChanged,
		Source: source,
		Data:   map[string]interface{}{"ids": ids},
	}
}

// LibraryChanged builds the invalidation event for a library.
func LibraryChanged(source string, id uint) Event {
	return Event{
		Type:   EventLibraryChanged,
		Source: source,
		Data:   map[string]interface{}{"id": id},
	}
}
