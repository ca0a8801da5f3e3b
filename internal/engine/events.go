package engine

import "time"

// EventKind names a committed transition.
type EventKind string

const (
	EventGameCreated EventKind = "game_created"
	EventGameJoined  EventKind = "game_joined"
	EventRolled      EventKind = "rolled"
	EventBust        EventKind = "bust"
	EventAdvanced    EventKind = "advanced"
	EventStopped     EventKind = "stopped"
	EventGameEnded   EventKind = "game_ended"
)

// Event is published after a transition has been committed. Version is the
// game version the transition committed.
type Event struct {
	GameID  string    `json:"game_id"`
	Kind    EventKind `json:"kind"`
	Player  string    `json:"player"`
	Version int64     `json:"version"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Publisher receives committed events. Publish must not block for long.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }
