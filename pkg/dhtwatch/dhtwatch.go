package dhtwatch

import (
	"github.com/sealbid-network/sealbid-daemon/internal/core/ports"
)

// EventType distinguishes the events emitted during observation.
type EventType int

const (
	// RecordUpdated is emitted whenever the sequence of a watched DHT key
	// advanced since the last poll.
	RecordUpdated EventType = iota
	// Quit is emitted when the watcher is stopped.
	Quit
)

// Event are emitted through a channel during observation.
type Event interface {
	Type() EventType
}

// RecordUpdatedEvent carries the fresh record of a watched key.
type RecordUpdatedEvent struct {
	Key    string
	Record ports.DHTRecord
}

// Type implements the Event interface.
func (e RecordUpdatedEvent) Type() EventType { return RecordUpdated }

// QuitEvent signals the end of the observation.
type QuitEvent struct{}

// Type implements the Event interface.
func (e QuitEvent) Type() EventType { return Quit }

// Observable represents a DHT key that can be watched for updates.
type Observable interface {
	Key() string
}

// KeyObservable is the plain Observable watching a single key.
type KeyObservable struct {
	DHTKey string
}

// Key implements the Observable interface.
func (o KeyObservable) Key() string { return o.DHTKey }

// Service is the interface for the DHT watcher.
type Service interface {
	Start()
	Stop()
	AddObservable(observable Observable)
	RemoveObservable(observable Observable)
	GetEventChannel() chan Event
}
