// Package events publishes game state changes for downstream consumers
// (leaderboards, audit logs). Publishing is fire-and-forget: a failure is
// logged by the caller and never rolls back game state.
package events

import (
	"context"
	"time"
)

// Type names a domain event. It becomes the last subject token on NATS.
type Type string

const (
	CharacterGranted  Type = "character.granted"
	CharacterDivorced Type = "character.divorced"
	ExchangeSettled   Type = "exchange.settled"
	HaremCleared      Type = "harem.cleared"
	GroupReset        Type = "group.reset"
	ConfigChanged     Type = "config.changed"
)

// Event is a single state change.
type Event struct {
	Type       Type      `msgpack:"type"`
	Group      string    `msgpack:"group"`
	Users      []string  `msgpack:"users,omitempty"`
	Characters []string  `msgpack:"characters,omitempty"`
	At         time.Time `msgpack:"at"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards every event.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, Event) error { return nil }
