// Package domain holds the kernel shared by every orderflow bounded context:
// entity identity, timestamps, the aggregate base with recorded events, and
// the value objects for actors, channels and languages.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// EntityID identifies an aggregate or a message. Order ids arrive from the
// outside world as opaque strings; internally generated ids are random hex.
type EntityID string

func (id EntityID) String() string { return string(id) }

// NewID returns a random 16-byte hex identifier. Randomness failure is not
// recoverable at this layer.
func NewID() EntityID {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("domain: id generation: %v", err))
	}
	return EntityID(hex.EncodeToString(b))
}

// Timestamp embeds time.Time so values marshal naturally while keeping all
// domain timestamps normalized to UTC at the constructor.
type Timestamp struct {
	time.Time
}

// Now returns the current UTC timestamp.
func Now() Timestamp { return Timestamp{time.Now().UTC()} }

// TimestampFrom normalizes an existing time.Time, used when reconstituting
// rows from the history log.
func TimestampFrom(t time.Time) Timestamp { return Timestamp{t.UTC()} }

// AggregateRoot carries identity and the domain events recorded during one
// unit of work. Callers drain the events with PullEvents after the aggregate
// has been saved, so subscribers never observe unsaved state.
type AggregateRoot struct {
	id     EntityID
	events []Event
}

func (a *AggregateRoot) ID() EntityID { return a.id }

func (a *AggregateRoot) SetID(id EntityID) { a.id = id }

func (a *AggregateRoot) RecordEvent(e Event) { a.events = append(a.events, e) }

// PullEvents returns the recorded events and clears the buffer.
func (a *AggregateRoot) PullEvents() []Event {
	events := a.events
	a.events = nil
	return events
}
