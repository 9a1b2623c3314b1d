package types

import "strconv"

// EventAttribute is a single key-value tag within an event.
type EventAttribute struct {
	Key   string `cramberry:"1"`
	Value string `cramberry:"2"`
	Index bool   `cramberry:"3"` // Whether indexers should pick this up.
}

// Event is an application-emitted event.
type Event struct {
	Kind       string           `cramberry:"1"`
	Attributes []EventAttribute `cramberry:"2"`
}

// Attr builds an indexed attribute.
func Attr(key, value string) EventAttribute {
	return EventAttribute{Key: key, Value: value, Index: true}
}

// AttrUint builds an indexed attribute from an unsigned integer.
func AttrUint(key string, v uint64) EventAttribute {
	return EventAttribute{Key: key, Value: strconv.FormatUint(v, 10), Index: true}
}

// AttrAmount builds a non-indexed amount attribute.
func AttrAmount(key string, v uint64) EventAttribute {
	return EventAttribute{Key: key, Value: strconv.FormatUint(v, 10)}
}

// Get returns the value of the first attribute with the given key.
func (e Event) Get(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// EventLog collects the events of one transaction. Engines append to it;
// the application drops it when the transaction fails.
type EventLog struct {
	events []Event
}

// Emit records an event.
func (l *EventLog) Emit(kind string, attrs ...EventAttribute) {
	if l == nil {
		return
	}
	l.events = append(l.events, Event{Kind: kind, Attributes: attrs})
}

// Events returns the recorded events in emission order.
func (l *EventLog) Events() []Event {
	if l == nil {
		return nil
	}
	return l.events
}
