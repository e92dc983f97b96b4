package class

import "fmt"

// EventKind classifies a change between two points in time.
type EventKind int

const (
	Added EventKind = iota
	Removing
	Changed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removing:
		return "removing"
	case Changed:
		return "changed"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Event describes how a class or a method differs between two points in
// time. Added carries only Curr, Removing only Prev, Changed both.
type Event[T any] struct {
	Kind EventKind
	Prev T
	Curr T
}

// AddedEvent returns an Added event for curr.
func AddedEvent[T any](curr T) Event[T] {
	return Event[T]{Kind: Added, Curr: curr}
}

// RemovingEvent returns a Removing event for prev.
func RemovingEvent[T any](prev T) Event[T] {
	return Event[T]{Kind: Removing, Prev: prev}
}

// ChangedEvent returns a Changed event from prev to curr.
func ChangedEvent[T any](prev, curr T) Event[T] {
	return Event[T]{Kind: Changed, Prev: prev, Curr: curr}
}

// Latest returns Curr for Added and Changed, Prev for Removing.
func (e Event[T]) Latest() T {
	if e.Kind == Removing {
		return e.Prev
	}
	return e.Curr
}

// ClassEvent is a class-level change event.
type ClassEvent = Event[*Class]

// MethodRef is the [class, method] pair carried by method-level events.
type MethodRef struct {
	Class  *Class
	Method string
	Hash   string
}

func (m MethodRef) String() string {
	return fmt.Sprintf("%s.%s@%s", m.Class, m.Method, shortHash(m.Hash))
}

// MethodEvent is a method-level change event.
type MethodEvent = Event[MethodRef]
