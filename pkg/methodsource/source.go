// Package methodsource projects class-level change events onto the methods
// of the affected classes, so consumers that track per-method identity do not
// need to diff whole classes themselves.
package methodsource

import (
	"sort"
	"sync"

	"github.com/odvcencio/hotreg/pkg/class"
)

// Handler receives method-level events.
type Handler func(ev class.MethodEvent)

// Source fans method events out to its subscribers in emission order.
type Source struct {
	mu       sync.RWMutex
	handlers []Handler
}

// New returns a source with no subscribers.
func New() *Source {
	return &Source{}
}

// On subscribes h to every subsequent method event.
func (s *Source) On(h Handler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// HandleClassEvent derives the method events for ev, emits them, and returns
// them. Methods are visited in name order: additions and changes for the
// current method set first, then removals of methods that disappeared.
//
// A Changed class whose previous method map lacks a method present in the
// current one reports that method as Added.
func (s *Source) HandleClassEvent(ev class.ClassEvent) []class.MethodEvent {
	events := Diff(ev)
	for _, me := range events {
		s.emit(me)
	}
	return events
}

// Diff computes the method events implied by ev without emitting them.
func Diff(ev class.ClassEvent) []class.MethodEvent {
	var next, prev map[string]string
	if ev.Kind != class.Removing && ev.Curr != nil {
		next = ev.Curr.Meta.MethodHashes
	}
	if ev.Kind != class.Added && ev.Prev != nil {
		prev = ev.Prev.Meta.MethodHashes
	}

	var out []class.MethodEvent
	for _, name := range sortedKeys(next) {
		hash := next[name]
		curr := class.MethodRef{Class: ev.Curr, Method: name, Hash: hash}
		prevHash, existed := prev[name]
		switch {
		case ev.Kind == class.Added || !existed:
			out = append(out, class.AddedEvent(curr))
		case prevHash != hash && ev.Kind == class.Changed:
			before := class.MethodRef{Class: ev.Prev, Method: name, Hash: prevHash}
			out = append(out, class.ChangedEvent(before, curr))
		}
	}
	if ev.Kind == class.Added {
		return out
	}
	for _, name := range sortedKeys(prev) {
		if _, ok := next[name]; ok {
			continue
		}
		before := class.MethodRef{Class: ev.Prev, Method: name, Hash: prev[name]}
		out = append(out, class.RemovingEvent(before))
	}
	return out
}

func (s *Source) emit(ev class.MethodEvent) {
	s.mu.RLock()
	handlers := s.handlers
	s.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
