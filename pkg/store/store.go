// Package store holds the per-index adapter state for registered classes.
//
// Every registry index owns one Store. An adapter starts Pending, accepts any
// number of partial merges through GetForRegister, and is frozen by Finalize.
// Only finalized configuration is visible through Get.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/odvcencio/hotreg/pkg/class"
)

var (
	// ErrAlreadyFinalized is returned when a finalized adapter is requested
	// for mutation without explicit permission.
	ErrAlreadyFinalized = errors.New("adapter already finalized")
	// ErrNotRegistered is returned when a class has no finalized adapter in
	// the store.
	ErrNotRegistered = errors.New("class not registered")
)

// Adapter is the per-(class, index) configuration object. C is the
// configuration type it produces.
//
// Finalize receives the parent class's configuration as an inheritance seed,
// or nil when the class has no parent in the same index. Snapshot returns
// the current configuration by value; before finalization it is a
// best-effort view of the pending state. Neither method may call back into
// the owning Store.
type Adapter[C any] interface {
	Finalize(parent *C)
	Snapshot() C
}

// ParentFunc resolves the live parent class of cls, or nil.
type ParentFunc func(cls *class.Class) *class.Class

type entry[C any, A Adapter[C]] struct {
	cls       *class.Class
	adapter   A
	finalized bool
	config    C
}

// Store maps stable class identities to adapters. At most one generation of
// a StableID is held at any time. It is safe for concurrent use.
type Store[C any, A Adapter[C]] struct {
	mu      sync.RWMutex
	factory func(*class.Class) A
	parent  ParentFunc
	entries map[class.StableID]*entry[C, A]
}

// New creates a store that builds adapters with factory and looks up parent
// classes with parent. A nil parent disables inheritance lookup.
func New[C any, A Adapter[C]](factory func(*class.Class) A, parent ParentFunc) *Store[C, A] {
	if parent == nil {
		parent = func(*class.Class) *class.Class { return nil }
	}
	return &Store[C, A]{
		factory: factory,
		parent:  parent,
		entries: make(map[class.StableID]*entry[C, A]),
	}
}

// SetParentFunc replaces the parent resolver.
func (s *Store[C, A]) SetParentFunc(parent ParentFunc) {
	if parent == nil {
		return
	}
	s.mu.Lock()
	s.parent = parent
	s.mu.Unlock()
}

// lookup returns the entry for exactly this generation of cls.
func (s *Store[C, A]) lookup(cls *class.Class) (*entry[C, A], bool) {
	e, ok := s.entries[cls.ID]
	if !ok || !sameGeneration(e.cls, cls) {
		return nil, false
	}
	return e, true
}

func sameGeneration(a, b *class.Class) bool {
	return a == b || a.Generation == b.Generation
}

// Adapter returns the adapter for cls, constructing it on first use. If the
// store holds a different generation of the same StableID, that entry is
// replaced by a fresh pending adapter.
func (s *Store[C, A]) Adapter(cls *class.Class) A {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapterLocked(cls)
}

func (s *Store[C, A]) adapterLocked(cls *class.Class) A {
	if e, ok := s.lookup(cls); ok {
		return e.adapter
	}
	e := &entry[C, A]{cls: cls, adapter: s.factory(cls)}
	s.entries[cls.ID] = e
	return e.adapter
}

// GetForRegister returns the adapter of cls for mutation. A finalized
// adapter is only returned when allowFinalized is set.
func (s *Store[C, A]) GetForRegister(cls *class.Class, allowFinalized bool) (A, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.lookup(cls); ok && e.finalized && !allowFinalized {
		var zero A
		return zero, fmt.Errorf("register %s: %w", cls.ID, ErrAlreadyFinalized)
	}
	return s.adapterLocked(cls), nil
}

// Get returns the finalized configuration of cls.
func (s *Store[C, A]) Get(cls *class.Class) (C, error) {
	cfg, ok := s.GetOptional(cls)
	if !ok {
		var zero C
		return zero, fmt.Errorf("get %s: %w", cls.ID, ErrNotRegistered)
	}
	return cfg, nil
}

// GetOptional is Get without the error: ok is false when cls has no
// finalized adapter.
func (s *Store[C, A]) GetOptional(cls *class.Class) (C, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.lookup(cls)
	if !ok || !e.finalized {
		var zero C
		return zero, false
	}
	return e.config, true
}

// Finalize freezes the adapter of cls. When parent is nil the parent class is
// resolved through the store's ParentFunc; if it is held by this store, its
// finalized configuration (or its pending snapshot when it has not been
// finalized yet) becomes the seed. Finalizing twice is a no-op.
func (s *Store[C, A]) Finalize(cls *class.Class, parent *C) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(cls)
	if !ok {
		return fmt.Errorf("finalize %s: %w", cls.ID, ErrNotRegistered)
	}
	if e.finalized {
		return nil
	}
	if parent == nil {
		parent = s.parentSeedLocked(cls)
	}
	e.adapter.Finalize(parent)
	e.config = e.adapter.Snapshot()
	e.finalized = true
	return nil
}

// FinalizeClass finalizes cls with the parent seed resolved by the store.
func (s *Store[C, A]) FinalizeClass(cls *class.Class) error {
	return s.Finalize(cls, nil)
}

func (s *Store[C, A]) parentSeedLocked(cls *class.Class) *C {
	pcls := s.parent(cls)
	if pcls == nil || pcls.ID == cls.ID {
		return nil
	}
	pe, ok := s.entries[pcls.ID]
	if !ok {
		return nil
	}
	var seed C
	if pe.finalized {
		seed = pe.config
	} else {
		seed = pe.adapter.Snapshot()
	}
	return &seed
}

// Finalized reports whether cls has a finalized adapter.
func (s *Store[C, A]) Finalized(cls *class.Class) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.lookup(cls)
	return ok && e.finalized
}

// Has reports whether cls has been adapted, finalized or not.
func (s *Store[C, A]) Has(cls *class.Class) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.lookup(cls)
	return ok
}

// Remove drops whatever generation of id the store holds.
func (s *Store[C, A]) Remove(id class.StableID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Save records the entries currently held for ids and returns a function
// that puts exactly those entries back. Ids with no entry at save time are
// removed again by the restore.
func (s *Store[C, A]) Save(ids []class.StableID) (restore func()) {
	s.mu.RLock()
	saved := make(map[class.StableID]*entry[C, A], len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			cp := *e
			saved[id] = &cp
		} else {
			saved[id] = nil
		}
	}
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, e := range saved {
			if e == nil {
				delete(s.entries, id)
			} else {
				s.entries[id] = e
			}
		}
	}
}

// Classes returns every adapted class ordered by StableID.
func (s *Store[C, A]) Classes() []*class.Class {
	return s.collect(func(*entry[C, A]) bool { return true })
}

// Pending returns adapted classes that are not finalized yet.
func (s *Store[C, A]) Pending() []*class.Class {
	return s.collect(func(e *entry[C, A]) bool { return !e.finalized })
}

func (s *Store[C, A]) collect(keep func(*entry[C, A]) bool) []*class.Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*class.Class, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e.cls)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of adapted classes.
func (s *Store[C, A]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
