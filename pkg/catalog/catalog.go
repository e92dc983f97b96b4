// Package catalog is a directive-driven registry index. Every class carrying
// at least one //hotreg: directive is adapted; the directive arguments are
// merged into one attribute set, and on finalization the parent class's
// attributes are inherited for keys the class does not set itself.
package catalog

import (
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/odvcencio/hotreg/pkg/class"
	"github.com/odvcencio/hotreg/pkg/registry"
	"github.com/odvcencio/hotreg/pkg/store"
)

// Entry is the finalized catalog configuration of one class.
type Entry struct {
	Class    class.StableID
	Kinds    []string
	Attrs    map[string]string
	Abstract bool
	Parent   class.StableID
	Methods  []string
}

func (e Entry) clone() Entry {
	e.Kinds = slices.Clone(e.Kinds)
	e.Attrs = maps.Clone(e.Attrs)
	e.Methods = slices.Clone(e.Methods)
	return e
}

// Adapter accumulates directives for one class until it is finalized.
type Adapter struct {
	entry Entry
}

func newAdapter(cls *class.Class) *Adapter {
	return &Adapter{entry: Entry{
		Class:    cls.ID,
		Attrs:    make(map[string]string),
		Abstract: cls.Meta.Abstract,
		Methods:  cls.Meta.Methods(),
	}}
}

// Register merges d into the pending entry. Later values win.
func (a *Adapter) Register(d class.Directive) {
	if !slices.Contains(a.entry.Kinds, d.Name) {
		a.entry.Kinds = append(a.entry.Kinds, d.Name)
	}
	for k, v := range d.Args {
		a.entry.Attrs[k] = v
	}
}

// Finalize inherits kinds and attributes from parent.
func (a *Adapter) Finalize(parent *Entry) {
	if parent != nil {
		a.entry.Parent = parent.Class
		for k, v := range parent.Attrs {
			if _, ok := a.entry.Attrs[k]; !ok {
				a.entry.Attrs[k] = v
			}
		}
		for _, kind := range parent.Kinds {
			if !slices.Contains(a.entry.Kinds, kind) {
				a.entry.Kinds = append(a.entry.Kinds, kind)
			}
		}
	}
	sort.Strings(a.entry.Kinds)
}

// Snapshot returns a copy of the current entry.
func (a *Adapter) Snapshot() Entry {
	return a.entry.clone()
}

// Index is the catalog registry index.
type Index struct {
	store  *store.Store[Entry, *Adapter]
	logger *slog.Logger

	mu        sync.Mutex
	created   int
	removed   int
	lastBatch []class.StableID
}

// New returns an empty catalog index.
func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		store:  store.New[Entry](newAdapter, nil),
		logger: logger,
	}
}

// Store exposes the index store to the coordinator.
func (i *Index) Store() registry.Store {
	return i.store
}

// Declare adapts cls when it carries directives.
func (i *Index) Declare(cls *class.Class) error {
	if len(cls.Meta.Directives) == 0 {
		return nil
	}
	a, err := i.store.GetForRegister(cls, false)
	if err != nil {
		return err
	}
	for _, d := range cls.Meta.Directives {
		a.Register(d)
	}
	return nil
}

// OnCreate counts finalized classes.
func (i *Index) OnCreate(cls *class.Class) {
	i.mu.Lock()
	i.created++
	i.mu.Unlock()
	i.logger.Debug("catalog entry created", "class", cls.String())
}

// AfterBatchComplete records the identities of the last batch.
func (i *Index) AfterBatchComplete(classes []*class.Class) {
	ids := make([]class.StableID, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ID)
	}
	i.mu.Lock()
	i.lastBatch = ids
	i.mu.Unlock()
}

// OnRemove counts removed classes.
func (i *Index) OnRemove(cls *class.Class) {
	i.mu.Lock()
	i.removed++
	i.mu.Unlock()
	i.logger.Debug("catalog entry removed", "class", cls.ID)
}

// Get returns the finalized entry of cls.
func (i *Index) Get(cls *class.Class) (Entry, error) {
	return i.store.Get(cls)
}

// Entries returns every finalized entry ordered by class identity.
func (i *Index) Entries() []Entry {
	var out []Entry
	for _, cls := range i.store.Classes() {
		if e, ok := i.store.GetOptional(cls); ok {
			out = append(out, e)
		}
	}
	return out
}

// Stats reports how many classes were created and removed so far, and the
// identities of the last processed batch.
func (i *Index) Stats() (created, removed int, lastBatch []class.StableID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.created, i.removed, slices.Clone(i.lastBatch)
}
