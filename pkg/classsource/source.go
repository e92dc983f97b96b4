// Package classsource discovers the classes declared by a source tree and
// tracks them across reloads.
//
// For every source file the Source keeps the set of live classes keyed by
// StableID. When a file is re-imported the new set is diffed against the
// previous one by content hash and the differences are emitted, in order, to
// subscribers: removals first, then additions and changes in declaration
// order. A class whose content hash did not change keeps its previous
// *class.Class, so its generation is stable across cosmetic edits.
package classsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/hotreg/pkg/class"
	"github.com/odvcencio/hotreg/pkg/pending"
	"github.com/odvcencio/hotreg/pkg/watch"
)

// Loader evaluates a module. While a file executes, every class it declares
// is appended to the pending log shared with the Source. Unload releases the
// previously loaded instance of a file before it is imported again.
type Loader interface {
	Load(ctx context.Context, file string) error
	Unload(file string)
}

// Handler receives class-level events.
type Handler func(ev class.ClassEvent)

// TouchHandler is notified when a file was re-imported without any semantic
// change to its classes.
type TouchHandler func(file string)

// Options configures a Source.
type Options struct {
	// Root is the directory walked by Init. File names handed to the loader
	// are slash-separated and relative to Root.
	Root string
	// Eligible decides whether a path takes part in discovery. Directories
	// for which it returns false are skipped entirely. Nil accepts all .go
	// files.
	Eligible func(rel string, isDir bool) bool
	// Concurrency bounds parallel loads during discovery. Zero means 4.
	Concurrency int
	Logger      *slog.Logger
}

// Source is the per-file class identity tracker.
type Source struct {
	loader Loader
	log    *pending.Log
	opts   Options
	logger *slog.Logger

	mu          sync.RWMutex
	files       map[string][]*class.Class
	byID        map[class.StableID]*class.Class
	generations map[class.StableID]uint64

	hmu      sync.RWMutex
	handlers []Handler
	touched  []TouchHandler
}

// New returns an empty Source.
func New(loader Loader, log *pending.Log, opts Options) *Source {
	if opts.Eligible == nil {
		opts.Eligible = func(rel string, isDir bool) bool {
			return isDir || strings.HasSuffix(rel, ".go")
		}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		loader:      loader,
		log:         log,
		opts:        opts,
		logger:      logger,
		files:       make(map[string][]*class.Class),
		byID:        make(map[class.StableID]*class.Class),
		generations: make(map[class.StableID]uint64),
	}
}

// On subscribes h to class events.
func (s *Source) On(h Handler) {
	s.hmu.Lock()
	s.handlers = append(s.handlers, h)
	s.hmu.Unlock()
}

// OnTouched subscribes h to no-op reload notifications.
func (s *Source) OnTouched(h TouchHandler) {
	s.hmu.Lock()
	s.touched = append(s.touched, h)
	s.hmu.Unlock()
}

// Init imports every eligible module under Root and returns the flattened
// list of declared classes, ordered by file then declaration. An Added event
// is emitted for each class not already known. Any import failure is fatal.
func (s *Source) Init(ctx context.Context) ([]*class.Class, error) {
	files, err := s.discover()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("discovered modules", "root", s.opts.Root, "files", len(files))
	return s.ImportFiles(ctx, files)
}

// ImportFiles imports exactly the given files, bypassing discovery.
func (s *Source) ImportFiles(ctx context.Context, files []string) ([]*class.Class, error) {
	files = normaliseFiles(files)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, file := range files {
		g.Go(func() error {
			if err := s.loader.Load(gctx, file); err != nil {
				return &ImportError{File: file, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Flush()
		return nil, err
	}

	var out []*class.Class
	for _, file := range files {
		s.HandleFileChange(file, s.log.FlushFile(file))
		out = append(out, s.FileClasses(file)...)
	}
	for _, stray := range s.log.Flush() {
		s.HandleFileChange(stray.File, stray.Classes)
		out = append(out, s.FileClasses(stray.File)...)
	}
	return out, nil
}

func (s *Source) discover() ([]string, error) {
	root := s.opts.Root
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if !s.opts.Eligible(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && s.opts.Eligible(rel, false) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// HandleFileChange diffs newClasses against the live classes of file, applies
// the result, and emits it. Keys only in the previous set are reported as
// Removing, keys only in the new set as Added, and keys in both as Changed
// when their content hash differs. When nothing changed, touch subscribers
// are notified instead. The emitted events are returned.
func (s *Source) HandleFileChange(file string, newClasses []*class.Class) []class.ClassEvent {
	file = filepath.ToSlash(file)
	events := s.apply(file, newClasses)
	if len(events) == 0 {
		if _, known := s.fileKnown(file); known || len(newClasses) > 0 {
			s.emitTouched(file)
		}
		return nil
	}
	for _, ev := range events {
		s.logger.Debug("class event", "kind", ev.Kind.String(), "class", ev.Latest().String())
		s.emit(ev)
	}
	return events
}

func (s *Source) apply(file string, newClasses []*class.Class) []class.ClassEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.files[file]
	prevByID := make(map[class.StableID]*class.Class, len(prev))
	for _, c := range prev {
		prevByID[c.ID] = c
	}

	next := make([]*class.Class, 0, len(newClasses))
	nextIDs := make(map[class.StableID]bool, len(newClasses))
	for _, c := range newClasses {
		if c == nil || nextIDs[c.ID] {
			continue
		}
		nextIDs[c.ID] = true
		next = append(next, c)
	}

	var events []class.ClassEvent
	for _, c := range prev {
		if !nextIDs[c.ID] {
			delete(s.byID, c.ID)
			events = append(events, class.RemovingEvent(c))
		}
	}

	live := make([]*class.Class, 0, len(next))
	for _, c := range next {
		old, existed := prevByID[c.ID]
		switch {
		case !existed:
			s.generations[c.ID]++
			c.Generation = s.generations[c.ID]
			s.byID[c.ID] = c
			live = append(live, c)
			events = append(events, class.AddedEvent(c))
		case old.Meta.ContentHash != c.Meta.ContentHash:
			s.generations[c.ID]++
			c.Generation = s.generations[c.ID]
			s.byID[c.ID] = c
			live = append(live, c)
			events = append(events, class.ChangedEvent(old, c))
		default:
			live = append(live, old)
		}
	}

	if len(live) == 0 {
		delete(s.files, file)
	} else {
		s.files[file] = live
	}
	return events
}

func (s *Source) fileKnown(file string) ([]*class.Class, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.files[file]
	return c, ok
}

// Reload applies one watcher event. Updates and deletions unload the previous
// module instance first; creations and updates then re-import the file and
// diff the result. A failed re-import leaves the file's classes in their
// last-known state and returns a *ResolutionError for missing modules or an
// *ImportError otherwise.
func (s *Source) Reload(ctx context.Context, ev watch.Event) ([]class.ClassEvent, error) {
	file := filepath.ToSlash(ev.File)
	if ev.Action == watch.Update || ev.Action == watch.Delete {
		s.loader.Unload(file)
	}
	_, known := s.fileKnown(file)
	if ev.Action == watch.Delete || !s.eligibleFile(file) {
		if !known {
			return nil, nil
		}
		return s.HandleFileChange(file, nil), nil
	}

	if err := s.loader.Load(ctx, file); err != nil {
		s.log.FlushFile(file)
		if errors.Is(err, fs.ErrNotExist) {
			rerr := &ResolutionError{File: file, Err: err}
			s.logger.Warn("module not resolved, keeping last-known classes", "file", file, "error", err)
			return nil, rerr
		}
		s.logger.Warn("module reload failed, keeping last-known classes", "file", file, "error", err)
		return nil, &ImportError{File: file, Err: err}
	}
	return s.HandleFileChange(file, s.log.FlushFile(file)), nil
}

func (s *Source) eligibleFile(file string) bool {
	dir := path.Dir(file)
	for dir != "." && dir != "/" && dir != "" {
		if !s.opts.Eligible(dir, true) {
			return false
		}
		dir = path.Dir(dir)
	}
	return s.opts.Eligible(file, false)
}

// Rescan reconciles every known file and every eligible file on disk, as if
// an update (or a deletion, for files that disappeared) had been received
// for each. Events are returned in file order. The first failed re-import
// stops the scan.
func (s *Source) Rescan(ctx context.Context) ([]class.ClassEvent, error) {
	onDisk, err := s.discover()
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(onDisk))
	all := append([]string(nil), onDisk...)
	for _, f := range onDisk {
		present[f] = true
	}
	for _, f := range s.Files() {
		if !present[f] {
			all = append(all, f)
		}
	}
	sort.Strings(all)

	var events []class.ClassEvent
	for _, f := range all {
		ev := watch.Event{Action: watch.Update, File: f}
		if !present[f] {
			ev.Action = watch.Delete
		}
		got, err := s.Reload(ctx, ev)
		if err != nil {
			return events, err
		}
		events = append(events, got...)
	}
	return events, nil
}

// Get returns the live class for id.
func (s *Source) Get(id class.StableID) (*class.Class, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

// Classes returns all live classes ordered by StableID.
func (s *Source) Classes() []*class.Class {
	s.mu.RLock()
	out := make([]*class.Class, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	s.mu.RUnlock()
	class.SortByID(out)
	return out
}

// Files returns the files that currently declare at least one class.
func (s *Source) Files() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.files))
	for f := range s.files {
		out = append(out, f)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// FileClasses returns the live classes of file in declaration order.
func (s *Source) FileClasses(file string) []*class.Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*class.Class(nil), s.files[filepath.ToSlash(file)]...)
}

// Parent resolves the parent class of cls: a live class named
// cls.Meta.ParentName declared in the same directory. Qualified names from
// other packages are not resolved.
func (s *Source) Parent(cls *class.Class) *class.Class {
	name := cls.Meta.ParentName
	if name == "" || strings.Contains(name, ".") {
		return nil
	}
	dir := cls.ID.Dir()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var files []string
	for f := range s.files {
		if path.Dir(f) == dir {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	for _, f := range files {
		if c, ok := s.byID[class.NewStableID(f, name)]; ok && c.ID != cls.ID {
			return c
		}
	}
	return nil
}

// Restore seeds the source with previously captured classes without emitting
// events. Generations are carried over.
func (s *Source) Restore(classes []*class.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range classes {
		s.files[c.File] = append(s.files[c.File], c)
		s.byID[c.ID] = c
		if c.Generation > s.generations[c.ID] {
			s.generations[c.ID] = c.Generation
		}
	}
}

// Checkpoint is a saved copy of the classes and generation counters a
// Source tracks.
type Checkpoint struct {
	files       map[string][]*class.Class
	byID        map[class.StableID]*class.Class
	generations map[class.StableID]uint64
}

// Fresh returns the classes that were not live when cp was taken, in order.
func (cp *Checkpoint) Fresh(classes []*class.Class) []*class.Class {
	out := make([]*class.Class, 0, len(classes))
	for _, c := range classes {
		if cp.byID[c.ID] != c {
			out = append(out, c)
		}
	}
	return out
}

// Checkpoint saves the tracked state so Rollback can return to it.
func (s *Source) Checkpoint() *Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Checkpoint{
		files:       maps.Clone(s.files),
		byID:        maps.Clone(s.byID),
		generations: maps.Clone(s.generations),
	}
}

// Rollback discards every change tracked since cp was taken, generation
// counters included. Nothing is emitted. The next import of a rolled-back
// file is diffed against the restored classes again.
func (s *Source) Rollback(cp *Checkpoint) {
	s.mu.Lock()
	s.files = maps.Clone(cp.files)
	s.byID = maps.Clone(cp.byID)
	s.generations = maps.Clone(cp.generations)
	s.mu.Unlock()
	s.logger.Debug("class source rolled back", "files", len(cp.files))
}

// Root returns the directory the source discovers modules under.
func (s *Source) Root() string {
	return s.opts.Root
}

// Discover lists the eligible files under Root without importing them.
func (s *Source) Discover() ([]string, error) {
	return s.discover()
}

func (s *Source) emit(ev class.ClassEvent) {
	s.hmu.RLock()
	handlers := s.handlers
	s.hmu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (s *Source) emitTouched(file string) {
	s.hmu.RLock()
	handlers := s.touched
	s.hmu.RUnlock()
	s.logger.Debug("module touched without semantic change", "file", file)
	for _, h := range handlers {
		h(file)
	}
}

func normaliseFiles(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		f = filepath.ToSlash(filepath.Clean(f))
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
