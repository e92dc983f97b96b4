// Package loader evaluates Go source files as modules. Loading a file parses
// it with tree-sitter, builds one class per top-level type, and records each
// class in the pending registration log, the way declaration-site
// registrations would run while a module executes.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/odvcencio/hotreg/pkg/class"
	"github.com/odvcencio/hotreg/pkg/pending"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// module is a parsed file kept until it is unloaded or expires.
type module struct {
	sourceHash string
	decls      []Decl
}

// Loader loads modules relative to a root directory.
type Loader struct {
	root   string
	log    *pending.Log
	cache  *gocache.Cache
	logger *slog.Logger
}

// New returns a loader that resolves files under root and records classes
// into log.
func New(root string, log *pending.Log, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		root:   root,
		log:    log,
		cache:  gocache.New(DefaultExpiration, DefaultCleanupInterval),
		logger: logger,
	}
}

// Load executes file. An already loaded, unchanged file is not parsed
// again, but its registrations are replayed so every execution appends to
// the log. A missing file yields an error wrapping fs.ErrNotExist.
func (l *Loader) Load(ctx context.Context, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file = filepath.ToSlash(file)
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(file)))
	if err != nil {
		return fmt.Errorf("load %s: %w", file, err)
	}
	sourceHash := hashBytes(data)

	var decls []Decl
	cached := false
	if v, ok := l.cache.Get(file); ok {
		if m, ok := v.(*module); ok && m.sourceHash == sourceHash {
			decls = m.decls
			cached = true
		}
	}
	if !cached {
		decls, err = Extract(file, data)
		if err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
		l.cache.Set(file, &module{sourceHash: sourceHash, decls: decls}, gocache.DefaultExpiration)
	}

	for _, d := range decls {
		l.log.Append(class.New(file, d.Name, d.Meta), file)
	}
	l.logger.Debug("loaded module", "file", file, "classes", len(decls), "cached", cached)
	return nil
}

// Unload evicts the loaded instance of file so the next Load parses it again.
func (l *Loader) Unload(file string) {
	l.cache.Delete(filepath.ToSlash(file))
}

// Loaded reports whether file currently has a loaded instance.
func (l *Loader) Loaded(file string) bool {
	_, ok := l.cache.Get(filepath.ToSlash(file))
	return ok
}
