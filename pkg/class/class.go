// Package class defines the identity and metadata types shared by every
// stage of the change-propagation pipeline: stable identities, per-reload
// class generations, and the change events that describe how they move.
package class

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// StableID is the logical identity of a declared class. It is derived from
// the declaring file and the declared name and survives re-imports.
type StableID string

// NewStableID builds the identity for name declared in file. File paths are
// normalised to forward slashes so identities are portable.
func NewStableID(file, name string) StableID {
	return StableID(filepath.ToSlash(file) + "#" + name)
}

// File returns the declaring file component of the identity.
func (id StableID) File() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

// Name returns the declared name component of the identity.
func (id StableID) Name() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// Dir returns the package directory of the declaring file.
func (id StableID) Dir() string {
	return path.Dir(id.File())
}

// Directive is one declaration-site registration line attached to a class,
// written in source as "//hotreg:<name> key=value flag".
type Directive struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
	Raw  string            `json:"raw"`
}

// Flag reports whether the directive carries key, either as a bare flag or
// a key=value pair.
func (d Directive) Flag(key string) bool {
	_, ok := d.Args[key]
	return ok
}

// Metadata is the content description attached to every generation of a
// class.
type Metadata struct {
	ContentHash  string            `json:"contentHash"`
	MethodHashes map[string]string `json:"methodHashes,omitempty"`
	Abstract     bool              `json:"abstract,omitempty"`
	SourceFile   string            `json:"sourceFile"`
	ParentName   string            `json:"parentName,omitempty"`
	Directives   []Directive       `json:"directives,omitempty"`
}

// Methods returns the method names in sorted order.
func (m Metadata) Methods() []string {
	names := make([]string, 0, len(m.MethodHashes))
	for name := range m.MethodHashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DirectivesNamed returns the directives with the given name, in source order.
func (m Metadata) DirectivesNamed(name string) []Directive {
	var out []Directive
	for _, d := range m.Directives {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

// Class is one generation of a declared class. A *Class pointer plays the
// role of the runtime object produced by a single load of its file; two
// loads of an unchanged file share the same *Class.
type Class struct {
	ID         StableID
	Name       string
	File       string
	Generation uint64
	Meta       Metadata
}

// New returns a generation-zero class for name declared in file.
func New(file, name string, meta Metadata) *Class {
	file = filepath.ToSlash(file)
	if meta.SourceFile == "" {
		meta.SourceFile = file
	}
	return &Class{
		ID:   NewStableID(file, name),
		Name: name,
		File: file,
		Meta: meta,
	}
}

func (c *Class) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s@%d", c.ID, c.Generation)
}

// ShortHash returns the first eight characters of the content hash.
func (c *Class) ShortHash() string {
	return shortHash(c.Meta.ContentHash)
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// SortByID orders classes by stable identity.
func SortByID(classes []*Class) {
	sort.Slice(classes, func(i, j int) bool {
		return classes[i].ID < classes[j].ID
	})
}
