// Package manifest persists a snapshot of the class metadata of a source
// tree so that a later run can report what changed in between.
//
// A manifest is JSON compressed with zstd.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/hotreg/pkg/class"
)

// FormatVersion is written into every manifest.
const FormatVersion = 1

// ErrNoManifest is returned by Read when no manifest exists at the path.
var ErrNoManifest = errors.New("no manifest")

// Record is the persisted form of one class generation.
type Record struct {
	ID         class.StableID `json:"id"`
	Name       string         `json:"name"`
	File       string         `json:"file"`
	Generation uint64         `json:"generation"`
	Meta       class.Metadata `json:"meta"`
}

// Manifest is a snapshot of every live class.
type Manifest struct {
	Version int       `json:"version"`
	Created time.Time `json:"created"`
	Root    string    `json:"root"`
	Classes []Record  `json:"classes"`
}

// FromClasses captures classes into a manifest ordered by StableID.
func FromClasses(root string, classes []*class.Class) *Manifest {
	sorted := append([]*class.Class(nil), classes...)
	class.SortByID(sorted)
	m := &Manifest{
		Version: FormatVersion,
		Created: time.Now().UTC(),
		Root:    root,
		Classes: make([]Record, 0, len(sorted)),
	}
	for _, c := range sorted {
		m.Classes = append(m.Classes, Record{
			ID:         c.ID,
			Name:       c.Name,
			File:       c.File,
			Generation: c.Generation,
			Meta:       c.Meta,
		})
	}
	return m
}

// ClassList rebuilds class generations from the manifest.
func (m *Manifest) ClassList() []*class.Class {
	out := make([]*class.Class, 0, len(m.Classes))
	for _, r := range m.Classes {
		out = append(out, &class.Class{
			ID:         r.ID,
			Name:       r.Name,
			File:       r.File,
			Generation: r.Generation,
			Meta:       r.Meta,
		})
	}
	return out
}

// Files returns the distinct files recorded in the manifest.
func (m *Manifest) Files() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range m.Classes {
		if !seen[r.File] {
			seen[r.File] = true
			out = append(out, r.File)
		}
	}
	return out
}

// Encode serializes m to compressed bytes.
func Encode(m *Manifest) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: marshal: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// Decode parses compressed manifest bytes.
func Decode(data []byte) (*Manifest, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decode manifest: decompress: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: unmarshal: %w", err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("decode manifest: unsupported version %d", m.Version)
	}
	return &m, nil
}

// Read loads the manifest at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("read manifest %s: %w", path, ErrNoManifest)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Decode(data)
}

// Write atomically stores m at path, creating parent directories.
func Write(path string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write manifest: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-tmp-*")
	if err != nil {
		return fmt.Errorf("write manifest: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: rename: %w", err)
	}
	return nil
}
