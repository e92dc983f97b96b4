// Package pending records declaration-site registrations while a module is
// being evaluated. Each file (re-)execution appends its classes in
// declaration order; the buffers are consumed exactly once by a flush.
package pending

import (
	"path/filepath"
	"sync"

	"github.com/odvcencio/hotreg/pkg/class"
)

// Buffer is the ordered list of classes declared by one file execution.
type Buffer struct {
	File    string
	Classes []*class.Class
}

// Log holds per-file registration buffers. It is safe for concurrent use so
// that files may be evaluated in parallel.
type Log struct {
	mu      sync.Mutex
	order   []string
	buffers map[string][]*class.Class
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{buffers: make(map[string][]*class.Class)}
}

// Append records cls as declared by file.
func (l *Log) Append(cls *class.Class, file string) {
	file = filepath.ToSlash(file)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buffers[file]; !ok {
		l.order = append(l.order, file)
	}
	l.buffers[file] = append(l.buffers[file], cls)
}

// Flush returns every buffer in first-append order and clears the log.
func (l *Log) Flush() []Buffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Buffer, 0, len(l.order))
	for _, file := range l.order {
		out = append(out, Buffer{File: file, Classes: l.buffers[file]})
	}
	l.order = nil
	l.buffers = make(map[string][]*class.Class)
	return out
}

// FlushFile returns and clears the buffer for a single file. A file with no
// recorded registrations yields nil.
func (l *Log) FlushFile(file string) []*class.Class {
	file = filepath.ToSlash(file)
	l.mu.Lock()
	defer l.mu.Unlock()
	classes, ok := l.buffers[file]
	if !ok {
		return nil
	}
	delete(l.buffers, file)
	for i, f := range l.order {
		if f == file {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return classes
}

// Len reports the number of files with unflushed registrations.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Classes flattens buffers into one ordered class list.
func Classes(buffers []Buffer) []*class.Class {
	var out []*class.Class
	for _, b := range buffers {
		out = append(out, b.Classes...)
	}
	return out
}
