// Package eligibility decides which files of a source tree are production
// modules that take part in class discovery.
package eligibility

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher reports whether a path is a production-eligible module. A file is
// eligible when it is a .go file, not a _test.go file, not inside a hidden
// directory, and not excluded by an ignore pattern.
type Matcher struct {
	patterns []pattern
}

type pattern struct {
	text     string
	negated  bool
	dirOnly  bool
	hasSlash bool // match against the full relative path instead of the base name
	regex    *regexp.Regexp
}

// New builds a matcher from gitignore-style lines. Empty lines and lines
// starting with # are skipped.
func New(lines ...string) *Matcher {
	m := &Matcher{}
	for _, line := range lines {
		if p := parseLine(line); p != nil {
			m.patterns = append(m.patterns, *p)
		}
	}
	return m
}

// Load builds a matcher from the ignore file at root/ignoreFile followed by
// extra patterns. A missing ignore file is not an error.
func Load(root, ignoreFile string, extra []string) (*Matcher, error) {
	var lines []string
	if ignoreFile != "" {
		f, err := os.Open(filepath.Join(root, ignoreFile))
		switch {
		case err == nil:
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				lines = append(lines, scanner.Text())
			}
			f.Close()
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("read %s: %w", ignoreFile, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("open %s: %w", ignoreFile, err)
		}
	}
	lines = append(lines, extra...)
	return New(lines...), nil
}

func parseLine(line string) *pattern {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	p := &pattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	line = strings.TrimPrefix(line, "/")
	p.hasSlash = strings.Contains(line, "/")
	p.text = line
	if strings.Contains(line, "**") {
		if re, err := regexp.Compile(globToRegex(line)); err == nil {
			p.regex = re
		}
	}
	return p
}

// Eligible reports whether rel takes part in discovery. For directories it
// reports whether the walk should descend into them.
func (m *Matcher) Eligible(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	if hidden(rel) {
		return false
	}
	if !isDir {
		if path.Ext(rel) != ".go" || strings.HasSuffix(rel, "_test.go") {
			return false
		}
	}
	return !m.Ignored(rel, isDir)
}

// Ignored applies the ignore patterns only. The last matching pattern wins so
// that negations can re-include paths.
func (m *Matcher) Ignored(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	ignored := false
	for _, p := range m.patterns {
		if p.matches(rel, isDir) {
			ignored = !p.negated
		}
	}
	return ignored
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if len(seg) > 1 && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func (p *pattern) matches(rel string, isDir bool) bool {
	if p.dirOnly {
		// A directory pattern covers the directory itself and anything under it.
		for dir := rel; dir != "." && dir != ""; dir = path.Dir(dir) {
			if dir != rel || isDir {
				if p.matchTarget(dir) {
					return true
				}
			}
		}
		return false
	}
	return p.matchTarget(rel)
}

func (p *pattern) matchTarget(target string) bool {
	if !p.hasSlash {
		target = path.Base(target)
	}
	if p.regex != nil {
		return p.regex.MatchString(target)
	}
	matched, _ := path.Match(p.text, target)
	return matched
}

func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		ch := glob[i]
		switch {
		case ch == '*' && i+1 < len(glob) && glob[i+1] == '*':
			if i+2 < len(glob) && glob[i+2] == '/' {
				// Globstar directory segment: zero or more path segments.
				b.WriteString("(?:.*/)?")
				i += 2
			} else {
				b.WriteString(".*")
				i++
			}
		case ch == '*':
			b.WriteString("[^/]*")
		case ch == '?':
			b.WriteString("[^/]")
		default:
			if strings.ContainsRune(`.+()|[]{}^$\`, rune(ch)) {
				b.WriteByte('\\')
			}
			b.WriteByte(ch)
		}
	}
	b.WriteString("$")
	return b.String()
}
