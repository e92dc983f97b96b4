package loader

import (
	"strings"

	"github.com/odvcencio/hotreg/pkg/class"
)

// DirectivePrefix introduces a declaration-site registration line.
const DirectivePrefix = "//hotreg:"

// ParseDirective parses "//hotreg:<name> key=value flag ..." into a
// Directive. Bare words become flags with an empty value.
func ParseDirective(line string) (class.Directive, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, DirectivePrefix) {
		return class.Directive{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, DirectivePrefix))
	if len(fields) == 0 || fields[0] == "" {
		return class.Directive{}, false
	}
	d := class.Directive{Name: fields[0], Raw: line}
	for _, f := range fields[1:] {
		if d.Args == nil {
			d.Args = make(map[string]string)
		}
		key, value, _ := strings.Cut(f, "=")
		if key == "" {
			continue
		}
		d.Args[key] = value
	}
	return d, true
}
