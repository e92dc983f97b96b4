// Package report renders class and method change events for humans.
package report

import (
	"fmt"
	"strings"

	"github.com/odvcencio/hotreg/pkg/class"
	"github.com/odvcencio/hotreg/pkg/methodsource"
)

// Marker returns the one-character marker and label for kind.
func Marker(kind class.EventKind) (marker, label string) {
	switch kind {
	case class.Added:
		return "+", "added"
	case class.Removing:
		return "-", "removed"
	case class.Changed:
		return "~", "changed"
	}
	return "?", kind.String()
}

// FormatEvents produces a per-file summary of class events, with the method
// changes of each changed class indented below it.
//
// Output format:
//
//	path:
//	  + Name     (added)
//	  ~ Name     (changed)
//	      ~ Method
//	  - Name     (removed)
func FormatEvents(events []class.ClassEvent) string {
	if len(events) == 0 {
		return ""
	}

	var b strings.Builder
	var order []string
	byFile := make(map[string][]class.ClassEvent)
	for _, ev := range events {
		file := ev.Latest().File
		if _, ok := byFile[file]; !ok {
			order = append(order, file)
		}
		byFile[file] = append(byFile[file], ev)
	}

	for _, file := range order {
		fmt.Fprintf(&b, "%s:\n", file)
		for _, ev := range byFile[file] {
			marker, label := Marker(ev.Kind)
			fmt.Fprintf(&b, "  %s %s     (%s)\n", marker, ev.Latest().Name, label)
			if ev.Kind != class.Changed {
				continue
			}
			for _, me := range methodsource.Diff(ev) {
				m, _ := Marker(me.Kind)
				fmt.Fprintf(&b, "      %s %s\n", m, me.Latest().Method)
			}
		}
	}
	return b.String()
}

// FormatEvent renders one class event on a single line.
func FormatEvent(ev class.ClassEvent) string {
	marker, label := Marker(ev.Kind)
	return fmt.Sprintf("%s %s (%s)", marker, ev.Latest().String(), label)
}

// FormatMethodEvent renders one method event on a single line.
func FormatMethodEvent(ev class.MethodEvent) string {
	marker, label := Marker(ev.Kind)
	ref := ev.Latest()
	return fmt.Sprintf("%s %s.%s (%s)", marker, ref.Class.ID, ref.Method, label)
}

// Summary counts events by kind, e.g. "2 added, 1 changed, 0 removed".
func Summary(events []class.ClassEvent) string {
	var added, changed, removed int
	for _, ev := range events {
		switch ev.Kind {
		case class.Added:
			added++
		case class.Changed:
			changed++
		case class.Removing:
			removed++
		}
	}
	return fmt.Sprintf("%d added, %d changed, %d removed", added, changed, removed)
}
