package watch

import "fmt"

// Action is what happened to a source file.
type Action int

const (
	Create Action = iota
	Update
	Delete
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("unknown(%d)", int(a))
}

// Event is a single file change. File is slash-separated and relative to the
// watched root.
type Event struct {
	Action Action
	File   string
}

func (e Event) String() string {
	return e.Action.String() + " " + e.File
}
