package classsource

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleImport marks a module that failed to load during discovery.
	ErrModuleImport = errors.New("module import failed")
	// ErrModuleNotFound marks a module that could not be resolved during a
	// hot reload.
	ErrModuleNotFound = errors.New("module not found")
)

// ImportError identifies the module whose load failed.
type ImportError struct {
	File string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.File, e.Err)
}

// Unwrap exposes both the ErrModuleImport marker and the underlying cause.
func (e *ImportError) Unwrap() []error {
	return []error{ErrModuleImport, e.Err}
}

// ResolutionError reports a module that disappeared or could not be found
// while being re-imported. The file's classes keep their last-known state.
type ResolutionError struct {
	File string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.File, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrModuleNotFound, e.Err}
}
