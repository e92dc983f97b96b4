package registry

import "errors"

var (
	// ErrNotInitialized is returned by read accessors before Init completes.
	ErrNotInitialized = errors.New("registry not initialized")
	// ErrIndexNotRegistered is returned by Instance for an unknown index type.
	ErrIndexNotRegistered = errors.New("index not registered")
)
