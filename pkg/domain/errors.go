package domain

import "errors"

// ErrViewNotFound is returned when a view ID cannot be found in the store.
var ErrViewNotFound = errors.New("view not found")

// ErrNodeNotFound is returned when a hash is neither in the current search
// results nor in the visible set.
var ErrNodeNotFound = errors.New("node not found")

// ErrEmptyPattern is returned by one-shot searches given a blank pattern.
var ErrEmptyPattern = errors.New("empty search pattern")

// ErrBackend wraps failures reported by the Skyframe backend.
var ErrBackend = errors.New("backend request failed")

// ErrInvalidViewID is returned for view IDs that are empty, start with a dot,
// or contain characters outside [A-Za-z0-9._-].
var ErrInvalidViewID = errors.New("invalid view id")

// ErrGraphNotRendered is returned when a view has no successful render yet.
var ErrGraphNotRendered = errors.New("graph not rendered yet")
