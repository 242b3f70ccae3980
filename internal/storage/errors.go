package storage

import "errors"

var (
	// ErrFilterNotFound is returned when a filter ID is unknown or deprecated
	ErrFilterNotFound = errors.New("filter criteria not found")
	// ErrNoActiveFilter is returned when no filter is marked active
	ErrNoActiveFilter = errors.New("no active filter criteria")
)
