package engine

import "errors"

var (
	// ErrNotReady means no index generation has been loaded yet. Callers
	// should surface this as "warming up", not as a failure.
	ErrNotReady = errors.New("no index generation loaded")

	// ErrNotFound means the requested source ID is not in the live
	// generation.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyQuery rejects blank search input.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrQueryTooLong rejects search input past MaxQueryLen.
	ErrQueryTooLong = errors.New("query exceeds maximum length")
)
