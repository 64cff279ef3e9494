package storage

import "errors"

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrGenerationNotFound = errors.New("index generation not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
)
