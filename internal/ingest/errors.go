package ingest

import "errors"

var (
	// ErrInvalidInput rejects a batch that fails shape validation. Nothing
	// from the batch is buffered.
	ErrInvalidInput = errors.New("ingest: invalid input")

	// ErrWriteUnavailable signals that the buffer cannot accept writes right
	// now (hard cap reached or a triggered flush could not land). The client
	// should retry; duplicates are resolved on read.
	ErrWriteUnavailable = errors.New("ingest: write unavailable")
)
