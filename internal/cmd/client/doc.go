// Package client provides the `rewind` command-line client.
//
// The CLI talks to the rewind HTTP API to send recorded event batches and
// fetch reconstructed session streams from a terminal. It is primarily
// intended for developers and operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it reads
// REWIND_HTTP and defaults to http://127.0.0.1:8080.
//
// Usage
//
//	# Send a batch of events from a JSONL file (or - for stdin)
//	rewind session send --session demo --file events.jsonl
//
//	# Fetch the ordered, deduplicated stream
//	rewind session events --session demo
//
//	# Server-side CEL filter
//	rewind session events --session demo --filter 'json.type == 3'
//
// Notes
//
//   - send posts the batch as application/jsonl+json; a 202 means the batch
//     is buffered for a durable flush, not yet landed.
//   - events prints JSONL to stdout and warns on stderr when the server
//     flags the stream incomplete.
package client
