// Package ingest accepts event batches from clients, validates them, and
// coalesces them per session until a size or time bound trips, at which point
// the buffered envelopes are handed to the partition writer for a durable
// flush. Acceptance is all-or-nothing per batch: a batch that fails shape
// validation leaves the buffer untouched.
package ingest
