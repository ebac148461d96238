// Package reader reconstructs a session's ordered event stream from its
// partition objects. It lists every object under the session prefix, fetches
// them with bounded parallelism, decodes tolerantly, deduplicates by sequence,
// and sorts ascending. A session with no objects is an empty stream, not an
// error.
package reader
