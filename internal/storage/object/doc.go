// Package objstore defines the object-store boundary the pipeline writes to
// and reads from. Exactly three operations are used: put a new immutable
// object, list keys under a prefix (paginated), and fetch one object's bytes.
// There is no update or append-in-place, which is what lets concurrent
// writers stay lock-free: every flush creates a new uniquely-keyed object.
//
// Two production backends are provided: an embedded Pebble-backed store and
// an S3-backed store. The in-memory store exists for tests and supports
// fault injection.
package objstore
