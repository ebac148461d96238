// Package partition owns the durable write path: serializing a batch of
// envelopes and landing it as one new, immutable, session-prefixed object.
//
// Key layout (bit-exact, external tooling inspects storage directly):
//
//	{root}/sessionId={sessionId}/{suffix}
//
// root defaults to rrweb/recordings. The suffix is a sortable id (pkg/id),
// so successive flushes for a session list back in flush order and
// concurrent writers can never collide without any cross-instance locking.
package partition
