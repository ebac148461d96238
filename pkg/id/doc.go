// Package id generates lexicographically sortable, per-process unique
// identifiers used as partition-object key suffixes. Because the encoding is
// ordered by generation time, object-store listings come back in flush order,
// which gives the read path a stable dedup order for free.
package id
