// Package runtime wires storage, ingestion, and read-side components into a
// single-node instance. It opens the configured object-store backend, builds
// the partition writer, ingest buffer, and session reader on top of it, and
// owns their lifecycle.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close(ctx)
//	_ = rt.Buffer().Append(ctx, "session-1", envs)
//	stream, _ := rt.Reader().Read(ctx, "session-1", reader.ReadOptions{})
package runtime
