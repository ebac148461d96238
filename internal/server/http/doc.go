// Package httpserver is the REST front door: browsers post event batches to
// a session and replay tooling fetches the reconstructed stream back as
// JSONL. CORS is wide open because recording snippets run on arbitrary
// customer origins.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
