// Package log provides structured, leveled logging for rewind components.
//
// Loggers are constructed explicitly and passed via dependency injection;
// there is no package-level default. Components tag their logs with
// Component fields so output from the buffer, writer, and reader can be
// told apart:
//
//	logger := log.NewLogger(log.WithLevel(log.DebugLevel))
//	wlog := logger.With(log.Component("writer"))
//	wlog.Info("flushed partition", log.Str("key", key), log.Int("records", n))
//
// RedirectStdLog routes standard-library log output (Pebble uses it) through
// a Logger so the process emits a single log format.
package log
