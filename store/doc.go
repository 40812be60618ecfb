// Package store persists session event logs to SQLite. The journal is
// append-only and mirrors the bus's total order, so a session's history
// can be replayed after restart. Sink bridges a live event bus into the
// journal without the session ever waiting on disk.
package store
