// Package audit records security audit events for the authentication
// pipeline.
//
// Events are handed to a Recorder, which queues them on a bounded channel
// and writes them to a Store from a background worker. Recording never
// blocks or fails the caller: a full queue drops the event and store errors
// are only logged.
//
// Stores are append-only and support the time-range queries used by the
// alert engine:
//   - MemoryStore keeps a bounded in-process history
//   - SQLiteStore persists events through the modernc driver
//
// RetentionScheduler deletes events older than the configured number of
// days on a cron schedule.
package audit
