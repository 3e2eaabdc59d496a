// Package stores persists build state in SQLite.
//
// A single SQLiteStore serves three roles:
//
//   - work.Store: the last successful input and output snapshot of every
//     task, used for up-to-date checks.
//   - executor.Recorder: one row per run plus the result of every task in it.
//   - an event sink: telemetry events can be appended through EventSubscriber.
//
// The schema lives in embedded migrations applied by Migrate. File databases
// run in WAL mode; ":memory:" databases are limited to one connection.
package stores
