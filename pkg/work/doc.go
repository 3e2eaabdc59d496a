// Package work decides whether a task can be skipped.
//
// Before a task runs, the executor serializes its declared inputs into an
// Input snapshot. After a successful run it records an Output snapshot of the
// files the task produced. Both are stored together as the task's History.
//
// On the next run the task is UP-TO-DATE when:
//
//   - it declares at least one input
//   - the serialized inputs equal the previous ones
//   - the previous output files still exist, unchanged, with modification
//     times no later than the recorded timestamp
//   - every custom up-to-date predicate agrees
//
// History is persisted through a Store. FileStore keeps one JSON document per
// task under .assemble/task-cache; stores.SQLiteStore is the database backed
// alternative.
package work
