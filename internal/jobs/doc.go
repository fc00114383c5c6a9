// Package jobs persists the background job queue in SQLite.
//
// The store enforces the queue's core invariant at the storage layer: at most
// one pending-or-processing job per job type, backed by a partial unique
// index. Claims transition pending jobs to processing in a single UPDATE
// statement, so concurrent workers never take the same row. Failures either
// reschedule the job with a retry delay or fail it permanently once attempts
// run out.
//
// The package also owns the per-job pipeline steps, per-article telemetry, and
// the append-only system log, all in the same database file.
package jobs
