// Package ledger records one row per upstream exchange: which instance
// served it, the status, bytes, latency, and failure class. Records are
// written asynchronously so dispatch never blocks on storage; when the
// queue is full, records are dropped and counted rather than applying
// backpressure to live traffic.
//
// Two storage backends exist: an in-memory ring for development and a
// SQLite database for anything that should survive a restart. A cron
// pruner enforces the retention window.
package ledger
