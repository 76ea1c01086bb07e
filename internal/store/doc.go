// Package store provides SQLite-backed storage for embeddings, experiment
// configs and projection points.
//
// Tables:
//   - embeddings: filename -> artist, float32 vector (read-only here,
//     except cascade delete)
//   - artists: auxiliary viewer information
//   - configs: one row per DR run, replaced whole on upsert
//   - projection_points: the 2-D or 3-D output of a run
//
// # Integrity
//
// Points reference both their config and their embedding with
// ON DELETE CASCADE, so deleting either parent removes the points. Writes
// that would break a reference fail with errdefs.StorageIntegrityError
// naming the offending reference. Every multi-statement write runs in one
// transaction and leaves no partial state on error.
//
// Params are stored as canonical JSON (sorted keys, NFC strings) together
// with their domain-separated SHA-256, so identical parameter sets are
// byte-identical and can be grouped by hash.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity (also set in the DSN so
//     a reopened pool connection keeps it)
package store
