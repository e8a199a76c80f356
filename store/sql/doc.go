// Package sql provides a bun-based SQL persistence backend implementing
// tonequeue.Store and tonequeue.Broker.
//
// # Overview
//
// The SQL backend provides:
//
//   - durable persistence of shootouts, jobs and credentials
//   - atomic state transitions on jobs using UPDATE ... RETURNING
//   - visibility-timeout (lease) semantics layered onto the jobs table
//   - retention and pending-sweep scans used by the Supervisor
//
// It is compatible with SQLite, PostgreSQL and other bun-supported
// dialects, subject to their transactional guarantees.
//
// # Concurrency Model
//
// Job and credential transitions are implemented as single atomic
// UPDATE statements guarded by a WHERE clause on the expected prior
// state, so that two callers racing to transition the same row never
// both succeed.
//
// Store and Broker share the jobs table: Store owns status, progress
// and the terminal/audit fields; Broker layers lease_token and
// lease_deadline columns onto the same row to track visibility without
// disturbing status, which only Store.TransitionJob may change. A job
// becomes re-leasable when its lease_deadline passes without an Ack,
// Nack or Extend -- Supervisor.reapExpiredLeases then CASes its status
// back to Queued.
//
// # Schema
//
// InitDB (or MustInitDB) creates the shootouts, jobs and credentials
// tables plus the indexes Store and Broker rely on. It is idempotent and
// runs inside a transaction; it performs no destructive migrations.
//
// # Database Lifecycle
//
// This package does not manage connection pooling, migrations, or
// database lifecycle. The caller is responsible for creating and
// configuring *bun.DB, connection limits, WAL/busy_timeout
// configuration for SQLite, and running InitDB before use.
package sql
