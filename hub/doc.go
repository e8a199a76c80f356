// Package hub implements the Progress Hub: a per-process, in-memory
// publish/subscribe bus keyed by job id (spec §4.7).
//
// Publish is fire-and-forget from the caller's perspective and never
// blocks on a slow subscriber; Subscribe returns a bounded,
// ordered event stream plus an immediate snapshot of current state so
// a subscriber never misses the job's status because it connected
// late.
//
// Cross-process fan-out is out of scope (spec §4.7): a multi-process
// deployment feeds this Hub from a broker topic owned by the Queue
// Broker implementation, one Hub per front-door process.
package hub
