// Package tonequeue is the job orchestration core of a guitar
// tone-shootout rendering service.
//
// # Overview
//
// A caller submits a Shootout (package shootout): a set of signal
// chains applied to one or more direct-input recordings. Admission
// (package admission) validates the submission and creates a Job
// (package job) in the Durable Store (Store), then hands it to the
// Queue Broker (Broker). A Worker Lease Loop (Worker) leases the job,
// resolves model artifacts via the Credential Service (package
// credential), invokes the external render engine (package render),
// and reports progress to the Progress Hub (package hub) while writing
// state transitions back to the Store. A Supervisor reaps expired
// leases, times out runaway jobs, and garbage-collects retained
// artifacts.
//
// The package does not mandate any particular storage or broker
// backend; package store/sql provides a bun-based SQL implementation
// suitable for SQLite and PostgreSQL.
//
// # Delivery Semantics
//
// tonequeue provides at-least-once processing guarantees for Jobs.
//
// A job may be delivered to a worker more than once if:
//
//   - a worker crashes before completing it
//   - the lease's visibility timeout expires
//   - the lease is lost due to concurrent leasing
//
// The render engine invocation must therefore be safe to retry;
// attempts are bounded by WorkerConfig.MaxAttempts and
// BackoffConfig.MaxRetries.
//
// # State Machine
//
// Jobs follow this lifecycle (package job):
//
//	Pending   -> Queued
//	Queued    -> Running
//	Running   -> Succeeded
//	Running   -> Queued      (via retry)
//	Running   -> Failed
//	(Pending|Queued|Running) -> Cancelled
//
// Terminal states (Succeeded, Failed, Cancelled) are never retried or
// mutated further, except observability audit timestamps.
//
// # Retry Policy
//
// Retry behavior is controlled by BackoffConfig. When the render
// engine returns a transient error and the maximum retry limit is not
// exceeded, the job is rescheduled with a computed backoff delay.
// Otherwise it transitions to Failed.
//
// # Worker
//
// Worker coordinates leasing, dispatching, retrying and completing
// jobs. It periodically leases jobs from the Broker, dispatches them
// to a configurable worker pool, extends job leases while the render
// engine runs, and applies retry/backoff logic on failure. Worker does
// not guarantee exactly-once delivery.
//
// # Interfaces
//
// tonequeue defines the following primary interfaces:
//
//	Broker — durable, at-least-once delivery of job handles to workers
//	Store  — transactional persistence of shootouts, jobs and credentials
//
// These interfaces allow storage and broker implementations to be
// plugged in without coupling orchestration logic to a specific
// database or message transport.
//
// # Concurrency Model
//
// Worker uses a bounded internal queue and a fixed-size worker pool
// (package internal). Leasing and processing are decoupled to smooth
// load. On shutdown, Stop cancels the context of in-flight render
// invocations and waits up to a configurable timeout for them to
// return; a job interrupted this way stays Running until its lease
// expires and the Supervisor re-queues it.
//
// # Storage Expectations
//
// Implementations of Store and Broker must ensure atomic state
// transitions, durable persistence and correct visibility timeout
// handling; tonequeue assumes the underlying database provides
// serializable writes on a single row.
package tonequeue
