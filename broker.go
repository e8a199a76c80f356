package tonequeue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lease represents a worker's time-bounded, exclusive right to process
// a job (spec §3, "Ownership"). It is a logical loan, not ownership:
// the job row itself still belongs to the Durable Store.
//
// Token is an opaque value that lets a Broker implementation detect a
// stale Extend/Ack/Nack call made after the lease's Deadline has
// already passed and the job was re-leased to another worker.
type Lease struct {
	JobId    uuid.UUID
	Token    string
	Deadline time.Time
}

// Broker defines the at-least-once delivery contract of job handles to
// workers (spec §4.2).
//
// Ordering: Broker imposes no total order. A Lease is visible to
// at-most-one consumer between the time it is granted and its
// Deadline. After the deadline passes without Extend or Ack, the job
// becomes eligible for re-leasing.
//
// Idempotency: workers must treat delivery as at-least-once; the same
// job id may be leased more than once if a prior lease expired before
// completion.
//
// Fairness: implementation-chosen. FIFO per owner is acceptable;
// strict global FIFO is not required.
type Broker interface {

	// Enqueue durably admits jobID into the broker. The job becomes
	// eligible for leasing once notBefore has passed; a zero
	// notBefore makes it immediately eligible.
	Enqueue(ctx context.Context, jobID uuid.UUID, notBefore time.Time) error

	// Lease returns a single eligible job handle, hidden from other
	// consumers until its Deadline. If no job is eligible within
	// maxWait, Lease returns (nil, nil).
	//
	// The lock parameter of the caller determines the lease's initial
	// visibility timeout; the returned Lease.Deadline reflects it.
	Lease(ctx context.Context, workerID string, maxWait time.Duration, lock time.Duration) (*Lease, error)

	// Extend pushes a held lease's Deadline forward to now+lock.
	//
	// If the lease has already expired and the job was re-leased,
	// Extend returns ErrLockLost.
	Extend(ctx context.Context, lease *Lease, lock time.Duration) error

	// Ack durably removes the job from the broker. Ack is called after
	// a terminal transition (succeeded, failed, cancelled) has already
	// been committed to the Durable Store, or when a stale delivery is
	// discovered for an already-terminal job.
	Ack(ctx context.Context, lease *Lease) error

	// Nack re-queues the job after delay, for example after a
	// transient render or model-fetch failure.
	//
	// If the job has since been leased under a different token, Nack
	// returns ErrLockLost.
	Nack(ctx context.Context, lease *Lease, delay time.Duration) error

	// ReapExpired returns the ids of every job whose lease has expired
	// without an Ack or Extend, making them eligible for re-leasing.
	// It is invoked by the Supervisor.
	ReapExpired(ctx context.Context) ([]uuid.UUID, error)
}
