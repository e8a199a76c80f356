package tonequeue

import "errors"

// Error taxonomy (spec §7). These sentinels classify the outcome of a
// core operation; callers should match them with errors.Is rather than
// comparing strings.
var (
	// ErrNotFound indicates the referenced job or shootout does not
	// exist.
	ErrNotFound = errors.New("tonequeue: not found")

	// ErrForbidden indicates the caller's owner id does not match the
	// resource's owner id.
	ErrForbidden = errors.New("tonequeue: forbidden")

	// ErrConflict indicates a compare-and-set lost its race, or a
	// CancelJob was issued against an already-terminal job.
	ErrConflict = errors.New("tonequeue: conflict")

	// ErrJobLost indicates that the referenced job no longer exists in
	// storage or cannot be found in its expected state.
	//
	// This error may occur if the job was concurrently removed or
	// transitioned by another actor.
	ErrJobLost = errors.New("tonequeue: job lost")

	// ErrLockLost indicates that the caller no longer owns the job
	// lease.
	//
	// This typically happens when the visibility timeout expires and
	// the job is leased by another worker before the current worker
	// completes or extends the lease.
	ErrLockLost = errors.New("tonequeue: lease lost")

	// ErrBadStatus indicates an invalid status was supplied to a
	// Store or Supervisor operation that restricts its scope to
	// terminal states.
	ErrBadStatus = errors.New("tonequeue: bad job status")

	// ErrStorageUnavailable indicates the Durable Store could not
	// service a request. Caller-facing operations surface this as a
	// 5xx; the Worker Lease Loop nacks with backoff.
	ErrStorageUnavailable = errors.New("tonequeue: storage unavailable")

	// ErrBrokerUnavailable indicates the Queue Broker could not
	// service an enqueue. Admission degrades to status=pending and
	// relies on the Supervisor to sweep the job later.
	ErrBrokerUnavailable = errors.New("tonequeue: broker unavailable")

	// ErrAuthTransient indicates a network or 5xx failure refreshing
	// credentials with the identity provider. Retryable with backoff.
	ErrAuthTransient = errors.New("tonequeue: transient auth failure")

	// ErrAuthPermanent indicates the identity provider rejected the
	// refresh token (invalid_grant). The credential row is marked
	// broken and the current job fails terminally.
	ErrAuthPermanent = errors.New("tonequeue: permanent auth failure")

	// ErrModelFetchTransient indicates a transient network failure
	// fetching a model artifact from the registry.
	ErrModelFetchTransient = errors.New("tonequeue: transient model fetch failure")

	// ErrModelFetchPermanent indicates a permanent failure (404/403)
	// fetching a model artifact from the registry.
	ErrModelFetchPermanent = errors.New("tonequeue: permanent model fetch failure")

	// ErrRenderTransient indicates a transient render engine failure
	// (I/O, decode, engine restart). Retryable up to MaxAttempts.
	ErrRenderTransient = errors.New("tonequeue: transient render failure")

	// ErrRenderPermanent indicates the render engine detected an
	// unrecoverable shootout semantics problem.
	ErrRenderPermanent = errors.New("tonequeue: permanent render failure")

	// ErrTimeout indicates a job exceeded its wall-clock ceiling.
	ErrTimeout = errors.New("tonequeue: job timed out")

	// ErrCancelled indicates a user or operator cancelled the job.
	ErrCancelled = errors.New("tonequeue: job cancelled")
)
