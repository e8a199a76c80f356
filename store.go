package tonequeue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/romanqed/tonequeue/credential"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/shootout"
)

// Patch is the merge patch applied by Store.TransitionJob in the same
// commit as the status compare-and-set (spec §4.1). Nil fields are
// left unchanged; IncrementAttempts, when true, increments Attempts by
// one atomically with the transition. DecrementAttempts undoes that
// increment for a resolution-stage retry (spec §4.5 step 5), which
// must not consume the render-retry budget; setting both is invalid
// and DecrementAttempts is ignored if so.
type Patch struct {
	Progress          *uint8
	Message           *string
	ResultPath        *string
	ErrorKind         job.ErrorKind
	ErrorDetail       *string
	StartedAt         *time.Time
	CompletedAt       *time.Time
	NextRunAt         *time.Time
	IncrementAttempts bool
	DecrementAttempts bool
}

// JobFilter narrows Store.ListJobs to jobs in a particular status.
// The zero value (job.Unknown) applies no status filter.
type JobFilter struct {
	Status job.Status
}

// Page requests a bounded slice of a listing, ordered by CreatedAt
// descending.
type Page struct {
	Limit  int
	Offset int
}

// JobPage is the result of Store.ListJobs.
type JobPage struct {
	Jobs  []*job.Job
	Total int64
}

// Store defines the transactional persistence contract over
// shootouts, jobs and credentials (spec §4.1).
//
// Guarantees: each call is serializable with respect to the target
// row. Readers observe only committed state. A terminal transition
// can never be undone by TransitionJob or UpdateJobProgress.
//
// Failure: any storage error surfaces wrapped in ErrStorageUnavailable.
// Callers must not catch-and-continue, except the Supervisor, which
// retries on its own schedule.
type Store interface {

	// CreateShootoutAndJob atomically inserts s and j: either both
	// rows appear or neither does. s.Id and j.Id, j.ShootoutId must
	// already be populated by the caller (Admission).
	CreateShootoutAndJob(ctx context.Context, s *shootout.Shootout, j *job.Job) error

	// LoadJob returns the job identified by jobID, or ErrNotFound if
	// no such job exists.
	LoadJob(ctx context.Context, jobID uuid.UUID) (*job.Job, error)

	// LoadShootout returns the shootout identified by shootoutID, or
	// ErrNotFound if no such shootout exists.
	LoadShootout(ctx context.Context, shootoutID uuid.UUID) (*shootout.Shootout, error)

	// UpdateJobProgress applies a progress/message update, gated by a
	// compare-and-set against expectedStatus (normally job.Running).
	//
	// If the job's current status is already terminal, UpdateJobProgress
	// is a no-op and returns nil (spec §4.1: "no-op on terminal"). If
	// the current status differs from expectedStatus for any other
	// reason, ErrConflict is returned.
	UpdateJobProgress(ctx context.Context, jobID uuid.UUID, progress uint8, message string, expectedStatus job.Status) error

	// TransitionJob performs a compare-and-set state transition from
	// "from" to "to", applying patch in the same commit.
	//
	// If the job's current status is not "from", ErrConflict is
	// returned and no field changes.
	TransitionJob(ctx context.Context, jobID uuid.UUID, from job.Status, to job.Status, patch *Patch) error

	// ListJobs returns a page of jobs owned by ownerID matching
	// filter, ordered by CreatedAt descending.
	ListJobs(ctx context.Context, ownerID string, filter JobFilter, page Page) (*JobPage, error)

	// CountJobsByStatus returns the number of jobs currently in each
	// status, across all owners. The Supervisor reports this into the
	// Metrics queue-depth gauge on every tick; statuses with zero jobs
	// are omitted from the result.
	CountJobsByStatus(ctx context.Context) (map[job.Status]int64, error)

	// ScanPending returns up to limit jobs in status Pending whose
	// UpdatedAt is at or before olderThan, across all owners. Used by
	// the Supervisor's pending sweep (spec §4.6).
	ScanPending(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error)

	// ScanRunning returns up to limit jobs in status Running whose
	// StartedAt is at or before olderThan, across all owners. Used by
	// the Supervisor's running-timeout scan (spec §4.6).
	ScanRunning(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error)

	// ScanRetentionCandidates returns up to limit terminal jobs (any of
	// Succeeded, Failed, Cancelled) with a non-nil ResultPath whose
	// CompletedAt is at or before olderThan. Used by the Supervisor's
	// retention GC pass (spec §4.6).
	ScanRetentionCandidates(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error)

	// ScanStaleProgress returns up to limit jobs in status Running whose
	// UpdatedAt is at or before olderThan, i.e. no progress update has
	// landed for at least the configured silence window even though the
	// job has not yet hit its wall-clock ceiling. Used by the
	// Supervisor's progress-silence watchdog (spec §5 Timeouts (b)).
	ScanStaleProgress(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error)

	// ClearResultPath nulls jobID's ResultPath without otherwise
	// touching its status. Used after the Supervisor unlinks the
	// underlying artifact file during retention GC.
	ClearResultPath(ctx context.Context, jobID uuid.UUID) error

	// GetCredential returns ownerID's cached credential, or
	// (nil, nil) if none has been stored.
	GetCredential(ctx context.Context, ownerID string) (*credential.Credential, error)

	// PutCredential upserts ownerID's credential row.
	PutCredential(ctx context.Context, ownerID string, cred *credential.Credential) error

	// DeleteCredential removes ownerID's credential row, if any.
	DeleteCredential(ctx context.Context, ownerID string) error
}
