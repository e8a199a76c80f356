package job

import (
	"time"

	"github.com/google/uuid"
)

// Job represents the executable unit derived from exactly one Shootout.
//
// CreatedAt records when Admission created the row. StartedAt is set
// when a worker wins the Queued -> Running transition.
// CompletedAt is set on any terminal transition.
//
// Attempts counts the job's render attempts: it is incremented on each
// Queued -> Running transition and decremented again when a transient
// credential or model-fetch failure sends the job back to Queued. It
// is bounded by the configured MaxAttempts policy. LockedUntil
// defines the visibility timeout while Status is Running; NextRunAt is
// the earliest time the job becomes eligible for leasing again.
//
// ResultPath is set if and only if Status is Succeeded. ErrorKind is
// set if and only if Status is Failed or Cancelled. ErrorDetail is set
// only when Status is Failed; a Cancelled job has no ErrorDetail.
//
// Job instances are snapshots of durable storage state. Mutating a
// field directly does not change the underlying row; transitions must
// go through Store.TransitionJob or Store.UpdateJobProgress so that the
// compare-and-set against Status is honored.
type Job struct {
	Id          uuid.UUID
	ShootoutId  uuid.UUID
	OwnerId     string

	Status   Status
	Progress uint8
	Message  string

	Attempts uint32

	ResultPath  *string
	ErrorKind   ErrorKind
	ErrorDetail *string

	LockedUntil *time.Time
	NextRunAt   time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Snapshot is a read-only view of Job suitable for publishing on the
// Progress Hub or serializing to a subscriber stream; it excludes
// scheduling internals (LockedUntil, NextRunAt) that are not part of
// the public persisted job record (spec §6).
type Snapshot struct {
	Status      Status  `json:"status"`
	Progress    uint8   `json:"progress"`
	Message     string  `json:"message,omitempty"`
	Attempts    uint32  `json:"attempts"`
	ResultPath  *string `json:"result_path,omitempty"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	ErrorDetail *string `json:"error_detail,omitempty"`
}

// ToSnapshot projects the mutable, subscriber-visible fields of a Job.
func (j *Job) ToSnapshot() Snapshot {
	return Snapshot{
		Status:      j.Status,
		Progress:    j.Progress,
		Message:     j.Message,
		Attempts:    j.Attempts,
		ResultPath:  j.ResultPath,
		ErrorKind:   j.ErrorKind,
		ErrorDetail: j.ErrorDetail,
	}
}
