package hub

import "github.com/romanqed/tonequeue/job"

// Event is one of SnapshotEvent, ProgressEvent, TerminalEvent or
// LaggedEvent, the frame types delivered on a Subscription's channel
// (spec §4.7, §6).
type Event interface {
	isEvent()
}

// ProgressEvent reports an in-progress percentage and short message.
// Consecutive ProgressEvents on one subscriber stream are monotone in
// Pct within a single running attempt (spec §8 property 7); a retry
// resets Pct to 0.
type ProgressEvent struct {
	Pct uint8
	Msg string
}

func (ProgressEvent) isEvent() {}

// TerminalEvent reports the final outcome of a job attempt sequence.
// Exactly one TerminalEvent is ever delivered per subscriber per job
// (spec §8 property 3); it is never dropped by the overflow policy.
type TerminalEvent struct {
	Status      job.Status
	ResultPath  *string
	ErrorKind   job.ErrorKind
	ErrorDetail *string
}

func (TerminalEvent) isEvent() {}

// LaggedEvent is delivered, and the stream then closed, when a
// subscriber has not drained its channel for the configured
// detachment window (spec §4.7: 30s default).
type LaggedEvent struct{}

func (LaggedEvent) isEvent() {}

// SnapshotEvent is sent once immediately on Subscribe so a new
// subscriber never misses the job's current state (spec §4.7,
// "last_known" snapshot).
type SnapshotEvent struct {
	job.Snapshot
}

func (SnapshotEvent) isEvent() {}
