package tonequeue

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/romanqed/tonequeue/hub"
	"github.com/romanqed/tonequeue/internal"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/metrics"
)

// SupervisorConfig controls the scan cadence and thresholds of a
// Supervisor (spec §4.6). All fields have sane defaults when zero.
type SupervisorConfig struct {
	// Interval is how often every scan pass runs. Default 10s.
	Interval time.Duration

	// PendingAge is how long a job may sit in Pending before the
	// pending sweep re-enqueues it. Default 60s.
	PendingAge time.Duration

	// WallClockCeiling is how long a job may sit in Running before the
	// running-timeout scan force-fails it. Default 30m.
	WallClockCeiling time.Duration

	// ProgressSilence is how long a Running job may go without a
	// progress update before the progress-silence watchdog force-nacks
	// it back to Queued, independent of WallClockCeiling. Default 5m.
	ProgressSilence time.Duration

	// Retention is how long a terminal job's artifact is kept on disk
	// before the retention GC pass unlinks it. Default 14 days.
	Retention time.Duration

	// ScanLimit bounds how many jobs each pass pulls per tick.
	ScanLimit int

	// Recorder records reaped-lease churn, if non-nil.
	Recorder *metrics.Recorder
}

// Supervisor is a singleton background loop (multiple instances
// tolerated; every write is CAS-guarded) running the scan passes of
// spec §4.6: reap expired leases, force-nack progress-silent running
// jobs, sweep stale pending jobs, fail jobs that exceeded the
// wall-clock ceiling, and garbage-collect retained artifacts.
type Supervisor struct {
	lcBase

	store    Store
	broker   Broker
	hub      *hub.Hub
	recorder *metrics.Recorder
	log      *slog.Logger
	task     internal.TimerTask

	interval        time.Duration
	pendingAge      time.Duration
	wallClock       time.Duration
	progressSilence time.Duration
	retention       time.Duration
	scanLimit       int
}

// NewSupervisor builds a Supervisor.
func NewSupervisor(store Store, broker Broker, h *hub.Hub, cfg *SupervisorConfig, log *slog.Logger) *Supervisor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	pendingAge := cfg.PendingAge
	if pendingAge <= 0 {
		pendingAge = 60 * time.Second
	}
	wallClock := cfg.WallClockCeiling
	if wallClock <= 0 {
		wallClock = 30 * time.Minute
	}
	progressSilence := cfg.ProgressSilence
	if progressSilence <= 0 {
		progressSilence = 5 * time.Minute
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 14 * 24 * time.Hour
	}
	scanLimit := cfg.ScanLimit
	if scanLimit <= 0 {
		scanLimit = 100
	}
	return &Supervisor{
		store:           store,
		broker:          broker,
		hub:             h,
		recorder:        cfg.Recorder,
		log:             log,
		interval:        interval,
		pendingAge:      pendingAge,
		wallClock:       wallClock,
		progressSilence: progressSilence,
		retention:       retention,
		scanLimit:       scanLimit,
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	s.reapExpiredLeases(ctx)
	s.scanProgressSilence(ctx)
	s.sweepPending(ctx)
	s.scanRunningTimeouts(ctx)
	s.gcRetention(ctx)
	s.reportQueueDepth(ctx)
}

// allStatuses enumerates every non-zero job.Status so reportQueueDepth
// can zero out a gauge whose count just dropped to nothing, rather
// than leaving Prometheus holding its last nonzero value forever.
var allStatuses = []job.Status{
	job.Pending, job.Queued, job.Running, job.Succeeded, job.Failed, job.Cancelled,
}

// reportQueueDepth implements SPEC_FULL.md §2 component 11's
// queue-depth gauge: a per-status snapshot of job counts, taken once
// per Supervisor tick.
func (s *Supervisor) reportQueueDepth(ctx context.Context) {
	if s.recorder == nil {
		return
	}
	counts, err := s.store.CountJobsByStatus(ctx)
	if err != nil {
		s.log.Error("count jobs by status failed", "err", err)
		return
	}
	for _, status := range allStatuses {
		s.recorder.SetQueueDepth(status.String(), int(counts[status]))
	}
}

// reapExpiredLeases implements spec §4.6 bullet 1: for each job whose
// lease expired, if it is still Running, CAS it back to Queued so the
// broker may immediately re-lease it.
func (s *Supervisor) reapExpiredLeases(ctx context.Context) {
	ids, err := s.broker.ReapExpired(ctx)
	if err != nil {
		s.log.Error("reap expired leases failed", "err", err)
		return
	}
	msg := "worker lost"
	for _, jobID := range ids {
		patch := &Patch{Message: &msg}
		if err := s.store.TransitionJob(ctx, jobID, job.Running, job.Queued, patch); err != nil {
			if !errors.Is(err, ErrConflict) {
				s.log.Error("reap: transition to queued failed", "job_id", jobID, "err", err)
			}
			continue
		}
		if s.recorder != nil {
			s.recorder.IncLeaseChurn("reaped")
		}
		s.log.Info("reaped expired lease", "job_id", jobID)
	}
}

// scanProgressSilence implements spec §5 Timeouts (b): a Running job
// that has gone ProgressSilence without a progress update is assumed
// to be stuck behind a worker that lost its lease-extension side-task
// without crashing outright, and is force-released back to Queued
// ahead of its wall-clock ceiling. This does not touch Attempts; it is
// a delivery-layer compensation, not a render retry.
func (s *Supervisor) scanProgressSilence(ctx context.Context) {
	cutoff := time.Now().Add(-s.progressSilence)
	jobs, err := s.store.ScanStaleProgress(ctx, cutoff, s.scanLimit)
	if err != nil {
		s.log.Error("scan stale progress failed", "err", err)
		return
	}
	msg := "forced nack: progress silence watchdog"
	for _, j := range jobs {
		patch := &Patch{Message: &msg}
		if err := s.store.TransitionJob(ctx, j.Id, job.Running, job.Queued, patch); err != nil {
			if !errors.Is(err, ErrConflict) {
				s.log.Error("progress silence: transition to queued failed", "job_id", j.Id, "err", err)
			}
			continue
		}
		if s.recorder != nil {
			s.recorder.IncLeaseChurn("progress_silence")
		}
		s.log.Warn("forced nack on progress silence", "job_id", j.Id)
	}
}

// sweepPending implements spec §4.6 bullet 2: jobs stuck in Pending
// because Admission's enqueue failed after commit are re-enqueued.
func (s *Supervisor) sweepPending(ctx context.Context) {
	cutoff := time.Now().Add(-s.pendingAge)
	jobs, err := s.store.ScanPending(ctx, cutoff, s.scanLimit)
	if err != nil {
		s.log.Error("scan pending failed", "err", err)
		return
	}
	for _, j := range jobs {
		if err := s.store.TransitionJob(ctx, j.Id, job.Pending, job.Queued, &Patch{}); err != nil {
			if !errors.Is(err, ErrConflict) {
				s.log.Error("pending sweep: transition to queued failed", "job_id", j.Id, "err", err)
			}
			continue
		}
		if err := s.broker.Enqueue(ctx, j.Id, time.Time{}); err != nil {
			s.log.Warn("pending sweep: enqueue failed, will retry next tick", "job_id", j.Id, "err", err)
			continue
		}
		s.log.Info("swept pending job into queue", "job_id", j.Id)
	}
}

// scanRunningTimeouts implements spec §4.6 bullet 3: jobs whose
// wall-clock ceiling has elapsed are force-failed with
// error_kind=timeout, and any subscriber-observed cancel token is
// tripped best-effort.
func (s *Supervisor) scanRunningTimeouts(ctx context.Context) {
	cutoff := time.Now().Add(-s.wallClock)
	jobs, err := s.store.ScanRunning(ctx, cutoff, s.scanLimit)
	if err != nil {
		s.log.Error("scan running failed", "err", err)
		return
	}
	detail := "exceeded job wall-clock ceiling"
	now := time.Now()
	for _, j := range jobs {
		patch := &Patch{ErrorKind: job.ErrorKindTimeout, ErrorDetail: &detail, CompletedAt: &now}
		if err := s.store.TransitionJob(ctx, j.Id, job.Running, job.Failed, patch); err != nil {
			if !errors.Is(err, ErrConflict) {
				s.log.Error("timeout scan: transition to failed failed", "job_id", j.Id, "err", err)
			}
			continue
		}
		s.hub.Trip(j.Id)
		s.hub.Publish(j.Id, hub.TerminalEvent{Status: job.Failed, ErrorKind: job.ErrorKindTimeout, ErrorDetail: &detail})
		s.log.Warn("failed job on wall-clock timeout", "job_id", j.Id)
	}
}

// gcRetention implements spec §4.6 bullet 4: terminal jobs whose
// result artifact has aged past Retention have that artifact unlinked
// from disk; the job row itself remains as history.
func (s *Supervisor) gcRetention(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	jobs, err := s.store.ScanRetentionCandidates(ctx, cutoff, s.scanLimit)
	if err != nil {
		s.log.Error("scan retention candidates failed", "err", err)
		return
	}
	for _, j := range jobs {
		if j.ResultPath == nil {
			continue
		}
		if err := os.Remove(*j.ResultPath); err != nil && !os.IsNotExist(err) {
			s.log.Error("retention gc: unlink artifact failed", "job_id", j.Id, "path", *j.ResultPath, "err", err)
			continue
		}
		if err := s.store.ClearResultPath(ctx, j.Id); err != nil {
			s.log.Error("retention gc: clear result path failed", "job_id", j.Id, "err", err)
			continue
		}
		s.log.Info("retention gc unlinked artifact", "job_id", j.Id)
	}
}

// Start begins periodic execution of all five scan passes.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.tryStart(); err != nil {
		return err
	}
	s.task.Start(ctx, s.tick, s.interval)
	return nil
}

// Stop terminates the background scan loop, waiting up to timeout for
// the in-flight tick to finish.
func (s *Supervisor) Stop(timeout time.Duration) error {
	return s.tryStop(timeout, s.task.Stop)
}
