package tonequeue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/romanqed/tonequeue/credential"
	"github.com/romanqed/tonequeue/hub"
	"github.com/romanqed/tonequeue/internal"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/metrics"
	"github.com/romanqed/tonequeue/modelcache"
	"github.com/romanqed/tonequeue/render"
	"github.com/romanqed/tonequeue/shootout"
)

// ModelResolver resolves a model or IR reference, for a given owner, to
// a local filesystem path, downloading and caching it on miss (spec
// §4.5 step 5). *modelcache.Cache satisfies this interface.
type ModelResolver interface {
	Resolve(ctx context.Context, ownerID, modelRef, bearer string) (path string, err error)
}

// WorkerConfig controls runtime behavior of a Worker (spec §4.5, §5).
type WorkerConfig struct {
	// Concurrency is the number of concurrent execution slots. Default
	// runtime.NumCPU()-1 (spec §5).
	Concurrency int

	// Queue is the internal buffering capacity between leasing jobs and
	// dispatching them to slots.
	Queue int

	// PullInterval controls how often the worker asks the Queue Broker
	// for a lease when idle (the pull side-loop's tick, not to be
	// confused with LeaseMaxWait, the server-side long-poll bound).
	PullInterval time.Duration

	// LeaseMaxWait bounds a single Broker.Lease call (spec §4.5 step 1).
	// No default is applied here; cmd/tonequeue-server passes 30s.
	LeaseMaxWait time.Duration

	// LockTimeout is the visibility timeout granted to each lease.
	LockTimeout time.Duration

	// ExtendInterval controls how often the lease-extension side-task
	// runs while a job renders (spec §4.5 step 7, default 20s).
	ExtendInterval time.Duration

	// WallClockCeiling bounds the total time a single render may run
	// (spec §4.5 step 7, §4.6). Zero disables the Worker-side ceiling;
	// cmd/tonequeue-server passes the configured JOB_WALL_CLOCK.
	WallClockCeiling time.Duration

	// MaxAttempts bounds job.Attempts before a transient failure
	// becomes terminal (spec §4.5 step 9, §7).
	MaxAttempts uint32

	Backoff BackoffConfig

	// Recorder records render duration and lease-churn counts, if
	// non-nil.
	Recorder *metrics.Recorder
}

// Worker runs N concurrent execution slots leasing jobs from the Queue
// Broker, resolving model artifacts, invoking the Render Engine, and
// reporting progress to the Durable Store and Progress Hub (spec
// §4.5).
type Worker struct {
	lcBase

	store  Store
	broker Broker
	creds  *credential.Service
	models ModelResolver
	engine render.Engine
	hub    *hub.Hub
	rec    *metrics.Recorder
	log    *slog.Logger

	pool     *internal.WorkerPool[*Lease]
	pullTask internal.TimerTask

	workerID       string
	pullInterval   time.Duration
	leaseMaxWait   time.Duration
	lockTimeout    time.Duration
	extendInterval time.Duration
	wallClock      time.Duration
	maxAttempts    uint32
	artifactsRoot  string
	backoff        backoffCounter
}

// NewWorker builds a Worker. artifactsRoot is the directory under which
// rendered output artifacts are written, one subdirectory per job.
func NewWorker(
	workerID string,
	store Store,
	broker Broker,
	creds *credential.Service,
	models ModelResolver,
	engine render.Engine,
	h *hub.Hub,
	artifactsRoot string,
	cfg *WorkerConfig,
	log *slog.Logger,
) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = max(runtime.NumCPU()-1, 1)
	}
	extendInterval := cfg.ExtendInterval
	if extendInterval <= 0 {
		extendInterval = 20 * time.Second
	}
	return &Worker{
		store:          store,
		broker:         broker,
		creds:          creds,
		models:         models,
		engine:         engine,
		hub:            h,
		rec:            cfg.Recorder,
		log:            log,
		pool:           internal.NewWorkerPool[*Lease](concurrency, cfg.Queue, log),
		workerID:       workerID,
		pullInterval:   cfg.PullInterval,
		leaseMaxWait:   cfg.LeaseMaxWait,
		lockTimeout:    cfg.LockTimeout,
		extendInterval: extendInterval,
		wallClock:      cfg.WallClockCeiling,
		maxAttempts:    cfg.MaxAttempts,
		artifactsRoot:  artifactsRoot,
		backoff:        backoffCounter{cfg.Backoff},
	}
}

func (w *Worker) pull(ctx context.Context) {
	lease, err := w.broker.Lease(ctx, w.workerID, w.leaseMaxWait, w.lockTimeout)
	if err != nil {
		w.log.Error("lease failed", "err", err)
		return
	}
	if lease == nil {
		return
	}
	if !w.pool.Push(lease) {
		w.log.Debug("lease push interrupted via shutdown", "job_id", lease.JobId)
	}
}

// handle implements one full pass of spec §4.5 steps 2-10 for a single
// leased job.
func (w *Worker) handle(ctx context.Context, lease *Lease) {
	j, err := w.store.LoadJob(ctx, lease.JobId)
	if err != nil {
		w.log.Error("load job failed", "job_id", lease.JobId, "err", err)
		return
	}

	// Step 2: stale delivery of an already-terminal job.
	if j.Status.Terminal() {
		if err := w.broker.Ack(ctx, lease); err != nil {
			w.log.Error("ack stale delivery failed", "job_id", j.Id, "err", err)
		}
		return
	}

	// Step 3: queued -> running CAS.
	now := time.Now()
	patch := &Patch{StartedAt: &now, IncrementAttempts: true}
	if err := w.store.TransitionJob(ctx, j.Id, job.Queued, job.Running, patch); err != nil {
		if errors.Is(err, ErrConflict) {
			if ackErr := w.broker.Ack(ctx, lease); ackErr != nil {
				w.log.Error("ack lost race failed", "job_id", j.Id, "err", ackErr)
			}
			return
		}
		w.log.Error("transition to running failed", "job_id", j.Id, "err", err)
		return
	}
	j.Status = job.Running
	j.Attempts++

	// Step 4: starting progress.
	w.reportProgress(ctx, j.Id, 0, "starting")

	hubCtx, tripCancel := context.WithCancel(ctx)
	defer tripCancel()
	go w.watchCancel(hubCtx, tripCancel, j.Id)

	deadlineCtx := hubCtx
	if w.wallClock > 0 {
		var wallCancel context.CancelFunc
		deadlineCtx, wallCancel = context.WithTimeout(hubCtx, w.wallClock)
		defer wallCancel()
	}

	shootoutRecord, err := w.store.LoadShootout(deadlineCtx, j.ShootoutId)
	if err != nil {
		w.failPermanent(ctx, lease, j, job.ErrorKindInternal, fmt.Sprintf("load shootout: %s", err))
		return
	}

	// Step 5: resolve external model artifacts.
	modelPaths, err := w.resolveModels(deadlineCtx, j.OwnerId, shootoutRecord)
	if err != nil {
		w.handleResolveFailure(ctx, lease, j, err)
		return
	}

	// Step 6-7: render with lease extension racing alongside.
	outDir := filepath.Join(w.artifactsRoot, j.Id.String())
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		w.failPermanent(ctx, lease, j, job.ErrorKindInternal, fmt.Sprintf("create output dir: %s", err))
		return
	}

	spec := &render.Spec{Shootout: shootoutRecord, ModelPaths: modelPaths, OutputDir: outDir}
	artifactPath, err := w.renderWithExtension(deadlineCtx, lease, j, spec)

	switch {
	case err == nil:
		w.handleSuccess(ctx, lease, j, artifactPath)
	case ctx.Err() != nil:
		// Worker shutdown: the job stays Running until its lease expires
		// and the Supervisor re-queues it.
		return
	case hubCtx.Err() != nil:
		// Step 10: user/operator cancellation tripped the hub's token.
		w.handleCancellation(ctx, lease, j)
	case errors.Is(deadlineCtx.Err(), context.DeadlineExceeded):
		w.failPermanent(ctx, lease, j, job.ErrorKindTimeout, "exceeded job wall-clock ceiling")
	default:
		w.handleRenderFailure(ctx, lease, j, err)
	}
}

func (w *Worker) watchCancel(ctx context.Context, cancel context.CancelFunc, jobID uuid.UUID) {
	select {
	case <-ctx.Done():
	case <-w.hub.CancelToken(jobID).Done():
		cancel()
	}
}

func (w *Worker) resolveModels(ctx context.Context, ownerID string, s *shootout.Shootout) (map[string]string, error) {
	refs := s.ModelReferences()
	if len(refs) == 0 {
		return nil, nil
	}
	bearer, err := w.creds.BearerFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(refs))
	for _, ref := range refs {
		p, err := w.models.Resolve(ctx, ownerID, ref, bearer)
		if err != nil {
			return nil, err
		}
		paths[ref] = p
	}
	return paths, nil
}

func (w *Worker) handleResolveFailure(ctx context.Context, lease *Lease, j *job.Job, err error) {
	switch {
	case errors.Is(err, credential.ErrPermanent):
		w.failPermanent(ctx, lease, j, job.ErrorKindAuth, err.Error())
	case errors.Is(err, credential.ErrTransient):
		w.retryResolveTransient(ctx, lease, j)
	case errors.Is(err, modelcache.ErrPermanent):
		w.failPermanent(ctx, lease, j, job.ErrorKindModelFetch, err.Error())
	case errors.Is(err, modelcache.ErrTransient):
		w.retryResolveTransient(ctx, lease, j)
	default:
		w.failPermanent(ctx, lease, j, job.ErrorKindInternal, err.Error())
	}
}

// retryResolveTransient implements spec §4.5 step 5's transient-failure
// path: nack(lease) and release running->queued, compensating the
// step-3 attempts++ with a matching decrement so a flaky credential or
// model registry never consumes the render-retry budget. Unlike
// retryTransient, this path never terminal-fails on attempt count.
func (w *Worker) retryResolveTransient(ctx context.Context, lease *Lease, j *job.Job) {
	delay := w.backoff.delay(j.Attempts)
	nextRun := time.Now().Add(delay)
	progress := uint8(0)
	patch := &Patch{Progress: &progress, NextRunAt: &nextRun, DecrementAttempts: true}
	if err := w.store.TransitionJob(ctx, j.Id, job.Running, job.Queued, patch); err != nil {
		w.log.Error("transition to queued (resolve retry) failed", "job_id", j.Id, "err", err)
		return
	}
	if err := w.broker.Nack(ctx, lease, delay); err != nil {
		w.log.Error("nack failed", "job_id", j.Id, "err", err)
	}
	w.recordLeaseChurn("nacked")
}

// renderWithExtension invokes the Render Engine while a side goroutine
// extends the lease every ExtendInterval (spec §4.5 steps 6-7).
func (w *Worker) renderWithExtension(ctx context.Context, lease *Lease, j *job.Job, spec *render.Spec) (string, error) {
	type result struct {
		path string
		err  error
	}
	resultCh := make(chan result, 1)
	started := time.Now()
	go func() {
		progress := func(pct uint8, msg string) {
			w.reportProgress(context.WithoutCancel(ctx), j.Id, pct, msg)
		}
		path, err := w.engine.Render(ctx, spec, progress)
		if w.rec != nil {
			w.rec.ObserveRenderDuration(time.Since(started).Seconds())
		}
		resultCh <- result{path: path, err: err}
	}()

	ticker := time.NewTicker(w.extendInterval)
	defer ticker.Stop()
	for {
		select {
		case res := <-resultCh:
			return res.path, res.err
		case <-ticker.C:
			if err := w.broker.Extend(context.WithoutCancel(ctx), lease, w.lockTimeout); err != nil {
				w.log.Warn("lease extend failed", "job_id", j.Id, "err", err)
			}
		}
	}
}

func (w *Worker) reportProgress(ctx context.Context, jobID uuid.UUID, pct uint8, msg string) {
	if err := w.store.UpdateJobProgress(ctx, jobID, pct, msg, job.Running); err != nil {
		w.log.Warn("update job progress failed", "job_id", jobID, "err", err)
	}
	w.hub.Publish(jobID, hub.ProgressEvent{Pct: pct, Msg: msg})
}

func (w *Worker) handleSuccess(ctx context.Context, lease *Lease, j *job.Job, artifactPath string) {
	completed := time.Now()
	progress := uint8(100)
	patch := &Patch{ResultPath: &artifactPath, Progress: &progress, CompletedAt: &completed}
	if err := w.store.TransitionJob(ctx, j.Id, job.Running, job.Succeeded, patch); err != nil {
		w.log.Error("transition to succeeded failed", "job_id", j.Id, "err", err)
		return
	}
	if err := w.broker.Ack(ctx, lease); err != nil {
		w.log.Error("ack success failed", "job_id", j.Id, "err", err)
	}
	w.recordLeaseChurn("acked")
	w.hub.Publish(j.Id, hub.TerminalEvent{Status: job.Succeeded, ResultPath: &artifactPath})
}

func (w *Worker) handleCancellation(ctx context.Context, lease *Lease, j *job.Job) {
	patch := &Patch{ErrorKind: job.ErrorKindCancelled}
	if err := w.store.TransitionJob(ctx, j.Id, job.Running, job.Cancelled, patch); err != nil {
		w.log.Error("transition to cancelled failed", "job_id", j.Id, "err", err)
		return
	}
	if err := w.broker.Ack(ctx, lease); err != nil {
		w.log.Error("ack cancellation failed", "job_id", j.Id, "err", err)
	}
	w.recordLeaseChurn("acked")
	w.hub.Publish(j.Id, hub.TerminalEvent{Status: job.Cancelled, ErrorKind: job.ErrorKindCancelled})
}

// retryTransient implements spec §4.5 step 9's transient-failure path:
// release running->queued, reset progress, and nack the lease with
// backoff; exhausted attempts become terminal. Resolution-stage
// failures (step 5) go through retryResolveTransient instead, which
// does not consume the attempt budget.
func (w *Worker) retryTransient(ctx context.Context, lease *Lease, j *job.Job, cause error) {
	delay, ok := w.backoff.next(j.Attempts)
	if !ok || j.Attempts >= w.maxAttempts {
		w.failPermanent(ctx, lease, j, classifyErrorKind(cause), cause.Error())
		return
	}
	nextRun := time.Now().Add(delay)
	progress := uint8(0)
	patch := &Patch{Progress: &progress, NextRunAt: &nextRun}
	if err := w.store.TransitionJob(ctx, j.Id, job.Running, job.Queued, patch); err != nil {
		w.log.Error("transition to queued (retry) failed", "job_id", j.Id, "err", err)
		return
	}
	if err := w.broker.Nack(ctx, lease, delay); err != nil {
		w.log.Error("nack failed", "job_id", j.Id, "err", err)
	}
	w.recordLeaseChurn("nacked")
}

// handleRenderFailure implements spec §4.5 step 9.
func (w *Worker) handleRenderFailure(ctx context.Context, lease *Lease, j *job.Job, err error) {
	if errors.Is(err, render.ErrPermanent) {
		w.failPermanent(ctx, lease, j, job.ErrorKindRender, err.Error())
		return
	}
	w.retryTransient(ctx, lease, j, err)
}

func (w *Worker) failPermanent(ctx context.Context, lease *Lease, j *job.Job, kind job.ErrorKind, detail string) {
	completed := time.Now()
	patch := &Patch{ErrorKind: kind, ErrorDetail: &detail, CompletedAt: &completed}
	if err := w.store.TransitionJob(ctx, j.Id, job.Running, job.Failed, patch); err != nil {
		w.log.Error("transition to failed failed", "job_id", j.Id, "err", err)
		return
	}
	if err := w.broker.Ack(ctx, lease); err != nil {
		w.log.Error("ack failure failed", "job_id", j.Id, "err", err)
	}
	w.recordLeaseChurn("acked")
	w.hub.Publish(j.Id, hub.TerminalEvent{Status: job.Failed, ErrorKind: kind, ErrorDetail: &detail})
}

func (w *Worker) recordLeaseChurn(result string) {
	if w.rec != nil {
		w.rec.IncLeaseChurn(result)
	}
}

func classifyErrorKind(err error) job.ErrorKind {
	switch {
	case errors.Is(err, credential.ErrTransient), errors.Is(err, credential.ErrPermanent):
		return job.ErrorKindAuth
	case errors.Is(err, modelcache.ErrTransient), errors.Is(err, modelcache.ErrPermanent):
		return job.ErrorKindModelFetch
	case errors.Is(err, context.DeadlineExceeded):
		return job.ErrorKindTimeout
	case errors.Is(err, render.ErrTransient):
		return job.ErrorKindRender
	default:
		return job.ErrorKindInternal
	}
}

// Start begins background leasing and processing of jobs.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.tryStart(); err != nil {
		return err
	}
	w.pool.Start(ctx, w.handle)
	w.pullTask.Start(ctx, w.pull, w.pullInterval)
	return nil
}

func (w *Worker) doStop() internal.DoneChan {
	first := w.pullTask.Stop()
	second := w.pool.Stop()
	return internal.Combine(first, second)
}

// Stop initiates graceful shutdown of the worker, waiting up to timeout
// for in-flight handlers to complete.
func (w *Worker) Stop(timeout time.Duration) error {
	return w.tryStop(timeout, w.doStop)
}
