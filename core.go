package tonequeue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/romanqed/tonequeue/admission"
	"github.com/romanqed/tonequeue/credential"
	"github.com/romanqed/tonequeue/hub"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/shootout"
)

// Core implements the six public operations spec.md §4.8 exposes to
// the HTTP front door. It is framework-agnostic and callable directly
// from tests without a web server.
//
// Authorization is enforced on every call that references an existing
// job: the job's OwnerId must equal the caller-supplied ownerID, or
// ErrForbidden is returned. A missing job yields ErrNotFound before the
// ownership check runs.
type Core struct {
	store     Store
	admission *admission.Service
	hub       *hub.Hub
	creds     *credential.Service
	log       *slog.Logger
}

// NewCore builds a Core.
func NewCore(store Store, admissionSvc *admission.Service, h *hub.Hub, creds *credential.Service, log *slog.Logger) *Core {
	if log == nil {
		log = slog.Default()
	}
	return &Core{store: store, admission: admissionSvc, hub: h, creds: creds, log: log}
}

// SubmitShootout validates and admits a new shootout draft, returning
// the created job's id.
func (c *Core) SubmitShootout(ctx context.Context, ownerID string, draft *shootout.Draft) (uuid.UUID, error) {
	return c.admission.SubmitShootout(ctx, ownerID, draft)
}

// GetJob returns jobID if it exists and is owned by ownerID.
func (c *Core) GetJob(ctx context.Context, ownerID string, jobID uuid.UUID) (*job.Job, error) {
	j, err := c.store.LoadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.OwnerId != ownerID {
		return nil, ErrForbidden
	}
	return j, nil
}

// ListJobs returns a page of ownerID's jobs matching filter.
func (c *Core) ListJobs(ctx context.Context, ownerID string, filter JobFilter, page Page) (*JobPage, error) {
	return c.store.ListJobs(ctx, ownerID, filter, page)
}

// CancelJob requests cancellation of jobID. It trips the job's
// cancellation token on the Progress Hub so that an in-flight Worker
// observes it promptly; if the job has not yet started running, the
// transition to Cancelled happens immediately here instead.
func (c *Core) CancelJob(ctx context.Context, ownerID string, jobID uuid.UUID) error {
	j, err := c.store.LoadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.OwnerId != ownerID {
		return ErrForbidden
	}
	if j.Status.Terminal() {
		return ErrConflict
	}

	switch j.Status {
	case job.Pending, job.Queued:
		patch := &Patch{ErrorKind: job.ErrorKindCancelled}
		if err := c.store.TransitionJob(ctx, jobID, j.Status, job.Cancelled, patch); err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}
		c.hub.Publish(jobID, hub.TerminalEvent{Status: job.Cancelled, ErrorKind: job.ErrorKindCancelled})
		c.hub.Forget(jobID)
		return nil
	case job.Running:
		c.hub.Trip(jobID)
		return nil
	default:
		return ErrConflict
	}
}

// SubscribeJob attaches the caller to jobID's live event stream,
// seeded with its current snapshot from the Durable Store so the
// caller never misses the current state.
func (c *Core) SubscribeJob(ctx context.Context, ownerID string, jobID uuid.UUID) (*hub.Subscription, error) {
	j, err := c.store.LoadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.OwnerId != ownerID {
		return nil, ErrForbidden
	}
	return c.hub.Subscribe(jobID, j.ToSnapshot()), nil
}

// StoreCredential upserts ownerID's credential, used by the Worker
// Lease Loop to fetch model artifacts on their behalf.
func (c *Core) StoreCredential(ctx context.Context, ownerID string, refreshToken string) error {
	cred := &credential.Credential{
		OwnerId:      ownerID,
		RefreshToken: refreshToken,
		RefreshedAt:  time.Now(),
	}
	return c.store.PutCredential(ctx, ownerID, cred)
}

// RevokeCredential removes ownerID's stored credential and forgets any
// single-flight refresh state held for it.
func (c *Core) RevokeCredential(ctx context.Context, ownerID string) error {
	if err := c.store.DeleteCredential(ctx, ownerID); err != nil {
		return err
	}
	c.creds.Revoke(ownerID)
	return nil
}
