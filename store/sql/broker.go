package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/romanqed/tonequeue"
	"github.com/romanqed/tonequeue/job"
)

// Broker implements tonequeue.Broker over the same jobs table Store
// uses. It owns the lease_token and lease_deadline columns; Store
// owns status, progress and the terminal/audit fields. Lease performs
// a single atomic UPDATE ... WHERE status = queued AND (no current
// lease) RETURNING id, so two Broker instances racing to lease the
// same row never both win, mirroring the teacher's Pull semantics.
type Broker struct {
	db       *bun.DB
	pollStep time.Duration
}

// NewBroker builds a Broker. db must already have had InitDB run
// against it, and is typically the same *bun.DB passed to NewStore.
func NewBroker(db *bun.DB) *Broker {
	return &Broker{db: db, pollStep: 200 * time.Millisecond}
}

func (b *Broker) Enqueue(ctx context.Context, jobID uuid.UUID, notBefore time.Time) error {
	if notBefore.IsZero() {
		notBefore = time.Now()
	}
	_, err := b.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("next_run_at = ?", notBefore).
		Set("lease_token = NULL").
		Set("lease_deadline = NULL").
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: enqueue: %s", tonequeue.ErrBrokerUnavailable, err)
	}
	return nil
}

func (b *Broker) Lease(ctx context.Context, workerID string, maxWait time.Duration, lock time.Duration) (*tonequeue.Lease, error) {
	deadline := time.Now().Add(maxWait)
	for {
		lease, err := b.tryLease(ctx, workerID, lock)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.pollStep):
		}
	}
}

func (b *Broker) tryLease(ctx context.Context, workerID string, lock time.Duration) (*tonequeue.Lease, error) {
	now := time.Now()
	token := fmt.Sprintf("%s:%s", workerID, uuid.New())
	leaseDeadline := now.Add(lock)

	subQuery := b.db.NewSelect().
		Model((*jobModel)(nil)).
		Column("id").
		Where("status = ?", job.Queued).
		Where("next_run_at <= ?", now).
		WhereGroup("AND", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("lease_deadline IS NULL").
				WhereOr("lease_deadline < ?", now)
		}).
		Order("next_run_at ASC").
		Limit(1)

	var ids []uuid.UUID
	err := b.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("lease_token = ?", token).
		Set("lease_deadline = ?", leaseDeadline).
		Where("id IN (?)", subQuery).
		Returning("id").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("%w: lease: %s", tonequeue.ErrBrokerUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &tonequeue.Lease{JobId: ids[0], Token: token, Deadline: leaseDeadline}, nil
}

func (b *Broker) Extend(ctx context.Context, lease *tonequeue.Lease, lock time.Duration) error {
	newDeadline := time.Now().Add(lock)
	res, err := b.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("lease_deadline = ?", newDeadline).
		Where("id = ?", lease.JobId).
		Where("lease_token = ?", lease.Token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: extend: %s", tonequeue.ErrBrokerUnavailable, err)
	}
	if !isAffected(res) {
		return tonequeue.ErrLockLost
	}
	lease.Deadline = newDeadline
	return nil
}

func (b *Broker) Ack(ctx context.Context, lease *tonequeue.Lease) error {
	_, err := b.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("lease_token = NULL").
		Set("lease_deadline = NULL").
		Where("id = ?", lease.JobId).
		Where("lease_token = ?", lease.Token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: ack: %s", tonequeue.ErrBrokerUnavailable, err)
	}
	return nil
}

func (b *Broker) Nack(ctx context.Context, lease *tonequeue.Lease, delay time.Duration) error {
	res, err := b.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("lease_token = NULL").
		Set("lease_deadline = NULL").
		Set("next_run_at = ?", time.Now().Add(delay)).
		Where("id = ?", lease.JobId).
		Where("(lease_token = ? OR lease_token IS NULL)", lease.Token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: nack: %s", tonequeue.ErrBrokerUnavailable, err)
	}
	if !isAffected(res) {
		return tonequeue.ErrLockLost
	}
	return nil
}

func (b *Broker) ReapExpired(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := b.db.NewSelect().
		Model((*jobModel)(nil)).
		Column("id").
		Where("status = ?", job.Running).
		Where("lease_deadline IS NOT NULL").
		Where("lease_deadline < ?", time.Now()).
		Scan(ctx, &ids)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reap expired: %s", tonequeue.ErrBrokerUnavailable, err)
	}
	return ids, nil
}
