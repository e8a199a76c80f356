package sql_test

import (
	"testing"
	"time"

	"github.com/romanqed/tonequeue"
	"github.com/romanqed/tonequeue/job"
	tsql "github.com/romanqed/tonequeue/store/sql"
)

func TestBrokerLeaseThenReapExpired(t *testing.T) {
	db := newTestDB(t)
	store := tsql.NewStore(db)
	broker := tsql.NewBroker(db)
	ctx := t.Context()

	sh, j := newFixture("owner-1")
	if err := store.CreateShootoutAndJob(ctx, sh, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	lease, err := broker.Lease(ctx, "worker-1", time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if lease == nil || lease.JobId != j.Id {
		t.Fatalf("unexpected lease: %+v", lease)
	}

	if err := store.TransitionJob(ctx, j.Id, job.Queued, job.Running, &tonequeue.Patch{}); err != nil {
		t.Fatalf("transition to running: %v", err)
	}

	second, err := broker.Lease(ctx, "worker-2", 50*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if second != nil {
		t.Fatalf("expected no job eligible for a second lease, got %+v", second)
	}

	time.Sleep(20 * time.Millisecond)
	expired, err := broker.ReapExpired(ctx)
	if err != nil {
		t.Fatalf("reap expired: %v", err)
	}
	if len(expired) != 1 || expired[0] != j.Id {
		t.Fatalf("unexpected reap result: %+v", expired)
	}
}

func TestBrokerAckClearsLease(t *testing.T) {
	db := newTestDB(t)
	store := tsql.NewStore(db)
	broker := tsql.NewBroker(db)
	ctx := t.Context()

	sh, j := newFixture("owner-1")
	if err := store.CreateShootoutAndJob(ctx, sh, j); err != nil {
		t.Fatalf("create: %v", err)
	}
	lease, err := broker.Lease(ctx, "worker-1", time.Second, time.Minute)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if lease == nil {
		t.Fatal("expected a lease")
	}
	if err := store.TransitionJob(ctx, j.Id, job.Queued, job.Running, &tonequeue.Patch{}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	resultPath := "/artifacts/out.mp4"
	progress := uint8(100)
	now := time.Now()
	patch := &tonequeue.Patch{Progress: &progress, ResultPath: &resultPath, CompletedAt: &now}
	if err := store.TransitionJob(ctx, j.Id, job.Running, job.Succeeded, patch); err != nil {
		t.Fatalf("transition to succeeded: %v", err)
	}
	if err := broker.Ack(ctx, lease); err != nil {
		t.Fatalf("ack: %v", err)
	}

	expired, err := broker.ReapExpired(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expected no reapable jobs after ack+succeed, got %+v", expired)
	}
}

func TestBrokerNackReschedulesAndClearsLease(t *testing.T) {
	db := newTestDB(t)
	store := tsql.NewStore(db)
	broker := tsql.NewBroker(db)
	ctx := t.Context()

	sh, j := newFixture("owner-1")
	if err := store.CreateShootoutAndJob(ctx, sh, j); err != nil {
		t.Fatalf("create: %v", err)
	}
	lease, err := broker.Lease(ctx, "worker-1", time.Second, time.Minute)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if err := store.TransitionJob(ctx, j.Id, job.Queued, job.Running, &tonequeue.Patch{}); err != nil {
		t.Fatalf("transition to running: %v", err)
	}
	if err := store.TransitionJob(ctx, j.Id, job.Running, job.Queued, &tonequeue.Patch{}); err != nil {
		t.Fatalf("transition back to queued: %v", err)
	}
	if err := broker.Nack(ctx, lease, 0); err != nil {
		t.Fatalf("nack: %v", err)
	}

	second, err := broker.Lease(ctx, "worker-2", time.Second, time.Minute)
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if second == nil || second.JobId != j.Id {
		t.Fatalf("expected job to be re-leasable after nack, got %+v", second)
	}
}

func TestBrokerEnqueueSetsNextRunAt(t *testing.T) {
	db := newTestDB(t)
	store := tsql.NewStore(db)
	broker := tsql.NewBroker(db)
	ctx := t.Context()

	sh, j := newFixture("owner-1")
	j.NextRunAt = time.Now().Add(time.Hour)
	if err := store.CreateShootoutAndJob(ctx, sh, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	none, err := broker.Lease(ctx, "worker-1", 30*time.Millisecond, time.Minute)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no eligible job before enqueue, got %+v", none)
	}

	if err := broker.Enqueue(ctx, j.Id, time.Time{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	lease, err := broker.Lease(ctx, "worker-1", time.Second, time.Minute)
	if err != nil {
		t.Fatalf("lease after enqueue: %v", err)
	}
	if lease == nil || lease.JobId != j.Id {
		t.Fatalf("expected job eligible after enqueue, got %+v", lease)
	}
}
