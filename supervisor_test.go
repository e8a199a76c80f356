package tonequeue_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/romanqed/tonequeue"
	"github.com/romanqed/tonequeue/credential"
	"github.com/romanqed/tonequeue/hub"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/metrics"
	"github.com/romanqed/tonequeue/shootout"
)

type fakeSupervisorStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*job.Job
}

func newFakeSupervisorStore() *fakeSupervisorStore {
	return &fakeSupervisorStore{jobs: make(map[uuid.UUID]*job.Job)}
}

func (s *fakeSupervisorStore) CreateShootoutAndJob(ctx context.Context, sh *shootout.Shootout, j *job.Job) error {
	return nil
}

func (s *fakeSupervisorStore) LoadJob(ctx context.Context, jobID uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, tonequeue.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *fakeSupervisorStore) LoadShootout(ctx context.Context, shootoutID uuid.UUID) (*shootout.Shootout, error) {
	return nil, tonequeue.ErrNotFound
}

func (s *fakeSupervisorStore) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, progress uint8, message string, expectedStatus job.Status) error {
	return nil
}

func (s *fakeSupervisorStore) TransitionJob(ctx context.Context, jobID uuid.UUID, from job.Status, to job.Status, patch *tonequeue.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return tonequeue.ErrNotFound
	}
	if j.Status != from {
		return tonequeue.ErrConflict
	}
	j.Status = to
	if patch != nil {
		if patch.Message != nil {
			j.Message = *patch.Message
		}
		if patch.ErrorKind != "" {
			j.ErrorKind = patch.ErrorKind
		}
		if patch.ErrorDetail != nil {
			j.ErrorDetail = patch.ErrorDetail
		}
		if patch.CompletedAt != nil {
			j.CompletedAt = patch.CompletedAt
		}
	}
	return nil
}

func (s *fakeSupervisorStore) ListJobs(ctx context.Context, ownerID string, filter tonequeue.JobFilter, page tonequeue.Page) (*tonequeue.JobPage, error) {
	return &tonequeue.JobPage{}, nil
}

func (s *fakeSupervisorStore) ScanPending(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if j.Status == job.Pending && !j.UpdatedAt.After(olderThan) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSupervisorStore) ScanRunning(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if j.Status == job.Running && j.StartedAt != nil && !j.StartedAt.After(olderThan) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSupervisorStore) CountJobsByStatus(ctx context.Context) (map[job.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[job.Status]int64)
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (s *fakeSupervisorStore) ScanStaleProgress(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if j.Status == job.Running && !j.UpdatedAt.After(olderThan) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSupervisorStore) ScanRetentionCandidates(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if j.Status.Terminal() && j.ResultPath != nil && j.CompletedAt != nil && !j.CompletedAt.After(olderThan) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSupervisorStore) ClearResultPath(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return tonequeue.ErrNotFound
	}
	j.ResultPath = nil
	return nil
}

func (s *fakeSupervisorStore) GetCredential(ctx context.Context, ownerID string) (*credential.Credential, error) {
	return nil, nil
}

func (s *fakeSupervisorStore) PutCredential(ctx context.Context, ownerID string, cred *credential.Credential) error {
	return nil
}

func (s *fakeSupervisorStore) DeleteCredential(ctx context.Context, ownerID string) error { return nil }

func (s *fakeSupervisorStore) snapshot(jobID uuid.UUID) *job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.jobs[jobID]
	return &cp
}

type fakeSupervisorBroker struct {
	mu         sync.Mutex
	expired    []uuid.UUID
	enqueued   []uuid.UUID
}

func (b *fakeSupervisorBroker) Enqueue(ctx context.Context, jobID uuid.UUID, notBefore time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueued = append(b.enqueued, jobID)
	return nil
}

func (b *fakeSupervisorBroker) Lease(ctx context.Context, workerID string, maxWait, lock time.Duration) (*tonequeue.Lease, error) {
	return nil, nil
}

func (b *fakeSupervisorBroker) Extend(ctx context.Context, lease *tonequeue.Lease, lock time.Duration) error {
	return nil
}

func (b *fakeSupervisorBroker) Ack(ctx context.Context, lease *tonequeue.Lease) error { return nil }

func (b *fakeSupervisorBroker) Nack(ctx context.Context, lease *tonequeue.Lease, delay time.Duration) error {
	return nil
}

func (b *fakeSupervisorBroker) ReapExpired(ctx context.Context) ([]uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.expired
	b.expired = nil
	return out, nil
}

func TestSupervisorReapsExpiredLeases(t *testing.T) {
	store := newFakeSupervisorStore()
	jobID := uuid.New()
	store.jobs[jobID] = &job.Job{Id: jobID, Status: job.Running, UpdatedAt: time.Now()}
	broker := &fakeSupervisorBroker{expired: []uuid.UUID{jobID}}
	h := hub.New(hub.Config{}, testLogger())

	sup := tonequeue.NewSupervisor(store, broker, h, &tonequeue.SupervisorConfig{Interval: 10 * time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(time.Second)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.snapshot(jobID).Status == job.Queued {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected job requeued, got %v", store.snapshot(jobID).Status)
}

func TestSupervisorSweepsPendingJobs(t *testing.T) {
	store := newFakeSupervisorStore()
	jobID := uuid.New()
	store.jobs[jobID] = &job.Job{Id: jobID, Status: job.Pending, UpdatedAt: time.Now().Add(-time.Hour)}
	broker := &fakeSupervisorBroker{}
	h := hub.New(hub.Config{}, testLogger())

	sup := tonequeue.NewSupervisor(store, broker, h, &tonequeue.SupervisorConfig{
		Interval:   10 * time.Millisecond,
		PendingAge: time.Minute,
	}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(time.Second)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.snapshot(jobID).Status == job.Queued {
			broker.mu.Lock()
			n := len(broker.enqueued)
			broker.mu.Unlock()
			if n == 1 {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected pending job swept into queue, got %v", store.snapshot(jobID).Status)
}

func TestSupervisorFailsTimedOutRunningJobs(t *testing.T) {
	store := newFakeSupervisorStore()
	jobID := uuid.New()
	started := time.Now().Add(-time.Hour)
	store.jobs[jobID] = &job.Job{Id: jobID, Status: job.Running, StartedAt: &started, UpdatedAt: time.Now()}
	broker := &fakeSupervisorBroker{}
	h := hub.New(hub.Config{}, testLogger())

	sup := tonequeue.NewSupervisor(store, broker, h, &tonequeue.SupervisorConfig{
		Interval:         10 * time.Millisecond,
		WallClockCeiling: time.Minute,
		ProgressSilence:  time.Hour,
	}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(time.Second)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		j := store.snapshot(jobID)
		if j.Status == job.Failed && j.ErrorKind == job.ErrorKindTimeout {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected job failed on timeout, got %v", store.snapshot(jobID).Status)
}

func TestSupervisorForceNacksProgressSilentJobs(t *testing.T) {
	store := newFakeSupervisorStore()
	jobID := uuid.New()
	started := time.Now().Add(-time.Minute)
	store.jobs[jobID] = &job.Job{
		Id:        jobID,
		Status:    job.Running,
		StartedAt: &started,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	broker := &fakeSupervisorBroker{}
	h := hub.New(hub.Config{}, testLogger())

	sup := tonequeue.NewSupervisor(store, broker, h, &tonequeue.SupervisorConfig{
		Interval:         10 * time.Millisecond,
		WallClockCeiling: time.Hour,
		ProgressSilence:  time.Minute,
	}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(time.Second)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.snapshot(jobID).Status == job.Queued {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected progress-silent job force-nacked, got %v", store.snapshot(jobID).Status)
}

func TestSupervisorReportsQueueDepthByStatus(t *testing.T) {
	store := newFakeSupervisorStore()
	store.jobs[uuid.New()] = &job.Job{Status: job.Queued, UpdatedAt: time.Now()}
	store.jobs[uuid.New()] = &job.Job{Status: job.Queued, UpdatedAt: time.Now()}
	store.jobs[uuid.New()] = &job.Job{Status: job.Running, UpdatedAt: time.Now()}
	broker := &fakeSupervisorBroker{}
	h := hub.New(hub.Config{}, testLogger())
	rec := metrics.NewRecorder()

	sup := tonequeue.NewSupervisor(store, broker, h, &tonequeue.SupervisorConfig{
		Interval: 10 * time.Millisecond,
		Recorder: rec,
	}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(time.Second)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest("GET", "/metrics", nil)
		w := httptest.NewRecorder()
		rec.Handler().ServeHTTP(w, req)
		body := w.Body.String()
		if strings.Contains(body, `tonequeue_queue_depth{status="queued"} 2`) &&
			strings.Contains(body, `tonequeue_queue_depth{status="running"} 1`) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected queue depth gauges to reflect job counts")
}

func TestSupervisorRetentionGCUnlinksArtifact(t *testing.T) {
	store := newFakeSupervisorStore()
	dir := t.TempDir()
	artifactPath := filepath.Join(dir, "out.wav")
	if err := os.WriteFile(artifactPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	jobID := uuid.New()
	completed := time.Now().Add(-30 * 24 * time.Hour)
	store.jobs[jobID] = &job.Job{
		Id:          jobID,
		Status:      job.Succeeded,
		ResultPath:  &artifactPath,
		CompletedAt: &completed,
	}
	broker := &fakeSupervisorBroker{}
	h := hub.New(hub.Config{}, testLogger())

	sup := tonequeue.NewSupervisor(store, broker, h, &tonequeue.SupervisorConfig{
		Interval:  10 * time.Millisecond,
		Retention: 14 * 24 * time.Hour,
	}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(time.Second)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.snapshot(jobID).ResultPath == nil {
			if _, err := os.Stat(artifactPath); !os.IsNotExist(err) {
				t.Fatalf("expected artifact file removed")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected result path cleared")
}
