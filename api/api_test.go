package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/romanqed/tonequeue"
	"github.com/romanqed/tonequeue/admission"
	"github.com/romanqed/tonequeue/api"
	"github.com/romanqed/tonequeue/credential"
	"github.com/romanqed/tonequeue/hub"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/shootout"
)

type fakeStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*job.Job
	shootouts   map[uuid.UUID]*shootout.Shootout
	credentials map[string]*credential.Credential
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:        make(map[uuid.UUID]*job.Job),
		shootouts:   make(map[uuid.UUID]*shootout.Shootout),
		credentials: make(map[string]*credential.Credential),
	}
}

func (s *fakeStore) CreateShootoutAndJob(ctx context.Context, sh *shootout.Shootout, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shootouts[sh.Id] = sh
	s.jobs[j.Id] = j
	return nil
}

func (s *fakeStore) LoadJob(ctx context.Context, jobID uuid.UUID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, tonequeue.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) LoadShootout(ctx context.Context, shootoutID uuid.UUID) (*shootout.Shootout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shootouts[shootoutID]
	if !ok {
		return nil, tonequeue.ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

func (s *fakeStore) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, progress uint8, message string, expectedStatus job.Status) error {
	return nil
}

func (s *fakeStore) TransitionJob(ctx context.Context, jobID uuid.UUID, from job.Status, to job.Status, patch *tonequeue.Patch) error {
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
		if patch.ErrorKind != "" {
			j.ErrorKind = patch.ErrorKind
		}
	}
	return nil
}

func (s *fakeStore) ListJobs(ctx context.Context, ownerID string, filter tonequeue.JobFilter, page tonequeue.Page) (*tonequeue.JobPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*job.Job
	for _, j := range s.jobs {
		if j.OwnerId != ownerID {
			continue
		}
		if filter.Status != job.Unknown && j.Status != filter.Status {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}
	return &tonequeue.JobPage{Jobs: matched, Total: int64(len(matched))}, nil
}

func (s *fakeStore) ScanPending(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	return nil, nil
}

func (s *fakeStore) ScanRunning(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	return nil, nil
}

func (s *fakeStore) CountJobsByStatus(ctx context.Context) (map[job.Status]int64, error) {
	return nil, nil
}

func (s *fakeStore) ScanRetentionCandidates(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	return nil, nil
}

func (s *fakeStore) ScanStaleProgress(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	return nil, nil
}

func (s *fakeStore) ClearResultPath(ctx context.Context, jobID uuid.UUID) error {
	return nil
}

func (s *fakeStore) GetCredential(ctx context.Context, ownerID string) (*credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[ownerID]
	if !ok {
		return nil, nil
	}
	cp := *cred
	return &cp, nil
}

func (s *fakeStore) PutCredential(ctx context.Context, ownerID string, cred *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[ownerID] = cred
	return nil
}

func (s *fakeStore) DeleteCredential(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, ownerID)
	return nil
}

type fakeBroker struct{}

func (fakeBroker) Enqueue(ctx context.Context, jobID uuid.UUID, notBefore time.Time) error {
	return nil
}

func (fakeBroker) Lease(ctx context.Context, workerID string, maxWait time.Duration, lock time.Duration) (*tonequeue.Lease, error) {
	return nil, nil
}

func (fakeBroker) Extend(ctx context.Context, lease *tonequeue.Lease, lock time.Duration) error {
	return nil
}

func (fakeBroker) Ack(ctx context.Context, lease *tonequeue.Lease) error {
	return nil
}

func (fakeBroker) Nack(ctx context.Context, lease *tonequeue.Lease, delay time.Duration) error {
	return nil
}

func (fakeBroker) ReapExpired(ctx context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeRefresher struct{}

func (fakeRefresher) Refresh(ctx context.Context, ownerID string, refreshToken string) (*credential.RefreshedToken, error) {
	return nil, credential.ErrPermanent
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	broker := fakeBroker{}
	admissionSvc := admission.New(store, broker, testLogger())
	h := hub.New(hub.Config{}, testLogger())
	creds := credential.NewService(store, fakeRefresher{}, credential.ServiceConfig{}, testLogger())
	core := tonequeue.NewCore(store, admissionSvc, h, creds, testLogger())
	srv := api.NewServer(core, testLogger())
	ts := httptest.NewServer(srv.Router(nil))
	t.Cleanup(ts.Close)
	return ts, store
}

func validDraft() shootout.Draft {
	return shootout.Draft{
		Title:    "A",
		DITracks: []shootout.DITrack{{Path: "u/1.wav"}},
		SignalChains: []shootout.SignalChainDraft{
			{
				Name: "c",
				Stages: []shootout.StageDraft{
					{Kind: "model", Parameter: "m1"},
					{Kind: "ir", Parameter: "i1"},
				},
			},
		},
	}
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, owner string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if owner != "" {
		req.Header.Set("X-Owner-Id", owner)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doRequest(t, ts, http.MethodGet, "/healthz", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSubmitShootoutRequiresOwner(t *testing.T) {
	ts, _ := newTestServer(t)
	draft := validDraft()
	resp := doRequest(t, ts, http.MethodPost, "/shootouts/", "", draft)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSubmitShootoutThenGetJob(t *testing.T) {
	ts, _ := newTestServer(t)
	draft := validDraft()
	resp := doRequest(t, ts, http.MethodPost, "/shootouts/", "owner-1", draft)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var submitted struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.JobID == "" {
		t.Fatal("expected non-empty job id")
	}

	getResp := doRequest(t, ts, http.MethodGet, "/jobs/"+submitted.JobID+"/", "owner-1", nil)
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", getResp.StatusCode)
	}
	var view struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Status != "queued" {
		t.Fatalf("status = %q, want queued", view.Status)
	}
}

func TestSubmitShootoutInvalidReturnsFieldReason(t *testing.T) {
	ts, _ := newTestServer(t)
	draft := shootout.Draft{}
	resp := doRequest(t, ts, http.MethodPost, "/shootouts/", "owner-1", draft)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body struct {
		Field  string `json:"field"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Field == "" || body.Reason == "" {
		t.Fatalf("expected field/reason in body, got %+v", body)
	}
}

func TestGetJobForbidsOtherOwner(t *testing.T) {
	ts, _ := newTestServer(t)
	draft := validDraft()
	resp := doRequest(t, ts, http.MethodPost, "/shootouts/", "owner-1", draft)
	var submitted struct {
		JobID string `json:"job_id"`
	}
	json.NewDecoder(resp.Body).Decode(&submitted)
	resp.Body.Close()

	getResp := doRequest(t, ts, http.MethodGet, "/jobs/"+submitted.JobID+"/", "owner-2", nil)
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", getResp.StatusCode)
	}
}

func TestCancelJobThenConflictOnSecondCall(t *testing.T) {
	ts, _ := newTestServer(t)
	draft := validDraft()
	resp := doRequest(t, ts, http.MethodPost, "/shootouts/", "owner-1", draft)
	var submitted struct {
		JobID string `json:"job_id"`
	}
	json.NewDecoder(resp.Body).Decode(&submitted)
	resp.Body.Close()

	first := doRequest(t, ts, http.MethodPost, "/jobs/"+submitted.JobID+"/cancel", "owner-1", nil)
	first.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", first.StatusCode)
	}

	second := doRequest(t, ts, http.MethodPost, "/jobs/"+submitted.JobID+"/cancel", "owner-1", nil)
	second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", second.StatusCode)
	}
}

func TestStoreAndRevokeCredential(t *testing.T) {
	ts, store := newTestServer(t)
	body := map[string]string{"refresh_token": "refresh-abc"}
	resp := doRequest(t, ts, http.MethodPut, "/credentials/", "owner-1", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	cred, err := store.GetCredential(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if cred == nil || cred.RefreshToken != "refresh-abc" {
		t.Fatalf("credential not persisted: %+v", cred)
	}

	del := doRequest(t, ts, http.MethodDelete, "/credentials/", "owner-1", nil)
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", del.StatusCode)
	}
	cred, err = store.GetCredential(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if cred != nil {
		t.Fatalf("expected credential revoked, got %+v", cred)
	}
}

func TestSubscribeJobDeliversSnapshotThenTerminal(t *testing.T) {
	ts, _ := newTestServer(t)
	draft := validDraft()
	resp := doRequest(t, ts, http.MethodPost, "/shootouts/", "owner-1", draft)
	var submitted struct {
		JobID string `json:"job_id"`
	}
	json.NewDecoder(resp.Body).Decode(&submitted)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/jobs/"+submitted.JobID+"/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Owner-Id", "owner-1")
	streamResp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer streamResp.Body.Close()
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", streamResp.StatusCode)
	}
	if ct := streamResp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(streamResp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read event line: %v", err)
	}
	if line != "event: snapshot\n" {
		t.Fatalf("first frame = %q, want snapshot", line)
	}

	cancelResp := doRequest(t, ts, http.MethodPost, "/jobs/"+submitted.JobID+"/cancel", "owner-1", nil)
	cancelResp.Body.Close()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event line: %v", err)
		}
		if line == "event: terminal\n" {
			break
		}
	}
}
