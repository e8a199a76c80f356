package sql

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/romanqed/tonequeue"
	"github.com/romanqed/tonequeue/credential"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/shootout"
)

// Store implements tonequeue.Store using a bun-backed SQL database.
//
// Transitions use UPDATE ... WHERE status = ? compare-and-set guards,
// the same pattern the in-process jobModel used, extended across the
// richer Status/Patch vocabulary.
type Store struct {
	db *bun.DB
}

// NewStore builds a Store. db must already have had InitDB run
// against it.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateShootoutAndJob(ctx context.Context, sh *shootout.Shootout, j *job.Job) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(fromShootout(sh)).Exec(ctx); err != nil {
			return fmt.Errorf("%w: insert shootout: %s", tonequeue.ErrStorageUnavailable, err)
		}
		if _, err := tx.NewInsert().Model(fromJob(j)).Exec(ctx); err != nil {
			return fmt.Errorf("%w: insert job: %s", tonequeue.ErrStorageUnavailable, err)
		}
		return nil
	})
}

func (s *Store) LoadJob(ctx context.Context, jobID uuid.UUID) (*job.Job, error) {
	var jm jobModel
	err := s.db.NewSelect().Model(&jm).Where("id = ?", jobID).Scan(ctx)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, tonequeue.ErrNotFound
		}
		return nil, fmt.Errorf("%w: load job: %s", tonequeue.ErrStorageUnavailable, err)
	}
	return jm.toJob(), nil
}

func (s *Store) LoadShootout(ctx context.Context, shootoutID uuid.UUID) (*shootout.Shootout, error) {
	var sm shootoutModel
	err := s.db.NewSelect().Model(&sm).Where("id = ?", shootoutID).Scan(ctx)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, tonequeue.ErrNotFound
		}
		return nil, fmt.Errorf("%w: load shootout: %s", tonequeue.ErrStorageUnavailable, err)
	}
	return sm.toShootout(), nil
}

func (s *Store) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, progress uint8, message string, expectedStatus job.Status) error {
	if expectedStatus.Terminal() {
		return nil
	}
	now := time.Now()
	res, err := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("progress = ?", progress).
		Set("message = ?", message).
		Set("updated_at = ?", now).
		Where("id = ?", jobID).
		Where("status = ?", expectedStatus).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: update progress: %s", tonequeue.ErrStorageUnavailable, err)
	}
	if isAffected(res) {
		return nil
	}
	current, err := s.LoadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return nil
	}
	return tonequeue.ErrConflict
}

func (s *Store) TransitionJob(ctx context.Context, jobID uuid.UUID, from job.Status, to job.Status, patch *tonequeue.Patch) error {
	if from.Terminal() {
		return tonequeue.ErrConflict
	}
	if patch == nil {
		patch = &tonequeue.Patch{}
	}
	now := time.Now()
	q := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", jobID).
		Where("status = ?", from)

	if patch.Progress != nil {
		q.Set("progress = ?", *patch.Progress)
	}
	if patch.Message != nil {
		q.Set("message = ?", *patch.Message)
	}
	if patch.ResultPath != nil {
		q.Set("result_path = ?", *patch.ResultPath)
	}
	if patch.ErrorKind != job.ErrorKindNone {
		q.Set("error_kind = ?", patch.ErrorKind)
	}
	if patch.ErrorDetail != nil {
		q.Set("error_detail = ?", *patch.ErrorDetail)
	}
	if patch.StartedAt != nil {
		q.Set("started_at = ?", *patch.StartedAt)
	}
	if patch.CompletedAt != nil {
		q.Set("completed_at = ?", *patch.CompletedAt)
	}
	if patch.NextRunAt != nil {
		q.Set("next_run_at = ?", *patch.NextRunAt)
	}
	if patch.IncrementAttempts {
		q.Set("attempts = attempts + 1")
	} else if patch.DecrementAttempts {
		q.Set("attempts = attempts - 1")
	}
	if to == job.Queued {
		// Re-entering Queued releases any lease Broker holds on this
		// row, so it becomes immediately re-leasable.
		q.Set("lease_token = NULL").Set("lease_deadline = NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: transition job: %s", tonequeue.ErrStorageUnavailable, err)
	}
	if !isAffected(res) {
		return tonequeue.ErrConflict
	}
	return nil
}

func (s *Store) ListJobs(ctx context.Context, ownerID string, filter tonequeue.JobFilter, page tonequeue.Page) (*tonequeue.JobPage, error) {
	applyFilter := func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("owner_id = ?", ownerID)
		if filter.Status != job.Unknown {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	total, err := applyFilter(s.db.NewSelect().Model((*jobModel)(nil))).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count jobs: %s", tonequeue.ErrStorageUnavailable, err)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	var models []*jobModel
	q := applyFilter(s.db.NewSelect().Model(&models))
	if err := q.Order("created_at DESC").Limit(limit).Offset(page.Offset).Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: list jobs: %s", tonequeue.ErrStorageUnavailable, err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for _, m := range models {
		jobs = append(jobs, m.toJob())
	}
	return &tonequeue.JobPage{Jobs: jobs, Total: int64(total)}, nil
}

func (s *Store) CountJobsByStatus(ctx context.Context) (map[job.Status]int64, error) {
	var rows []struct {
		Status job.Status `bun:"status"`
		Count  int64       `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*jobModel)(nil)).
		ColumnExpr("status").
		ColumnExpr("count(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("%w: count jobs by status: %s", tonequeue.ErrStorageUnavailable, err)
	}
	counts := make(map[job.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *Store) ScanPending(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	return s.scanByStatus(ctx, job.Pending, "updated_at", olderThan, limit)
}

func (s *Store) ScanRunning(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	return s.scanByStatus(ctx, job.Running, "started_at", olderThan, limit)
}

func (s *Store) ScanStaleProgress(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	return s.scanByStatus(ctx, job.Running, "updated_at", olderThan, limit)
}

func (s *Store) scanByStatus(ctx context.Context, status job.Status, column string, olderThan time.Time, limit int) ([]*job.Job, error) {
	var models []*jobModel
	q := s.db.NewSelect().
		Model(&models).
		Where("status = ?", status).
		Where(column+" <= ?", olderThan)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %s", tonequeue.ErrStorageUnavailable, status, err)
	}
	jobs := make([]*job.Job, 0, len(models))
	for _, m := range models {
		jobs = append(jobs, m.toJob())
	}
	return jobs, nil
}

func (s *Store) ScanRetentionCandidates(ctx context.Context, olderThan time.Time, limit int) ([]*job.Job, error) {
	var models []*jobModel
	q := s.db.NewSelect().
		Model(&models).
		Where("status IN (?, ?, ?)", job.Succeeded, job.Failed, job.Cancelled).
		Where("result_path IS NOT NULL").
		Where("completed_at <= ?", olderThan)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: scan retention candidates: %s", tonequeue.ErrStorageUnavailable, err)
	}
	jobs := make([]*job.Job, 0, len(models))
	for _, m := range models {
		jobs = append(jobs, m.toJob())
	}
	return jobs, nil
}

func (s *Store) ClearResultPath(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("result_path = NULL").
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: clear result path: %s", tonequeue.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, ownerID string) (*credential.Credential, error) {
	var cm credentialModel
	err := s.db.NewSelect().Model(&cm).Where("owner_id = ?", ownerID).Scan(ctx)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: load credential: %s", tonequeue.ErrStorageUnavailable, err)
	}
	return cm.toCredential(), nil
}

func (s *Store) PutCredential(ctx context.Context, ownerID string, cred *credential.Credential) error {
	model := fromCredential(ownerID, cred)
	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (owner_id) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("access_expires_at = EXCLUDED.access_expires_at").
		Set("refreshed_at = EXCLUDED.refreshed_at").
		Set("broken = EXCLUDED.broken").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: upsert credential: %s", tonequeue.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, ownerID string) error {
	_, err := s.db.NewDelete().
		Model((*credentialModel)(nil)).
		Where("owner_id = ?", ownerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: delete credential: %s", tonequeue.ErrStorageUnavailable, err)
	}
	return nil
}
