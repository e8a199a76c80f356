package sql

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/romanqed/tonequeue/credential"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/shootout"
)

type shootoutModel struct {
	bun.BaseModel `bun:"table:shootouts"`
	Id            uuid.UUID `bun:"id,pk,type:uuid"`
	OwnerId       string    `bun:"owner_id,notnull"`

	Title       string `bun:"title,notnull"`
	Description string `bun:"description"`

	DITracks     []shootout.DITrack         `bun:"di_tracks,type:jsonb"`
	SignalChains []shootout.SignalChain     `bun:"signal_chains,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (sm *shootoutModel) toShootout() *shootout.Shootout {
	return &shootout.Shootout{
		Id:           sm.Id,
		OwnerId:      sm.OwnerId,
		Title:        sm.Title,
		Description:  sm.Description,
		DITracks:     sm.DITracks,
		SignalChains: sm.SignalChains,
		CreatedAt:    sm.CreatedAt,
		UpdatedAt:    sm.UpdatedAt,
	}
}

func fromShootout(s *shootout.Shootout) *shootoutModel {
	return &shootoutModel{
		Id:           s.Id,
		OwnerId:      s.OwnerId,
		Title:        s.Title,
		Description:  s.Description,
		DITracks:     s.DITracks,
		SignalChains: s.SignalChains,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// jobModel is the persisted job row. LeaseToken and LeaseDeadline are
// owned by Broker, layered onto the same row Store's status/progress
// columns live on, rather than a separate leases table, mirroring the
// teacher's single-table design.
type jobModel struct {
	bun.BaseModel `bun:"table:jobs"`
	Id            uuid.UUID `bun:"id,pk,type:uuid"`
	ShootoutId    uuid.UUID `bun:"shootout_id,notnull,type:uuid"`
	OwnerId       string    `bun:"owner_id,notnull"`

	Status   job.Status `bun:"status,notnull,default:0"`
	Progress uint8      `bun:"progress,notnull,default:0"`
	Message  string     `bun:"message"`
	Attempts uint32     `bun:"attempts,notnull,default:0"`

	ResultPath  *string       `bun:"result_path,nullzero,default:null"`
	ErrorKind   job.ErrorKind `bun:"error_kind"`
	ErrorDetail *string       `bun:"error_detail,nullzero,default:null"`

	LeaseToken    *string    `bun:"lease_token,nullzero,default:null"`
	LeaseDeadline *time.Time `bun:"lease_deadline,nullzero,default:null"`
	NextRunAt     time.Time  `bun:"next_run_at,notnull"`

	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at,nullzero,default:null"`
	CompletedAt *time.Time `bun:"completed_at,nullzero,default:null"`
}

func (jm *jobModel) toJob() *job.Job {
	return &job.Job{
		Id:          jm.Id,
		ShootoutId:  jm.ShootoutId,
		OwnerId:     jm.OwnerId,
		Status:      jm.Status,
		Progress:    jm.Progress,
		Message:     jm.Message,
		Attempts:    jm.Attempts,
		ResultPath:  jm.ResultPath,
		ErrorKind:   jm.ErrorKind,
		ErrorDetail: jm.ErrorDetail,
		NextRunAt:   jm.NextRunAt,
		CreatedAt:   jm.CreatedAt,
		UpdatedAt:   jm.UpdatedAt,
		StartedAt:   jm.StartedAt,
		CompletedAt: jm.CompletedAt,
	}
}

func fromJob(j *job.Job) *jobModel {
	return &jobModel{
		Id:          j.Id,
		ShootoutId:  j.ShootoutId,
		OwnerId:     j.OwnerId,
		Status:      j.Status,
		Progress:    j.Progress,
		Message:     j.Message,
		Attempts:    j.Attempts,
		ResultPath:  j.ResultPath,
		ErrorKind:   j.ErrorKind,
		ErrorDetail: j.ErrorDetail,
		NextRunAt:   j.NextRunAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

type credentialModel struct {
	bun.BaseModel `bun:"table:credentials"`
	OwnerId       string `bun:"owner_id,pk"`

	AccessToken     string    `bun:"access_token"`
	RefreshToken    string    `bun:"refresh_token,notnull"`
	AccessExpiresAt time.Time `bun:"access_expires_at,nullzero"`
	RefreshedAt     time.Time `bun:"refreshed_at,nullzero,notnull,default:current_timestamp"`
	Broken          bool      `bun:"broken,notnull,default:false"`
}

func (cm *credentialModel) toCredential() *credential.Credential {
	return &credential.Credential{
		OwnerId:         cm.OwnerId,
		AccessToken:     cm.AccessToken,
		RefreshToken:    cm.RefreshToken,
		AccessExpiresAt: cm.AccessExpiresAt,
		RefreshedAt:     cm.RefreshedAt,
		Broken:          cm.Broken,
	}
}

func fromCredential(ownerID string, c *credential.Credential) *credentialModel {
	return &credentialModel{
		OwnerId:         ownerID,
		AccessToken:     c.AccessToken,
		RefreshToken:    c.RefreshToken,
		AccessExpiresAt: c.AccessExpiresAt,
		RefreshedAt:     c.RefreshedAt,
		Broken:          c.Broken,
	}
}
