// Package admission validates incoming shootout drafts and hands
// accepted ones to the Durable Store and Queue Broker.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/romanqed/tonequeue"
	"github.com/romanqed/tonequeue/job"
	"github.com/romanqed/tonequeue/shootout"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 4000
)

// InvalidShootout reports a validation failure against a single field
// of a submitted Draft. Admission never writes a row when this error
// is returned.
type InvalidShootout struct {
	Field  string
	Reason string
}

func (e *InvalidShootout) Error() string {
	return fmt.Sprintf("admission: invalid shootout: %s: %s", e.Field, e.Reason)
}

// Service implements spec-ordered validation and the store+enqueue
// admission sequence.
type Service struct {
	store  tonequeue.Store
	broker tonequeue.Broker
	log    *slog.Logger
}

// New builds an admission Service.
func New(store tonequeue.Store, broker tonequeue.Broker, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, broker: broker, log: log}
}

// SubmitShootout validates draft and, on success, durably creates its
// Shootout and Job rows and enqueues the job. It returns an
// *InvalidShootout for any validation failure.
func (s *Service) SubmitShootout(ctx context.Context, ownerID string, draft *shootout.Draft) (uuid.UUID, error) {
	sh, err := validate(ownerID, draft)
	if err != nil {
		return uuid.UUID{}, err
	}

	now := time.Now()
	sh.CreatedAt = now
	sh.UpdatedAt = now

	j := &job.Job{
		Id:         uuid.New(),
		ShootoutId: sh.Id,
		OwnerId:    ownerID,
		Status:     job.Queued,
		Progress:   0,
		Attempts:   0,
		NextRunAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreateShootoutAndJob(ctx, sh, j); err != nil {
		return uuid.UUID{}, fmt.Errorf("admission: create shootout and job: %w", err)
	}

	if err := s.broker.Enqueue(ctx, j.Id, time.Time{}); err != nil {
		if !errors.Is(err, tonequeue.ErrBrokerUnavailable) {
			return uuid.UUID{}, fmt.Errorf("admission: enqueue: %w", err)
		}
		s.log.Warn("broker unavailable at admission, degrading to pending",
			slog.String("job_id", j.Id.String()), slog.Any("err", err))
		patch := &tonequeue.Patch{}
		if tErr := s.store.TransitionJob(ctx, j.Id, job.Queued, job.Pending, patch); tErr != nil {
			return uuid.UUID{}, fmt.Errorf("admission: compensate to pending: %w", tErr)
		}
	}

	return j.Id, nil
}

// validate implements spec order (a)-(e) and, on success, projects
// draft into a populated shootout.Shootout with Id and OwnerId set.
func validate(ownerID string, draft *shootout.Draft) (*shootout.Shootout, error) {
	if draft == nil {
		return nil, &InvalidShootout{Field: "draft", Reason: "must not be nil"}
	}

	// (a) title/description length
	if len(draft.Title) == 0 {
		return nil, &InvalidShootout{Field: "title", Reason: "must not be empty"}
	}
	if len(draft.Title) > maxTitleLen {
		return nil, &InvalidShootout{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", maxTitleLen)}
	}
	if len(draft.Description) > maxDescriptionLen {
		return nil, &InvalidShootout{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", maxDescriptionLen)}
	}

	// (b) >=1 DI track and each path is relative and under the uploads root
	if len(draft.DITracks) == 0 {
		return nil, &InvalidShootout{Field: "di_tracks", Reason: "must have at least one entry"}
	}
	for i, track := range draft.DITracks {
		if err := validateUploadPath(track.Path); err != nil {
			return nil, &InvalidShootout{Field: fmt.Sprintf("di_tracks[%d].path", i), Reason: err.Error()}
		}
	}

	// (c) >=1 signal chain
	if len(draft.SignalChains) == 0 {
		return nil, &InvalidShootout{Field: "signal_chains", Reason: "must have at least one entry"}
	}

	chains := make([]shootout.SignalChain, 0, len(draft.SignalChains))
	for ci, chainDraft := range draft.SignalChains {
		if len(chainDraft.Stages) == 0 {
			return nil, &InvalidShootout{
				Field:  fmt.Sprintf("signal_chains[%d].stages", ci),
				Reason: "must have at least one stage",
			}
		}

		stages := make([]shootout.Stage, 0, len(chainDraft.Stages))
		for si, stageDraft := range chainDraft.Stages {
			// (d) each stage's kind is recognized and its parameter is non-empty
			kind, err := shootout.ParseStageKind(stageDraft.Kind)
			if err != nil {
				return nil, &InvalidShootout{
					Field:  fmt.Sprintf("signal_chains[%d].stages[%d].kind", ci, si),
					Reason: fmt.Sprintf("unrecognized stage kind %q", stageDraft.Kind),
				}
			}
			if strings.TrimSpace(stageDraft.Parameter) == "" {
				return nil, &InvalidShootout{
					Field:  fmt.Sprintf("signal_chains[%d].stages[%d].parameter", ci, si),
					Reason: "must not be empty",
				}
			}
			// (e) model references are syntactically valid identifiers
			if kind == shootout.StageKindModel || kind == shootout.StageKindIR {
				if !isValidReference(stageDraft.Parameter) {
					return nil, &InvalidShootout{
						Field:  fmt.Sprintf("signal_chains[%d].stages[%d].parameter", ci, si),
						Reason: fmt.Sprintf("%q is not a valid model reference", stageDraft.Parameter),
					}
				}
			}
			stages = append(stages, shootout.Stage{Kind: kind, Parameter: stageDraft.Parameter})
		}

		chains = append(chains, shootout.SignalChain{
			Name:        chainDraft.Name,
			Description: chainDraft.Description,
			Stages:      stages,
		})
	}

	return &shootout.Shootout{
		Id:           uuid.New(),
		OwnerId:      ownerID,
		Title:        draft.Title,
		Description:  draft.Description,
		DITracks:     draft.DITracks,
		SignalChains: chains,
	}, nil
}

// validateUploadPath rejects absolute paths and any path that escapes
// the uploads root via "..".
func validateUploadPath(p string) error {
	if p == "" {
		return errors.New("must not be empty")
	}
	if path.IsAbs(p) {
		return errors.New("must be relative to the uploads root")
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.New("must not escape the uploads root")
	}
	return nil
}

// isValidReference reports whether ref looks like a syntactically
// valid model/IR identifier: non-empty and made only of ASCII letters,
// digits, '-', '_', '.' and ':'.
func isValidReference(ref string) bool {
	if ref == "" {
		return false
	}
	for _, r := range ref {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ':':
		default:
			return false
		}
	}
	return true
}
