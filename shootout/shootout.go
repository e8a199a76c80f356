// Package shootout defines the user-declared work description submitted
// to Admission: a set of signal chains applied to one or more direct
// input guitar recordings.
package shootout

import (
	"time"

	"github.com/google/uuid"
)

// DITrack is a single direct-input recording referenced by a Shootout.
// Path is relative to the configured uploads root; Guitar, Pickup and
// Notes are free-text metadata used only for display.
type DITrack struct {
	Path   string `json:"path"`
	Guitar string `json:"guitar,omitempty"`
	Pickup string `json:"pickup,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// SignalChain is an ordered sequence of Stages applied to one DI track.
type SignalChain struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Stages      []Stage `json:"stages"`
}

// Stage is a single tagged processing step within a SignalChain.
// Parameter's shape depends on Kind: a model or IR reference is an
// opaque identifier string; eq/reverb/delay/gain parameters are
// implementation-defined encoded strings (e.g. "freq=800,gain=-3").
// Admission checks that Kind is recognized, that Parameter is
// non-empty, and that model/IR references use only identifier
// characters; any further parameter shape validation is left to the
// render engine.
type Stage struct {
	Kind      StageKind `json:"kind"`
	Parameter string    `json:"parameter"`
}

// Shootout is the user-declared work description: one or more DI tracks
// rendered through one or more signal chains.
//
// Invariants (enforced by Admission, never by this package alone):
//   - SignalChains is non-empty.
//   - DITracks is non-empty.
//   - every model/ir reference in every chain resolves syntactically;
//     binary resolution (does the artifact actually exist) happens
//     later, in the Worker Lease Loop.
type Shootout struct {
	Id          uuid.UUID
	OwnerId     string
	Title       string
	Description string

	DITracks     []DITrack
	SignalChains []SignalChain

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ModelReferences returns the distinct model-kind stage parameters
// referenced across every signal chain, in first-seen order. The
// Worker Lease Loop resolves exactly this set via the Credential
// Service and the model artifact cache (spec §4.5 step 5).
func (s *Shootout) ModelReferences() []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, chain := range s.SignalChains {
		for _, stage := range chain.Stages {
			if stage.Kind != StageKindModel {
				continue
			}
			if _, ok := seen[stage.Parameter]; ok {
				continue
			}
			seen[stage.Parameter] = struct{}{}
			refs = append(refs, stage.Parameter)
		}
	}
	return refs
}
