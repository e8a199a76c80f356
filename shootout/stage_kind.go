package shootout

import "fmt"

// StageKind is a closed, tagged variant of the processing steps a Stage
// may perform. Using a closed enum here -- rather than a free-form
// string or map -- is deliberate: it makes Admission's kind-recognition
// check total (spec §9, re-architecting note 1) and makes adding a new
// stage kind an explicit, auditable change to this file.
type StageKind string

const (
	// StageKindUnknown is the zero value; never valid on a submitted
	// Stage.
	StageKindUnknown StageKind = ""

	// StageKindModel applies an amp/cab neural model by reference.
	StageKindModel StageKind = "model"

	// StageKindIR convolves with an impulse response by reference.
	StageKindIR StageKind = "ir"

	// StageKindEQ applies parametric equalization.
	StageKindEQ StageKind = "eq"

	// StageKindReverb applies a reverb effect.
	StageKindReverb StageKind = "reverb"

	// StageKindDelay applies a delay/echo effect.
	StageKindDelay StageKind = "delay"

	// StageKindGain applies a static gain adjustment.
	StageKindGain StageKind = "gain"
)

var validStageKinds = map[StageKind]struct{}{
	StageKindModel:  {},
	StageKindIR:     {},
	StageKindEQ:     {},
	StageKindReverb: {},
	StageKindDelay:  {},
	StageKindGain:   {},
}

// Valid reports whether k is one of the recognized stage kinds.
func (k StageKind) Valid() bool {
	_, ok := validStageKinds[k]
	return ok
}

// String returns the canonical wire value of the stage kind.
func (k StageKind) String() string {
	return string(k)
}

// ParseStageKind parses the canonical wire value of a stage kind.
// Unrecognized values return an error rather than StageKindUnknown, so
// that JSON decoding rejects unknown kinds at the boundary instead of
// deep inside validation logic.
func ParseStageKind(s string) (StageKind, error) {
	k := StageKind(s)
	if !k.Valid() {
		return StageKindUnknown, fmt.Errorf("unknown stage kind: %s", s)
	}
	return k, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k StageKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown stage kind: %s", string(k))
	}
	return []byte(k), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StageKind) UnmarshalText(text []byte) error {
	parsed, err := ParseStageKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
