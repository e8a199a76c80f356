package shootout

// Draft is the unvalidated submission payload accepted by
// Admission.SubmitShootout (spec §6). Its JSON shape is the stable,
// canonical wire format; field names must not change without a wire
// version bump.
type Draft struct {
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	DITracks     []DITrack         `json:"di_tracks"`
	SignalChains []SignalChainDraft `json:"signal_chains"`
}

// SignalChainDraft mirrors SignalChain but carries StageDraft entries,
// whose Kind has not yet been validated against the closed StageKind
// enum.
type SignalChainDraft struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Stages      []StageDraft `json:"stages"`
}

// StageDraft mirrors Stage but carries Kind as a raw string, since the
// submitted JSON may name an unrecognized kind that Admission must
// reject with a field-level reason rather than a generic decode error.
type StageDraft struct {
	Kind      string `json:"kind"`
	Parameter string `json:"parameter"`
}
