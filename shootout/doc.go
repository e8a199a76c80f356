// Package shootout defines the user-declared work description: a set of
// signal chains applied to one or more direct-input guitar recordings.
//
// # Overview
//
// A Shootout is owned by a user (OwnerId) and carries one or more
// DITrack entries and one or more SignalChain entries. Each SignalChain
// is an ordered sequence of Stage values, each tagged with a closed
// StageKind (model, ir, eq, reverb, delay, gain).
//
// Draft is the unvalidated wire form accepted from the HTTP front door;
// Admission (package admission) is responsible for turning a Draft into
// a validated Shootout and is the only place StageDraft.Kind strings are
// parsed into the closed StageKind enum.
//
// # Ownership
//
// A Shootout is owned exclusively by its Job for lifetime purposes;
// deleting the owning Job cascades to its Shootout. Shootout itself
// never references a Job back -- the inverse direction is resolved by
// query (Store.LoadJob), not by object reference, to avoid reference
// cycles (spec §9).
package shootout
