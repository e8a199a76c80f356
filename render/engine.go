// Package render defines the interface boundary to the audio/video
// rendering engine, an external, synchronous, blocking collaborator
// specified only by its interface (spec §1: out of core scope).
package render

import (
	"context"

	"github.com/romanqed/tonequeue/shootout"
)

// Spec is everything the render engine needs to produce one artifact:
// the validated shootout plus a resolved local filesystem path for
// every distinct model-stage reference the Worker Lease Loop fetched via
// the Credential Service and the model artifact cache (spec §4.5 step
// 5). IR stage parameters are not resolved and appear only in Shootout.
type Spec struct {
	Shootout    *shootout.Shootout
	ModelPaths  map[string]string // model reference -> local cache path
	OutputDir   string
}

// ProgressFunc is invoked by the render engine as it works, at most a
// few times per second. pct is 0-100; msg is a short human string.
type ProgressFunc func(pct uint8, msg string)

// Engine renders one shootout to a single artifact file.
//
// Render is synchronous and CPU-bound; the Worker Lease Loop invokes
// it on a dedicated goroutine drawn from its worker pool, never on the
// front door's I/O scheduler (spec §5, §9).
//
// Render must return promptly -- within a few seconds -- once ctx is
// canceled (spec §5, "Cancellation": the Worker expects at most 5s).
// On success it returns the artifact's path on local storage. On
// failure it returns an error; the Worker classifies the error via
// errors.Is against ErrTransient/ErrPermanent to decide whether to
// retry.
type Engine interface {
	Render(ctx context.Context, spec *Spec, progress ProgressFunc) (artifactPath string, err error)
}
