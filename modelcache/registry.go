// Package modelcache resolves model/IR artifact references to local
// filesystem paths, downloading from the model artifact registry on
// cache miss (spec §1, "Model artifact registry"; §4.5 step 5; §5,
// "model_artifact cache").
package modelcache

import (
	"context"
	"errors"
)

// ErrTransient marks a registry lookup or download failure as
// retryable (network failure, 5xx).
var ErrTransient = errors.New("modelcache: transient registry failure")

// ErrPermanent marks a registry lookup failure as unrecoverable for
// this reference (404 unknown model, 403 not entitled).
var ErrPermanent = errors.New("modelcache: permanent registry failure")

// Registry resolves a model reference to a signed download URL. It is
// a thin client over the external, read-only, credentialed model
// artifact registry service.
type Registry interface {
	ModelURL(ctx context.Context, modelRef string, bearer string) (url string, err error)
}
