package render

import "errors"

// ErrTransient marks a render failure as retryable (I/O, decode error,
// engine restart). The Worker Lease Loop nacks and retries up to
// MaxAttempts.
var ErrTransient = errors.New("render: transient failure")

// ErrPermanent marks a render failure as unrecoverable for this
// shootout (invalid semantics detected deep in the engine, missing
// model). The Worker Lease Loop transitions the job straight to
// Failed.
var ErrPermanent = errors.New("render: permanent failure")
