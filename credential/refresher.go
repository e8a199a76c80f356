package credential

import (
	"context"
	"errors"
	"time"
)

// ErrTransient indicates a network or 5xx failure talking to the
// identity provider. The caller should retry with backoff.
var ErrTransient = errors.New("credential: transient refresh failure")

// ErrPermanent indicates the identity provider rejected the refresh
// token outright (invalid_grant). The credential is marked Broken and
// must not be retried without the owner re-authorizing.
var ErrPermanent = errors.New("credential: permanent refresh failure")

// RefreshedToken is the result of a successful refresh exchange.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresher exchanges a refresh token for a new access token with the
// external identity provider. Implementations should return ErrTransient
// for network/5xx failures and ErrPermanent for invalid_grant (4xx)
// responses, wrapping the underlying error with errors.Join or %w so
// callers can still inspect the cause.
type Refresher interface {
	Refresh(ctx context.Context, ownerID string, refreshToken string) (*RefreshedToken, error)
}
